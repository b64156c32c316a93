package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardgate/portal/internal/data/cryptoutil"
	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
	mocks "github.com/guardgate/portal/internal/mocks/portal"
)

func TestNewPortalSessionGeneratesCookie(t *testing.T) {
	store := mocks.NewMemorySessionStore()
	s := NewPortalSession(store, cryptoutil.NoopEncryptor{}, "")
	assert.NotEmpty(t, s.Cookie())

	other := NewPortalSession(store, cryptoutil.NoopEncryptor{}, "")
	assert.NotEqual(t, s.Cookie(), other.Cookie())

	fixed := NewPortalSession(store, cryptoutil.NoopEncryptor{}, "my-cookie")
	assert.Equal(t, "my-cookie", fixed.Cookie())
}

func TestRegisterAuthenticationWritesSchema(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemorySessionStore()
	s := NewPortalSession(store, cryptoutil.NoopEncryptor{}, "c1")

	err := s.RegisterAuthentication(ctx, RegisterAuthenticationInput{
		WorkflowID:  "wf-1",
		BackendID:   "b1",
		RedirectURL: "https://app.example.com/",
		Login:       "alice",
		Password:    "s3cret",
		OAuth2Token: "tok-1",
		Result: domainportal.AuthResult{
			Email: "alice@example.com",
			Phone: "+33600000000",
			Attrs: map[string]string{"display_name": "Alice"},
		},
		TTL: 10 * time.Minute,
	})
	require.NoError(t, err)

	fields := store.Fields("portal_c1")
	assert.Equal(t, "1", fields["app_wf-1"])
	assert.Equal(t, "1", fields["backend_b1"])
	assert.Equal(t, "alice", fields["login_b1"])
	assert.Equal(t, "tok-1", fields["oauth2_b1"])
	assert.Equal(t, "https://app.example.com/", fields["url_wf-1"])
	assert.Equal(t, "alice@example.com", fields["user_email"])
	assert.Equal(t, "+33600000000", fields["user_phone"])
	assert.Equal(t, "Alice", fields["display_name"])
	// The autologon password is never stored in the clear.
	assert.NotEqual(t, "s3cret", fields["password_b1"])
	assert.Equal(t, 10*time.Minute, store.TTL("portal_c1"))

	password, err := s.AutologonPassword(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", password)

	url, err := s.StoredURL(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/", url)
}

func TestAutologonPasswordWithAESGCM(t *testing.T) {
	ctx := context.Background()
	key := make([]byte, 32)
	copy(key, "0123456789abcdef0123456789abcdef")
	enc, err := cryptoutil.NewAESGCMEncryptor(key)
	require.NoError(t, err)

	store := mocks.NewMemorySessionStore()
	s := NewPortalSession(store, enc, "c1")
	require.NoError(t, s.RegisterAuthentication(ctx, RegisterAuthenticationInput{
		WorkflowID: "wf-1",
		BackendID:  "b1",
		Login:      "alice",
		Password:   "p@ssw0rd",
		TTL:        time.Minute,
	}))

	password, err := s.AutologonPassword(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "p@ssw0rd", password)
}

func TestDeauthenticateKeepsLogin(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemorySessionStore()
	s := NewPortalSession(store, cryptoutil.NoopEncryptor{}, "c1")
	require.NoError(t, s.RegisterAuthentication(ctx, RegisterAuthenticationInput{
		WorkflowID: "wf-1",
		BackendID:  "b1",
		Login:      "alice",
		TTL:        time.Minute,
	}))
	require.NoError(t, s.SetOTPKey(ctx, "ABCD1234", time.Minute))

	require.NoError(t, s.Deauthenticate(ctx, "wf-1", "b1", time.Minute))

	authenticated, err := s.AuthenticatedApp(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, authenticated)

	onBackend, err := s.AuthenticatedBackend(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, onBackend)

	key, err := s.OTPKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)

	login, err := s.Login(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "alice", login)
}

func TestIncrementOTPRetriesIsMonotone(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemorySessionStore()
	s := NewPortalSession(store, cryptoutil.NoopEncryptor{}, "c1")

	for want := int64(1); want <= 3; want++ {
		got, err := s.IncrementOTPRetries(ctx, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDestroyRemovesSession(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemorySessionStore()
	s := NewPortalSession(store, cryptoutil.NoopEncryptor{}, "c1")
	require.NoError(t, s.RegisterAuthentication(ctx, RegisterAuthenticationInput{
		WorkflowID: "wf-1", BackendID: "b1", Login: "alice", TTL: time.Minute,
	}))

	require.NoError(t, s.Destroy(ctx))

	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDestroyInvalidatesReferencedOAuth2Sessions(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemorySessionStore()
	s := NewPortalSession(store, cryptoutil.NoopEncryptor{}, "c1")

	o := NewOAuth2Session(store, "tok-1")
	require.NoError(t, o.Register(ctx, domainportal.OAuth2Policy{
		TokenReturnType: domainportal.TokenReturnBoth,
		TokenTTL:        time.Hour,
	}))
	require.NoError(t, s.RegisterAuthentication(ctx, RegisterAuthenticationInput{
		WorkflowID: "wf-1", BackendID: "b1", Login: "alice",
		OAuth2Token: "tok-1", TTL: time.Minute,
	}))

	require.NoError(t, s.Destroy(ctx))

	// The bearer token must not outlive the portal session.
	live, err := o.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, live)
}

func TestOAuth2SessionPolicyRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemorySessionStore()

	o := NewOAuth2Session(store, "tok-1")
	policy := domainportal.OAuth2Policy{
		Scope:           `{"role":"reader"}`,
		TokenReturnType: domainportal.TokenReturnJSON,
		TokenTTL:        30 * time.Minute,
	}
	require.NoError(t, o.Register(ctx, policy))

	exists, err := o.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 30*time.Minute, store.TTL("oauth2_tok-1"))

	got, err := o.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, policy, got)

	require.NoError(t, o.Destroy(ctx))
	exists, err = o.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestOAuth2SessionPolicyMissing(t *testing.T) {
	store := mocks.NewMemorySessionStore()
	o := NewOAuth2Session(store, "never-issued")

	_, err := o.Policy(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestOAuth2SessionEmptyTokenNeverExists(t *testing.T) {
	store := mocks.NewMemorySessionStore()
	o := NewOAuth2Session(store, "")

	exists, err := o.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}
