package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardgate/portal/internal/adapters/backends"
	"github.com/guardgate/portal/internal/data/cryptoutil"
	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
	mocks "github.com/guardgate/portal/internal/mocks/portal"
	"github.com/guardgate/portal/internal/ports"
)

func mockIssue(key string) ports.OTPIssue { return ports.OTPIssue{Key: key} }

func otpEntry(id string, p ports.OTPProvider) backends.Entry {
	return otpEntryWith(id, p, domainportal.OTPConfig{Type: domainportal.OTPTypeEmail, MaxRetry: 3})
}

func otpEntryWith(id string, p ports.OTPProvider, cfg domainportal.OTPConfig) backends.Entry {
	return backends.Entry{
		Repository: domainportal.Repository{ID: id, Name: id, Kind: domainportal.RepoKindOTP, OTP: &cfg},
		OTP:        p,
	}
}

type doubleAuthFixture struct {
	store  *mocks.MemorySessionStore
	dir    *backends.Directory
	wf     domainportal.Workflow
	cookie string
}

// setupDoubleAuth registers a primary authentication so the second-factor
// flow has a session to hang off, and returns the fixture for building it.
func setupDoubleAuth(t *testing.T, otp backends.Entry, result domainportal.AuthResult) doubleAuthFixture {
	t.Helper()
	ctx := context.Background()
	store := mocks.NewMemorySessionStore()
	auth := &mocks.MockAuthenticator{Result: result}
	dir := backends.NewDirectory([]backends.Entry{ldapEntry("b1", auth), otp})

	wf := testWorkflow("b1")
	wf.Authentication.OTPRepositoryID = otp.Repository.ID

	a := newTestFlow(t, wf, dir, store, "")
	a.SetCredentials(domainportal.Credentials{Login: result.Login, Secret: "pw"})
	authenticated, err := a.Authenticate(ctx)
	require.NoError(t, err)
	cookie, _, err := a.RegisterUser(ctx, authenticated)
	require.NoError(t, err)

	return doubleAuthFixture{store: store, dir: dir, wf: wf, cookie: cookie}
}

func (f doubleAuthFixture) flow(t *testing.T) *DoubleAuthentication {
	t.Helper()
	d, err := NewDoubleAuthenticationFlow(context.Background(), AuthenticationOptions{
		Workflow:  f.wf,
		Backends:  f.dir,
		Sessions:  f.store,
		Encryptor: cryptoutil.NoopEncryptor{},
		Cookie:    f.cookie,
	})
	require.NoError(t, err)
	return d
}

func aliceResult() domainportal.AuthResult {
	return domainportal.AuthResult{Login: "alice", Email: "alice@example.com", Phone: "+33600000000"}
}

func TestCreateAuthenticationIssuesOnlyWhenNoKeyCached(t *testing.T) {
	ctx := context.Background()
	provider := &mocks.MockOTPProvider{Issue: mockIssue("ABCD1234")}
	f := setupDoubleAuth(t, otpEntry("otp1", provider), aliceResult())

	d := f.flow(t)
	require.NoError(t, d.CreateAuthentication(ctx))
	assert.Equal(t, 1, provider.RegisterCalls())

	key, err := d.Auth().Session().OTPKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234", key)

	// A second render of the prompt must not burn another key.
	require.NoError(t, f.flow(t).CreateAuthentication(ctx))
	assert.Equal(t, 1, provider.RegisterCalls())
}

func TestCreateAuthenticationResendAlwaysReissues(t *testing.T) {
	ctx := context.Background()
	provider := &mocks.MockOTPProvider{Keys: []string{"first", "second"}}
	f := setupDoubleAuth(t, otpEntry("otp1", provider), aliceResult())

	require.NoError(t, f.flow(t).CreateAuthentication(ctx))

	d := f.flow(t)
	require.NoError(t, d.RetrieveCredentials(ctx, &Request{Form: url.Values{FieldOTPResend: {"1"}}}))
	assert.True(t, d.Resend())
	require.NoError(t, d.CreateAuthentication(ctx))

	assert.Equal(t, 2, provider.RegisterCalls())
	key, err := d.Auth().Session().OTPKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", key)
}

func TestCreateAuthenticationRejectsPlaceholderContact(t *testing.T) {
	tests := []struct {
		name  string
		email string
	}{
		{"empty", ""},
		{"none placeholder", "None"},
		{"na placeholder", "N/A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mocks.MockOTPProvider{Issue: mockIssue("key")}
			result := aliceResult()
			result.Email = tt.email
			f := setupDoubleAuth(t, otpEntry("otp1", provider), result)

			err := f.flow(t).CreateAuthentication(context.Background())
			require.Error(t, err)
			assert.True(t, apperrors.IsOTP(err))
			assert.Zero(t, provider.RegisterCalls())
		})
	}
}

func TestCreateAuthenticationPhoneDeliveryChecksPhoneClaim(t *testing.T) {
	provider := &mocks.MockOTPProvider{Issue: mockIssue("123456")}
	result := aliceResult()
	result.Phone = "N/A"
	cfg := domainportal.OTPConfig{Type: domainportal.OTPTypePhone, MaxRetry: 3}
	f := setupDoubleAuth(t, otpEntryWith("otp1", provider, cfg), result)

	err := f.flow(t).CreateAuthentication(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsOTP(err))
}

func TestCreateAuthenticationNormalizesDispatchFailure(t *testing.T) {
	provider := &mocks.MockOTPProvider{RegisterErr: apperrors.Internal("smtp connect refused")}
	f := setupDoubleAuth(t, otpEntry("otp1", provider), aliceResult())

	err := f.flow(t).CreateAuthentication(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsOTP(err))
	assert.NotContains(t, err.Error(), "smtp")
}

func TestRetrieveCredentialsRequiresPendingKey(t *testing.T) {
	ctx := context.Background()
	provider := &mocks.MockOTPProvider{Issue: mockIssue("ABCD1234")}
	f := setupDoubleAuth(t, otpEntry("otp1", provider), aliceResult())

	// No key issued yet: a direct submission is a credentials error.
	err := f.flow(t).RetrieveCredentials(ctx, &Request{Form: url.Values{FieldOTPKey: {"guess"}}})
	require.Error(t, err)
	assert.True(t, apperrors.IsCredentials(err))

	// Missing field entirely.
	err = f.flow(t).RetrieveCredentials(ctx, &Request{Form: url.Values{}})
	require.Error(t, err)
	assert.True(t, apperrors.IsCredentials(err))

	require.NoError(t, f.flow(t).CreateAuthentication(ctx))
	d := f.flow(t)
	require.NoError(t, d.RetrieveCredentials(ctx, &Request{Form: url.Values{FieldOTPKey: {"ABCD1234"}}}))
	assert.Equal(t, "ABCD1234", d.Auth().Credentials().Login)
	assert.Equal(t, "ABCD1234", d.Auth().Credentials().Secret)
}

func TestAuthenticateEmailKeyByEquality(t *testing.T) {
	ctx := context.Background()
	provider := &mocks.MockOTPProvider{Issue: mockIssue("ABCD1234")}
	f := setupDoubleAuth(t, otpEntry("otp1", provider), aliceResult())
	require.NoError(t, f.flow(t).CreateAuthentication(ctx))

	wrong := f.flow(t)
	require.NoError(t, wrong.RetrieveCredentials(ctx, &Request{Form: url.Values{FieldOTPKey: {"nope"}}}))
	err := wrong.Authenticate(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
	// Email keys are compared in the flow, never delegated.
	assert.Zero(t, provider.VerifyCalls())

	right := f.flow(t)
	require.NoError(t, right.RetrieveCredentials(ctx, &Request{Form: url.Values{FieldOTPKey: {"ABCD1234"}}}))
	require.NoError(t, right.Authenticate(ctx))

	done, err := right.Auth().Session().IsDoubleAuthenticated(ctx, "otp1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestAuthenticateDelegatesTOTPVerification(t *testing.T) {
	ctx := context.Background()
	provider := &mocks.MockOTPProvider{Issue: ports.OTPIssue{Key: "SHAREDSECRET", Challenge: "otpauth://totp/guardgate:alice"}}
	cfg := domainportal.OTPConfig{Type: domainportal.OTPTypeTOTP, MaxRetry: 3}
	f := setupDoubleAuth(t, otpEntryWith("otp1", provider, cfg), aliceResult())

	issued := f.flow(t)
	require.NoError(t, issued.CreateAuthentication(ctx))
	assert.Equal(t, "otpauth://totp/guardgate:alice", issued.Challenge())

	d := f.flow(t)
	require.NoError(t, d.RetrieveCredentials(ctx, &Request{Form: url.Values{FieldOTPKey: {"SHAREDSECRET"}}}))
	require.NoError(t, d.Authenticate(ctx))
	assert.Equal(t, 1, provider.VerifyCalls())
}

func TestAuthenticationFailureExhaustsRetryBudgetExactly(t *testing.T) {
	ctx := context.Background()
	provider := &mocks.MockOTPProvider{Issue: mockIssue("ABCD1234")}
	f := setupDoubleAuth(t, otpEntry("otp1", provider), aliceResult())
	require.NoError(t, f.flow(t).CreateAuthentication(ctx))

	// Budget is 3: the first two failures leave the session intact.
	for i := 0; i < 2; i++ {
		require.NoError(t, f.flow(t).AuthenticationFailure(ctx))
	}

	session := NewPortalSession(f.store, cryptoutil.NoopEncryptor{}, f.cookie)
	stillAuthenticated, err := session.AuthenticatedApp(ctx, f.wf.ID)
	require.NoError(t, err)
	assert.True(t, stillAuthenticated)

	// The third failure trips the budget and deauthenticates.
	err = f.flow(t).AuthenticationFailure(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsOTPRetryExhausted(err))

	authenticated, err := session.AuthenticatedApp(ctx, f.wf.ID)
	require.NoError(t, err)
	assert.False(t, authenticated)

	onBackend, err := session.AuthenticatedBackend(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, onBackend)

	key, err := session.OTPKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)

	// The login survives so the OTP flow can still resolve its backend.
	hasLogin, err := session.HasLogin(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, hasLogin)
}

func TestWorkflowRetryBudgetOverridesRepository(t *testing.T) {
	ctx := context.Background()
	provider := &mocks.MockOTPProvider{Issue: mockIssue("ABCD1234")}
	f := setupDoubleAuth(t, otpEntry("otp1", provider), aliceResult())
	f.wf.Authentication.OTPMaxRetry = 1

	err := f.flow(t).AuthenticationFailure(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsOTPRetryExhausted(err))
}

func TestNewDoubleAuthenticationFlowResolvesBackendByLogin(t *testing.T) {
	ctx := context.Background()
	provider := &mocks.MockOTPProvider{Issue: mockIssue("ABCD1234")}
	f := setupDoubleAuth(t, otpEntry("otp1", provider), aliceResult())

	// A spent retry budget clears the backend flag but keeps the login;
	// the flow must still resolve which backend the user came from.
	session := NewPortalSession(f.store, cryptoutil.NoopEncryptor{}, f.cookie)
	require.NoError(t, session.Deauthenticate(ctx, f.wf.ID, "b1", time.Minute))

	d := f.flow(t)
	assert.Equal(t, "b1", d.Auth().BackendID())
	assert.Equal(t, "alice", d.Auth().Credentials().Login)
}

func TestNewDoubleAuthenticationFlowRequiresSession(t *testing.T) {
	provider := &mocks.MockOTPProvider{}
	dir := backends.NewDirectory([]backends.Entry{
		ldapEntry("b1", &mocks.MockAuthenticator{}),
		otpEntry("otp1", provider),
	})
	wf := testWorkflow("b1")
	wf.Authentication.OTPRepositoryID = "otp1"

	_, err := NewDoubleAuthenticationFlow(context.Background(), AuthenticationOptions{
		Workflow:  wf,
		Backends:  dir,
		Sessions:  mocks.NewMemorySessionStore(),
		Encryptor: cryptoutil.NoopEncryptor{},
		Cookie:    "never-seen",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCredentials(err))
}
