package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
)

func strPtr(s string) *string { return &s }

func TestWorkflowRowToDomain(t *testing.T) {
	row := workflowRow{
		ID:              "wf1",
		Name:            "intranet",
		RedirectURI:     "https://app.example.com/home",
		AuthEnabled:     true,
		AuthType:        "form",
		RepositoryID:    strPtr("b1"),
		FallbackIDs:     []string{"b2", "b3"},
		OTPRepositoryID: strPtr("otp1"),
		AuthTimeoutSecs: 900,
		EnableCaptcha:   true,
		OTPMaxRetry:     5,
	}

	wf, err := row.toDomain()
	require.NoError(t, err)
	require.NotNil(t, wf.Authentication)
	assert.Equal(t, domainportal.AuthTypeForm, wf.Authentication.AuthType)
	assert.Equal(t, "b1", wf.Authentication.RepositoryID)
	assert.Equal(t, []string{"b2", "b3"}, wf.Authentication.FallbackIDs)
	assert.Equal(t, "otp1", wf.Authentication.OTPRepositoryID)
	assert.Equal(t, 15*time.Minute, wf.Authentication.AuthTimeout)
	assert.True(t, wf.Authentication.EnableCaptcha)
	assert.Equal(t, 5, wf.Authentication.OTPMaxRetry)
}

func TestWorkflowRowToDomainAuthDisabled(t *testing.T) {
	row := workflowRow{ID: "wf1", Name: "open", AuthType: "garbage"}

	wf, err := row.toDomain()
	require.NoError(t, err)
	assert.Nil(t, wf.Authentication)
}

func TestWorkflowRowToDomainInvalidAuthType(t *testing.T) {
	row := workflowRow{ID: "wf1", AuthEnabled: true, AuthType: "digest"}

	_, err := row.toDomain()
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRepositoryRowToDomainKinds(t *testing.T) {
	tests := []struct {
		kind string
		want domainportal.RepositoryKind
	}{
		{"internal", domainportal.RepoKindInternal},
		{"ldap", domainportal.RepoKindLDAP},
		{"kerberos", domainportal.RepoKindKerberos},
		{"otp", domainportal.RepoKindOTP},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			repo, err := repositoryRow{ID: "r1", Name: "repo", Kind: tt.kind}.toDomain()
			require.NoError(t, err)
			assert.Equal(t, tt.want, repo.Kind)
		})
	}
}

func TestRepositoryRowToDomainOTPConfig(t *testing.T) {
	row := repositoryRow{
		ID:              "otp1",
		Name:            "sms keys",
		Kind:            "otp",
		OTPType:         strPtr("phone"),
		OTPPhoneService: strPtr("gateway"),
		OTPMaxRetry:     5,
	}

	repo, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, domainportal.RepoKindOTP, repo.Kind)
	require.NotNil(t, repo.OTP)
	assert.Equal(t, domainportal.OTPTypePhone, repo.OTP.Type)
	assert.Equal(t, "gateway", repo.OTP.PhoneService)
	assert.Equal(t, 5, repo.OTP.MaxRetry)

	// Non-OTP kinds never carry an OTP block, even with a stray otp_type.
	ldap, err := repositoryRow{ID: "b1", Kind: "ldap", OTPType: strPtr("email")}.toDomain()
	require.NoError(t, err)
	assert.Nil(t, ldap.OTP)
}

func TestRepositoryRowToDomainInvalidKind(t *testing.T) {
	_, err := repositoryRow{ID: "r1", Kind: "saml"}.toDomain()
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}
