package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guardgate/portal/internal/data/cryptoutil"
	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
	"github.com/guardgate/portal/internal/ports"
)

// Portal session hash schema. Fields are scoped by backend, workflow, or
// OTP repository id; unknown fields are never interpreted by the core.
const (
	fieldOTPKey     = "otp_key"
	fieldOTPRetries = "otp_retries"
	fieldUserEmail  = "user_email"
	fieldUserPhone  = "user_phone"
)

func appField(workflowID string) string       { return "app_" + workflowID }
func urlField(workflowID string) string       { return "url_" + workflowID }
func captchaField(workflowID string) string   { return "captcha_" + workflowID }
func backendField(backendID string) string    { return "backend_" + backendID }
func loginField(backendID string) string      { return "login_" + backendID }
func passwordField(backendID string) string   { return "password_" + backendID }
func oauth2Field(backendID string) string     { return "oauth2_" + backendID }
func doubleAuthField(otpRepoID string) string { return "doubleauth_" + otpRepoID }

const oauth2KeyPrefix = "oauth2_"

// PortalSession is the typed accessor over one visitor's session hash.
// It owns no authentication logic, only the get/set/ttl/delete schema.
type PortalSession struct {
	store ports.SessionStore
	enc   cryptoutil.Encryptor
	key   string
}

// NewPortalSession wraps the session identified by cookie, generating a
// fresh opaque cookie value when none is presented.
func NewPortalSession(store ports.SessionStore, enc cryptoutil.Encryptor, cookie string) *PortalSession {
	if cookie == "" {
		cookie = uuid.NewString()
	}
	return &PortalSession{store: store, enc: enc, key: "portal_" + cookie}
}

// Cookie returns the opaque cookie value identifying this session.
func (p *PortalSession) Cookie() string {
	return p.key[len("portal_"):]
}

// Exists reports whether the session has been persisted.
func (p *PortalSession) Exists(ctx context.Context) (bool, error) {
	return p.store.Exists(ctx, p.key)
}

// AuthenticatedApp reports whether this session is authenticated for the
// given workflow.
func (p *PortalSession) AuthenticatedApp(ctx context.Context, workflowID string) (bool, error) {
	v, err := p.store.GetField(ctx, p.key, appField(workflowID))
	return v == "1", err
}

// AuthenticatedBackend reports whether a backend authentication succeeded
// in this session.
func (p *PortalSession) AuthenticatedBackend(ctx context.Context, backendID string) (bool, error) {
	v, err := p.store.GetField(ctx, p.key, backendField(backendID))
	return v == "1", err
}

// HasLogin reports whether a login is cached for the backend. Used by the
// double-authentication flow, which accepts sessions whose backend flag
// was cleared by a failed second factor.
func (p *PortalSession) HasLogin(ctx context.Context, backendID string) (bool, error) {
	v, err := p.store.GetField(ctx, p.key, loginField(backendID))
	return v != "", err
}

// Login returns the login cached for a backend.
func (p *PortalSession) Login(ctx context.Context, backendID string) (string, error) {
	return p.store.GetField(ctx, p.key, loginField(backendID))
}

// OAuth2Token returns the bearer token referenced for a backend, or "".
func (p *PortalSession) OAuth2Token(ctx context.Context, backendID string) (string, error) {
	if backendID == "" {
		return "", nil
	}
	return p.store.GetField(ctx, p.key, oauth2Field(backendID))
}

// AutologonPassword decrypts the cached password for a backend, used to
// replay credentials during SSO propagation.
func (p *PortalSession) AutologonPassword(ctx context.Context, backendID string) (string, error) {
	ct, err := p.store.GetField(ctx, p.key, passwordField(backendID))
	if err != nil {
		return "", err
	}
	if ct == "" {
		return "", nil
	}
	pt, err := p.enc.Decrypt(ct)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "decrypt autologon password")
	}
	return string(pt), nil
}

// RegisterAuthenticationInput groups the session writes of a successful
// primary authentication.
type RegisterAuthenticationInput struct {
	WorkflowID      string
	WorkflowName    string
	BackendID       string
	RedirectURL     string
	OTPRepositoryID string
	Login           string
	Password        string
	OAuth2Token     string
	Result          domainportal.AuthResult
	TTL             time.Duration
}

// RegisterAuthentication writes the outcome of a successful backend
// authentication, all fields scoped with the workflow auth timeout.
func (p *PortalSession) RegisterAuthentication(ctx context.Context, in RegisterAuthenticationInput) error {
	fields := map[string]string{
		appField(in.WorkflowID):    "1",
		urlField(in.WorkflowID):    in.RedirectURL,
		backendField(in.BackendID): "1",
		loginField(in.BackendID):   in.Login,
		fieldUserEmail:             in.Result.Email,
		fieldUserPhone:             in.Result.Phone,
	}
	if in.OAuth2Token != "" {
		fields[oauth2Field(in.BackendID)] = in.OAuth2Token
	}
	if in.Password != "" {
		ct, err := p.enc.Encrypt([]byte(in.Password))
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encrypt autologon password")
		}
		fields[passwordField(in.BackendID)] = ct
	}
	for k, v := range in.Result.Attrs {
		fields[k] = v
	}
	return p.store.SetFields(ctx, p.key, fields, in.TTL)
}

// RegisterSSOInput groups the session writes of an SSO propagation.
type RegisterSSOInput struct {
	WorkflowID  string
	BackendID   string
	RedirectURL string
	Login       string
	OAuth2Token string
	TTL         time.Duration
}

// RegisterSSO marks a new workflow authenticated from credentials already
// bound to backendID, without re-collecting them from the user.
func (p *PortalSession) RegisterSSO(ctx context.Context, in RegisterSSOInput) error {
	fields := map[string]string{
		appField(in.WorkflowID):  "1",
		urlField(in.WorkflowID):  in.RedirectURL,
		loginField(in.BackendID): in.Login,
	}
	if in.OAuth2Token != "" {
		fields[oauth2Field(in.BackendID)] = in.OAuth2Token
	}
	return p.store.SetFields(ctx, p.key, fields, in.TTL)
}

// RegisterDoubleAuthentication sets the double-authentication flag for an
// OTP repository, scoped with the same TTL as the session.
func (p *PortalSession) RegisterDoubleAuthentication(ctx context.Context, otpRepoID string, ttl time.Duration) error {
	return p.store.SetFields(ctx, p.key, map[string]string{doubleAuthField(otpRepoID): "1"}, ttl)
}

// IsDoubleAuthenticated reports whether the second factor completed for
// the OTP repository.
func (p *PortalSession) IsDoubleAuthenticated(ctx context.Context, otpRepoID string) (bool, error) {
	v, err := p.store.GetField(ctx, p.key, doubleAuthField(otpRepoID))
	return v == "1", err
}

// OTPKey returns the pending one-time secret, or "".
func (p *PortalSession) OTPKey(ctx context.Context) (string, error) {
	return p.store.GetField(ctx, p.key, fieldOTPKey)
}

// SetOTPKey caches a freshly issued one-time secret.
func (p *PortalSession) SetOTPKey(ctx context.Context, key string, ttl time.Duration) error {
	return p.store.SetFields(ctx, p.key, map[string]string{fieldOTPKey: key}, ttl)
}

// IncrementOTPRetries bumps the failed-verification counter and returns
// the new value. The counter is monotone within a session lifetime.
func (p *PortalSession) IncrementOTPRetries(ctx context.Context, ttl time.Duration) (int64, error) {
	return p.store.IncrField(ctx, p.key, fieldOTPRetries, ttl)
}

// RegisterCaptcha stores the expected challenge answer for a workflow.
func (p *PortalSession) RegisterCaptcha(ctx context.Context, workflowID, token string, ttl time.Duration) error {
	return p.store.SetFields(ctx, p.key, map[string]string{captchaField(workflowID): token}, ttl)
}

// Captcha returns the challenge answer registered for a workflow, or "".
func (p *PortalSession) Captcha(ctx context.Context, workflowID string) (string, error) {
	return p.store.GetField(ctx, p.key, captchaField(workflowID))
}

// StoredURL returns the redirect URL cached for a workflow, or "".
func (p *PortalSession) StoredURL(ctx context.Context, workflowID string) (string, error) {
	return p.store.GetField(ctx, p.key, urlField(workflowID))
}

// UserEmail returns the mail claim cached by the winning backend.
func (p *PortalSession) UserEmail(ctx context.Context) (string, error) {
	return p.store.GetField(ctx, p.key, fieldUserEmail)
}

// UserPhone returns the phone claim cached by the winning backend.
func (p *PortalSession) UserPhone(ctx context.Context) (string, error) {
	return p.store.GetField(ctx, p.key, fieldUserPhone)
}

// Deauthenticate clears the authenticated flags for a workflow/backend
// pair while keeping the cached login, forcing a fresh primary
// authentication. Used when the OTP retry budget is exhausted.
func (p *PortalSession) Deauthenticate(ctx context.Context, workflowID, backendID string, ttl time.Duration) error {
	if err := p.store.DeleteFields(ctx, p.key, appField(workflowID), backendField(backendID), fieldOTPKey); err != nil {
		return err
	}
	return p.store.Expire(ctx, p.key, ttl)
}

// Destroy removes the whole session and every OAuth2 session it
// references. Logout must invalidate both together or a bearer token
// would outlive the portal session that minted it.
func (p *PortalSession) Destroy(ctx context.Context) error {
	fields, err := p.store.GetAllFields(ctx, p.key)
	if err != nil {
		return err
	}
	for name, token := range fields {
		if !strings.HasPrefix(name, oauth2KeyPrefix) || token == "" {
			continue
		}
		if derr := NewOAuth2Session(p.store, token).Destroy(ctx); derr != nil {
			return derr
		}
	}
	return p.store.Delete(ctx, p.key)
}

// OAuth2Session is the typed accessor over one bearer token's hash.
// Its lifecycle is independent from the portal session.
type OAuth2Session struct {
	store ports.SessionStore
	token string
}

// NewOAuth2Session wraps the OAuth2 session for a bearer token.
func NewOAuth2Session(store ports.SessionStore, token string) *OAuth2Session {
	return &OAuth2Session{store: store, token: token}
}

// Token returns the bearer token value.
func (o *OAuth2Session) Token() string { return o.token }

// Exists reports whether the token still references a live session.
func (o *OAuth2Session) Exists(ctx context.Context) (bool, error) {
	if o.token == "" {
		return false, nil
	}
	return o.store.Exists(ctx, oauth2KeyPrefix+o.token)
}

// Register writes the grant policy under the token, scoped with the
// policy TTL.
func (o *OAuth2Session) Register(ctx context.Context, policy domainportal.OAuth2Policy) error {
	fields := map[string]string{
		"scope":             policy.Scope,
		"token_return_type": string(policy.TokenReturnType),
		"token_ttl":         strconv.Itoa(int(policy.TokenTTL / time.Second)),
	}
	return o.store.SetFields(ctx, oauth2KeyPrefix+o.token, fields, policy.TokenTTL)
}

// Policy reads back the grant policy stored under the token.
func (o *OAuth2Session) Policy(ctx context.Context) (domainportal.OAuth2Policy, error) {
	m, err := o.store.GetAllFields(ctx, oauth2KeyPrefix+o.token)
	if err != nil {
		return domainportal.OAuth2Policy{}, err
	}
	if len(m) == 0 {
		return domainportal.OAuth2Policy{}, apperrors.NotFoundf("oauth2 session %q not found", o.token)
	}
	ttlSec, err := strconv.Atoi(m["token_ttl"])
	if err != nil {
		return domainportal.OAuth2Policy{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "parse oauth2 token_ttl")
	}
	return domainportal.OAuth2Policy{
		Scope:           m["scope"],
		TokenReturnType: domainportal.TokenReturnType(m["token_return_type"]),
		TokenTTL:        time.Duration(ttlSec) * time.Second,
	}, nil
}

// Destroy invalidates the token.
func (o *OAuth2Session) Destroy(ctx context.Context) error {
	if o.token == "" {
		return nil
	}
	return o.store.Delete(ctx, oauth2KeyPrefix+o.token)
}
