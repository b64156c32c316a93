package ports

// Package ports defines interfaces (hexagonal ports) for the portal's
// authentication behavior. Implementations live in internal/adapters;
// orchestration in internal/service.

import (
	"context"
	"time"

	domainportal "github.com/guardgate/portal/internal/domain/portal"
)

// Authenticator is the uniform contract every identity backend implements.
// Failures are reported through the internal/errors taxonomy
// (authentication, acl, internal); the orchestrator never sees
// backend-native error types.
type Authenticator interface {
	Authenticate(ctx context.Context, login, secret string) (domainportal.AuthResult, error)
}

// TokenAuthenticator is implemented by backends that accept an opaque
// transport token instead of a login/secret pair (Kerberos Negotiate).
type TokenAuthenticator interface {
	AuthenticateToken(ctx context.Context, token []byte) (domainportal.AuthResult, error)
}

// OTPRegisterInput carries the contact channel and flow context for
// issuing a one-time secret.
type OTPRegisterInput struct {
	Email        string
	Phone        string
	Sender       string
	WorkflowID   string
	WorkflowName string
	BackendID    string
	Login        string
}

// OTPIssue is the outcome of a successful one-time secret issuance.
type OTPIssue struct {
	// Key is the secret cached in the portal session. For trivial
	// delivery types the user submits it back verbatim; for TOTP it is
	// the shared secret the verification call consumes.
	Key string
	// Challenge optionally carries a user-facing enrollment token
	// (e.g. a TOTP provisioning URL) to render alongside the prompt.
	Challenge string
}

// OTPProvider issues and verifies one-time secrets for a configured OTP
// repository.
type OTPProvider interface {
	Register(ctx context.Context, in OTPRegisterInput) (OTPIssue, error)
	// Verify checks a submitted key against the cached secret. Providers
	// whose keys are compared by plain equality may return
	// errors with code credentials for empty input and otherwise not be
	// called at all; delegated providers (TOTP, SMS gateways) own the
	// comparison.
	Verify(ctx context.Context, key, submitted string) error
}

// BackendDirectory resolves repository descriptors and their concrete
// authenticators. Configuration-owned and read-only for the core.
type BackendDirectory interface {
	Repository(id string) (domainportal.Repository, error)
	Authenticator(id string) (Authenticator, error)
	TokenAuthenticator(id string) (TokenAuthenticator, error)
	OTPProvider(id string) (OTPProvider, error)
}

// SessionStore is the field-scoped key/value contract the core needs
// from the external session store. Values are scoped by session key and
// logical field name; TTL enforcement is delegated to the store.
type SessionStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	// GetField returns the value for a field, or "" when the field or
	// the key is absent.
	GetField(ctx context.Context, key, field string) (string, error)
	GetAllFields(ctx context.Context, key string) (map[string]string, error)
	// SetFields writes fields and refreshes the key TTL.
	SetFields(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	// IncrField atomically increments a numeric field, refreshing the TTL,
	// and returns the new value.
	IncrField(ctx context.Context, key, field string, ttl time.Duration) (int64, error)
	DeleteFields(ctx context.Context, key string, fields ...string) error
	Delete(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// MailMessage is a one-time-key delivery email.
type MailMessage struct {
	From    string
	To      string
	Subject string
	Body    string
}

// MailSender dispatches one-time keys over email.
type MailSender interface {
	Send(ctx context.Context, msg MailMessage) error
}

// SMSSender dispatches one-time keys to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phone, body string) error
}

// ChallengeProvider generates opaque visual-challenge tokens (captcha).
// Token rendering is outside the core; the portal only registers the
// token against the session and compares the submitted answer.
type ChallengeProvider interface {
	NewChallenge(length int) (string, error)
}
