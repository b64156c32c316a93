package portal

// Package portal contains domain-level types for the captive-portal
// authentication flow. It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
	"time"
)

// RepositoryKind identifies the flavour of an identity backend.
// Keep string form for easy persistence and logging.
type RepositoryKind string

const (
	RepoKindInternal RepositoryKind = "internal"
	RepoKindLDAP     RepositoryKind = "ldap"
	RepoKindKerberos RepositoryKind = "kerberos"
	RepoKindOTP      RepositoryKind = "otp"
)

// UnmarshalText implements encoding.TextUnmarshaler for RepositoryKind.
func (k *RepositoryKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "internal", "ldap", "kerberos", "otp":
		*k = RepositoryKind(v)
		return nil
	default:
		return fmt.Errorf("invalid repository kind %q (valid: internal, ldap, kerberos, otp)", string(text))
	}
}

// OTPType selects the second-factor delivery mechanism of an OTP repository.
type OTPType string

const (
	OTPTypeEmail OTPType = "email"
	OTPTypePhone OTPType = "phone"
	OTPTypeTOTP  OTPType = "totp"
)

// UnmarshalText implements encoding.TextUnmarshaler for OTPType.
func (o *OTPType) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "email", "phone", "totp":
		*o = OTPType(v)
		return nil
	default:
		return fmt.Errorf("invalid otp type %q (valid: email, phone, totp)", string(text))
	}
}

// OTPConfig carries the second-factor settings of an OTP repository.
type OTPConfig struct {
	Type OTPType
	// PhoneService names the SMS gateway used for phone delivery
	// (e.g. "authy"). Phone services that key on email still require a
	// mail claim at issuance time.
	PhoneService string
	MaxRetry     int
}

// Repository describes an identity backend referenced by a workflow.
// The concrete authenticator lives behind ports.BackendDirectory; the
// descriptor only carries what the orchestrator needs for dispatch.
type Repository struct {
	ID   string
	Name string
	Kind RepositoryKind
	// OTP is set only for RepoKindOTP repositories.
	OTP *OTPConfig
}

func (r Repository) String() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// AuthType selects the credential-collection method of a workflow.
type AuthType string

const (
	AuthTypeForm     AuthType = "form"
	AuthTypeBasic    AuthType = "basic"
	AuthTypeKerberos AuthType = "kerberos"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthType.
func (a *AuthType) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "form", "basic", "kerberos":
		*a = AuthType(v)
		return nil
	default:
		return fmt.Errorf("invalid auth type %q (valid: form, basic, kerberos)", string(text))
	}
}

// AuthPolicy binds a workflow to its identity backends and session policy.
type AuthPolicy struct {
	Enabled         bool
	AuthType        AuthType
	RepositoryID    string
	FallbackIDs     []string
	OTPRepositoryID string
	AuthTimeout     time.Duration
	EnableCaptcha   bool
	OTPMaxRetry     int
	EmailFrom       string
}

// Workflow is the configured binding of a protected application to
// identity backends. Immutable for the duration of one flow; owned by
// configuration and referenced by the core.
type Workflow struct {
	ID          string
	Name        string
	RedirectURI string
	TemplateID  string
	PublicDir   string

	Authentication *AuthPolicy
}

// RequiresAuthentication reports whether the workflow has an enabled
// authentication policy.
func (w Workflow) RequiresAuthentication() bool {
	return w.Authentication != nil && w.Authentication.Enabled
}

// BackendIDs returns the primary repository id followed by the fallback
// ids, in configured order. The orchestrator folds over this list.
func (w Workflow) BackendIDs() []string {
	if w.Authentication == nil {
		return nil
	}
	ids := make([]string, 0, len(w.Authentication.FallbackIDs)+1)
	ids = append(ids, w.Authentication.RepositoryID)
	ids = append(ids, w.Authentication.FallbackIDs...)
	return ids
}

// Credentials is the ordered (identity, secret) pair collected by a
// credential strategy. Request-scoped scratch state.
type Credentials struct {
	Login  string
	Secret string
}

// TokenReturnType selects how an issued bearer token is returned.
type TokenReturnType string

const (
	TokenReturnHeader TokenReturnType = "header"
	TokenReturnJSON   TokenReturnType = "json"
	TokenReturnBoth   TokenReturnType = "both"
)

// UnmarshalText implements encoding.TextUnmarshaler for TokenReturnType.
func (t *TokenReturnType) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "header", "json", "both":
		*t = TokenReturnType(v)
		return nil
	default:
		return fmt.Errorf("invalid token return type %q (valid: header, json, both)", string(text))
	}
}

// OAuth2Policy describes the bearer-token grant attached to an
// authentication result.
type OAuth2Policy struct {
	Scope           string          `json:"scope"`
	TokenReturnType TokenReturnType `json:"token_return_type"`
	TokenTTL        time.Duration   `json:"token_ttl"`
}

// DefaultOAuth2Policy is the grant applied to internal-backend results,
// scoped to the workflow's auth timeout.
func DefaultOAuth2Policy(ttl time.Duration) *OAuth2Policy {
	return &OAuth2Policy{
		Scope:           "{}",
		TokenReturnType: TokenReturnBoth,
		TokenTTL:        ttl,
	}
}

// AuthResult is the backend-agnostic authentication outcome. Backends
// other than the internal store return this shape directly; internal
// results are normalized by the orchestrator.
type AuthResult struct {
	Login           string
	DN              string
	Email           string
	Phone           string
	AccountLocked   bool
	PasswordExpired bool
	OAuth2          *OAuth2Policy
	// Attrs carries auxiliary claims propagated into the portal session.
	Attrs map[string]string
}

// PlaceholderClaim reports whether a contact claim is absent or one of
// the placeholder values backends emit for missing directory fields.
func PlaceholderClaim(v string) bool {
	switch v {
	case "", "None", "N/A":
		return true
	}
	return false
}

// RedirectionNeededError signals that a workflow does not require
// authentication and where the caller should send the user. It is a
// control-flow outcome, not a failure.
type RedirectionNeededError struct {
	Reason   string
	Location string
}

func (e *RedirectionNeededError) Error() string {
	return e.Reason
}
