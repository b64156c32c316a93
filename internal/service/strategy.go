package service

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
	"github.com/guardgate/portal/internal/ports"
)

// Form field names carried by the portal templates. Kept deliberately
// obscure so protected applications behind the portal never collide.
const (
	FieldLogin       = "vltprtlsrnm"
	FieldPassword    = "vltprtlpsswrd"
	FieldCaptcha     = "vltprtlcaptcha"
	FieldOTPKey      = "vltprtlkey"
	FieldOTPResend   = "vltotpresend"
	FieldOTPWorkflow = "vltprtl2fa"
)

// Request is the transport-level input a credential strategy reads:
// parsed form fields and headers. Strategies never touch the network.
type Request struct {
	Form   url.Values
	Header http.Header
}

// NewRequest extracts the strategy-visible parts of an HTTP request.
// ParseForm errors are ignored; absent fields fail in the strategy with
// a credentials error, which is the user-correctable outcome we want.
func NewRequest(r *http.Request) *Request {
	_ = r.ParseForm()
	return &Request{Form: r.Form, Header: r.Header}
}

// CredentialStrategy extracts raw credentials from an inbound request.
// One variant exists per authentication method; the orchestrator depends
// only on this interface.
type CredentialStrategy interface {
	RetrieveCredentials(r *Request) (domainportal.Credentials, error)
}

// StrategyFor returns the credential strategy for a workflow auth type.
func StrategyFor(t domainportal.AuthType) CredentialStrategy {
	switch t {
	case domainportal.AuthTypeBasic:
		return BasicStrategy{}
	case domainportal.AuthTypeKerberos:
		return NegotiateStrategy{}
	default:
		return FormStrategy{}
	}
}

// FormStrategy reads the login and password fields posted by the portal
// login form.
type FormStrategy struct{}

func (FormStrategy) RetrieveCredentials(r *Request) (domainportal.Credentials, error) {
	login := r.Form.Get(FieldLogin)
	password := r.Form.Get(FieldPassword)
	if login == "" || password == "" {
		return domainportal.Credentials{}, apperrors.Credentials("missing login or password field")
	}
	return domainportal.Credentials{Login: login, Secret: password}, nil
}

// BasicStrategy decodes an HTTP Basic Authorization header into an
// identity/secret pair.
type BasicStrategy struct{}

func (BasicStrategy) RetrieveCredentials(r *Request) (domainportal.Credentials, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Basic ") {
		return domainportal.Credentials{}, apperrors.Credentials("missing basic authorization header")
	}
	encoded := strings.TrimPrefix(header, "Basic ")
	if pad := len(encoded) % 4; pad != 0 {
		encoded += strings.Repeat("=", 4-pad)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domainportal.Credentials{}, apperrors.Wrap(err, apperrors.ErrCodeCredentials,
			"malformed basic authorization header")
	}
	login, secret, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return domainportal.Credentials{}, apperrors.Credentials("basic authorization header has no separator")
	}
	return domainportal.Credentials{Login: login, Secret: secret}, nil
}

// NegotiateStrategy extracts the raw Kerberos Negotiate token. The token
// is opaque to the portal; it is handed as-is to the backend's
// token-based authenticate operation.
type NegotiateStrategy struct{}

func (NegotiateStrategy) RetrieveCredentials(r *Request) (domainportal.Credentials, error) {
	token, err := NegotiateStrategy{}.RetrieveToken(r)
	if err != nil {
		return domainportal.Credentials{}, err
	}
	return domainportal.Credentials{Secret: base64.StdEncoding.EncodeToString(token)}, nil
}

// RetrieveToken decodes the Negotiate header into the raw SPNEGO token
// bytes consumed by the Kerberos backend.
func (NegotiateStrategy) RetrieveToken(r *Request) ([]byte, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Negotiate ") {
		return nil, apperrors.Credentials("missing negotiate authorization header")
	}
	token, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Negotiate "))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeCredentials, "malformed negotiate token")
	}
	return token, nil
}

// CreateCaptcha registers a fresh challenge token against this session
// and returns it for rendering. Token presentation (image generation) is
// outside the core.
func (a *Authentication) CreateCaptcha(ctx context.Context, provider ports.ChallengeProvider) (string, error) {
	token, err := provider.NewChallenge(captchaLength)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "generate captcha challenge")
	}
	ttl := a.workflow.Authentication.AuthTimeout
	if err := a.session.RegisterCaptcha(ctx, a.workflow.ID, token, ttl); err != nil {
		return "", err
	}
	return token, nil
}

const captchaLength = 6

// VerifyCaptcha enforces the form captcha precondition: when the workflow
// enables it, the submitted answer must equal the challenge registered
// against this session. A mismatch is a hard credentials failure, not a
// retryable authentication error.
func (a *Authentication) VerifyCaptcha(ctx context.Context, submitted string) error {
	if !a.workflow.Authentication.EnableCaptcha {
		return nil
	}
	expected, err := a.session.Captcha(ctx, a.workflow.ID)
	if err != nil {
		return err
	}
	if expected == "" || submitted != expected {
		return apperrors.Credentials("captcha verification failed")
	}
	return nil
}
