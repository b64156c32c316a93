package service

import (
	"context"

	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
)

// OAuth2Authentication issues bearer tokens for pre-validated API
// callers. It reads nothing from the inbound transport; credentials are
// supplied programmatically.
type OAuth2Authentication struct {
	auth  *Authentication
	token string
}

// NewOAuth2Authentication builds a token-issuance flow for a workflow.
func NewOAuth2Authentication(ctx context.Context, opts AuthenticationOptions) (*OAuth2Authentication, error) {
	a, err := NewAuthentication(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &OAuth2Authentication{auth: a}, nil
}

// Token returns the issued (or reused) bearer token.
func (o *OAuth2Authentication) Token() string { return o.token }

// RetrieveCredentials installs the caller-supplied identity and secret.
func (o *OAuth2Authentication) RetrieveCredentials(login, secret string) error {
	if login == "" || secret == "" {
		return apperrors.Credentials("username and password are required")
	}
	o.auth.SetCredentials(domainportal.Credentials{Login: login, Secret: secret})
	return nil
}

// Authenticate returns the grant policy for the caller, reusing a live
// token already referenced by the portal session. Issuance is idempotent
// within a token's lifetime: no new session entry is created while the
// referenced token is unexpired. A token is never minted before primary
// backend authentication succeeds.
func (o *OAuth2Authentication) Authenticate(ctx context.Context) (domainportal.OAuth2Policy, error) {
	token, err := o.auth.session.OAuth2Token(ctx, o.auth.backendID)
	if err != nil {
		return domainportal.OAuth2Policy{}, err
	}
	if token != "" {
		existing := NewOAuth2Session(o.auth.sessions, token)
		live, existsErr := existing.Exists(ctx)
		if existsErr != nil {
			return domainportal.OAuth2Policy{}, existsErr
		}
		if live {
			policy, policyErr := existing.Policy(ctx)
			if policyErr != nil {
				return domainportal.OAuth2Policy{}, policyErr
			}
			o.token = token
			o.auth.logger.DebugContext(ctx, "reusing live oauth2 token", "backend", o.auth.backendID)
			return policy, nil
		}
	}

	result, err := o.auth.Authenticate(ctx)
	if err != nil {
		return domainportal.OAuth2Policy{}, err
	}
	// RegisterUser mints the token and binds it into the portal session so
	// the next issuance call reuses it instead of creating a new entry.
	_, minted, err := o.auth.RegisterUser(ctx, result)
	if err != nil {
		return domainportal.OAuth2Policy{}, err
	}
	o.token = minted
	policy, err := NewOAuth2Session(o.auth.sessions, minted).Policy(ctx)
	if err != nil {
		return domainportal.OAuth2Policy{}, err
	}
	o.auth.logger.DebugContext(ctx, "oauth2 token issued",
		"login", o.auth.creds.Login, "backend", o.auth.backendID)
	return policy, nil
}
