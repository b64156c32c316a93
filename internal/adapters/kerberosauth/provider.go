package kerberosauth

// Package kerberosauth validates SPNEGO tokens presented through the
// Negotiate authorization scheme against a service keytab.

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/service"
	"github.com/jcmturner/gokrb5/v8/spnego"
	"github.com/jcmturner/goidentity/v6"

	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
)

// ctxKeyCredentials mirrors the unexported spnego context key holding
// the goidentity.Identity of the authenticated client.
const ctxKeyCredentials = "github.com/jcmturner/gokrb5/v8/ctxCredentials"

// Config describes one Kerberos repository.
type Config struct {
	// KeytabFile holds the service principal keys.
	KeytabFile string
	// ServicePrincipal restricts accepted tickets to one SPN. Empty
	// accepts any principal present in the keytab.
	ServicePrincipal string
	// Realm is appended to form the user DN claim (user@REALM).
	Realm string
}

// Provider implements ports.TokenAuthenticator using a service keytab.
type Provider struct {
	cfg    Config
	svc    *spnego.SPNEGO
	logger *slog.Logger
}

// NewProvider loads the keytab and prepares the SPNEGO acceptor.
func NewProvider(cfg Config, logger *slog.Logger) (*Provider, error) {
	kt, err := keytab.Load(cfg.KeytabFile)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal,
			"load keytab %s", cfg.KeytabFile)
	}
	if logger == nil {
		logger = slog.Default()
	}
	var settings []func(*service.Settings)
	if cfg.ServicePrincipal != "" {
		settings = append(settings, service.SName(cfg.ServicePrincipal))
	}
	return &Provider{
		cfg:    cfg,
		svc:    spnego.SPNEGOService(kt, settings...),
		logger: logger.With("component", "kerberosauth"),
	}, nil
}

// AuthenticateToken validates a raw SPNEGO token and extracts the
// authenticated principal. Malformed or rejected tokens fail with an
// authentication error so a fallback backend can still be tried.
func (p *Provider) AuthenticateToken(ctx context.Context, token []byte) (domainportal.AuthResult, error) {
	var st spnego.SPNEGOToken
	if err := st.Unmarshal(token); err != nil {
		return domainportal.AuthResult{}, apperrors.Wrap(err, apperrors.ErrCodeAuthentication,
			"malformed spnego token")
	}
	ok, spnegoCtx, status := p.svc.AcceptSecContext(&st)
	if !ok {
		p.logger.InfoContext(ctx, "spnego context rejected", "status", status.Message)
		return domainportal.AuthResult{}, apperrors.Authenticationf(
			"kerberos ticket rejected: %s", status.Message)
	}

	// gokrb5 stores the identity under an unexported context key; the
	// key's string value is part of the library's stable wire-up.
	id, ok := spnegoCtx.Value(ctxKeyCredentials).(goidentity.Identity)
	if !ok || id.UserName() == "" {
		return domainportal.AuthResult{}, apperrors.Authentication("kerberos ticket carries no identity")
	}

	principal := id.UserName()
	realm := id.Domain()
	if realm == "" {
		realm = p.cfg.Realm
	}
	p.logger.InfoContext(ctx, "kerberos ticket accepted", "principal", principal, "realm", realm)
	return domainportal.AuthResult{
		Login: principal,
		DN:    formatPrincipal(principal, realm),
	}, nil
}

func formatPrincipal(user, realm string) string {
	if realm == "" || strings.Contains(user, "@") {
		return user
	}
	return fmt.Sprintf("%s@%s", user, strings.ToUpper(realm))
}
