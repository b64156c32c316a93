package internalauth

// Package internalauth authenticates against the portal's own user
// database.

import (
	"context"
	"log/slog"
	"time"

	"github.com/guardgate/portal/internal/data"
	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
)

// Provider implements ports.Authenticator over the internal user table.
type Provider struct {
	users  *data.UserRepo
	logger *slog.Logger
	now    func() time.Time
}

// NewProvider constructs an internal-database authenticator.
func NewProvider(users *data.UserRepo, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{users: users, logger: logger.With("component", "internalauth"), now: time.Now}
}

// Authenticate verifies a login/password pair against the stored bcrypt
// hash. Unknown logins and wrong passwords both surface as a generic
// authentication failure; the distinction is only logged.
func (p *Provider) Authenticate(ctx context.Context, login, secret string) (domainportal.AuthResult, error) {
	user, err := p.users.GetByLogin(ctx, login)
	if err != nil {
		if apperrors.IsNotFound(err) {
			p.logger.InfoContext(ctx, "unknown login", "login", login)
			return domainportal.AuthResult{}, apperrors.Authentication("invalid credentials")
		}
		return domainportal.AuthResult{}, err
	}
	if err := data.CheckPassword(user, secret); err != nil {
		p.logger.InfoContext(ctx, "password mismatch", "login", login)
		return domainportal.AuthResult{}, err
	}

	result := domainportal.AuthResult{
		Login:           user.Login,
		AccountLocked:   user.Locked,
		PasswordExpired: user.PasswordIsExpired(p.now()),
	}
	if user.Email != nil {
		result.Email = *user.Email
	}
	if user.Phone != nil {
		result.Phone = *user.Phone
	}
	return result, nil
}
