package otp

import (
	"context"
	"log/slog"

	"github.com/pquerna/otp/totp"

	apperrors "github.com/guardgate/portal/internal/errors"
	"github.com/guardgate/portal/internal/ports"
)

// TOTPProvider enrolls users with a time-based shared secret and
// verifies authenticator codes against it. The secret is the session
// key; the provisioning URL is surfaced as the enrollment challenge so
// the portal can render a QR code on first use.
type TOTPProvider struct {
	issuer string
	logger *slog.Logger
}

// NewTOTPProvider constructs a TOTP provider. The issuer names the
// portal in authenticator apps.
func NewTOTPProvider(issuer string, logger *slog.Logger) *TOTPProvider {
	if issuer == "" {
		issuer = "portal"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TOTPProvider{issuer: issuer, logger: logger.With("component", "otp.totp")}
}

// Register generates a fresh shared secret. Nothing is dispatched; the
// user scans the provisioning URL.
func (p *TOTPProvider) Register(ctx context.Context, in ports.OTPRegisterInput) (ports.OTPIssue, error) {
	account := in.Login
	if account == "" {
		account = in.Email
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: account,
	})
	if err != nil {
		return ports.OTPIssue{}, apperrors.Wrap(err, apperrors.ErrCodeOTP, "generate totp secret")
	}
	p.logger.InfoContext(ctx, "totp secret enrolled", "workflow", in.WorkflowID)
	return ports.OTPIssue{Key: key.Secret(), Challenge: key.URL()}, nil
}

// Verify validates an authenticator code against the shared secret for
// the current time step.
func (p *TOTPProvider) Verify(_ context.Context, key, submitted string) error {
	if key == "" || !totp.Validate(submitted, key) {
		return apperrors.Authentication("submitted one-time code does not match")
	}
	return nil
}
