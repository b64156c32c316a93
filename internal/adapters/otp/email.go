package otp

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/guardgate/portal/internal/errors"
	"github.com/guardgate/portal/internal/ports"
)

const defaultEmailKeyLength = 8

// EmailProvider issues one-time keys delivered over email. Verification
// is plain equality and handled by the caller; Verify exists to satisfy
// the provider contract.
type EmailProvider struct {
	mail      ports.MailSender
	from      string
	keyLength int
	logger    *slog.Logger
}

// EmailProviderOptions configures an EmailProvider.
type EmailProviderOptions struct {
	Mail ports.MailSender
	// From is the fallback sender when the workflow sets none.
	From      string
	KeyLength int
	Logger    *slog.Logger
}

// NewEmailProvider constructs an email one-time-key provider.
func NewEmailProvider(opts EmailProviderOptions) *EmailProvider {
	if opts.KeyLength <= 0 {
		opts.KeyLength = defaultEmailKeyLength
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &EmailProvider{
		mail:      opts.Mail,
		from:      opts.From,
		keyLength: opts.KeyLength,
		logger:    opts.Logger.With("component", "otp.email"),
	}
}

// Register generates a fresh key and mails it to the user.
func (p *EmailProvider) Register(ctx context.Context, in ports.OTPRegisterInput) (ports.OTPIssue, error) {
	key, err := randomKey(keyAlphabet, p.keyLength)
	if err != nil {
		return ports.OTPIssue{}, err
	}
	from := in.Sender
	if from == "" {
		from = p.from
	}
	msg := ports.MailMessage{
		From:    from,
		To:      in.Email,
		Subject: fmt.Sprintf("Authentication key for %s", in.WorkflowName),
		Body: fmt.Sprintf("Hello %s,\r\n\r\nYour one-time authentication key is: %s\r\n",
			in.Login, key),
	}
	if err := p.mail.Send(ctx, msg); err != nil {
		return ports.OTPIssue{}, apperrors.Wrap(err, apperrors.ErrCodeOTP, "send one-time key mail")
	}
	p.logger.InfoContext(ctx, "one-time key mailed", "to", in.Email, "workflow", in.WorkflowID)
	return ports.OTPIssue{Key: key}, nil
}

// Verify compares by equality; a mismatch is an authentication failure.
func (p *EmailProvider) Verify(_ context.Context, key, submitted string) error {
	if key == "" || key != submitted {
		return apperrors.Authentication("submitted one-time key does not match")
	}
	return nil
}
