package otp

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	apperrors "github.com/guardgate/portal/internal/errors"
	"github.com/guardgate/portal/internal/ports"
)

// SMTPConfig describes the outbound mail relay.
type SMTPConfig struct {
	// Addr is host:port of the relay.
	Addr string
	// Username and Password enable PLAIN authentication when set.
	Username string
	Password string
	// ImplicitTLS dials SMTPS instead of STARTTLS upgrade.
	ImplicitTLS bool
}

// SMTPSender implements ports.MailSender over an SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender constructs a mail sender for the given relay.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send submits the message to the relay. The context deadline is not
// plumbed into the SMTP dialer; relay timeouts bound the call instead.
func (s *SMTPSender) Send(ctx context.Context, msg ports.MailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return apperrors.Validation("mail recipient is required")
	}

	var auth sasl.Client
	if s.cfg.Username != "" {
		auth = sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	}
	body := strings.NewReader(formatMessage(msg))

	var err error
	if s.cfg.ImplicitTLS {
		err = smtp.SendMailTLS(s.cfg.Addr, auth, msg.From, []string{msg.To}, body)
	} else {
		err = smtp.SendMail(s.cfg.Addr, auth, msg.From, []string{msg.To}, body)
	}
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "smtp send via %s", s.cfg.Addr)
	}
	return nil
}

func formatMessage(msg ports.MailMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.String()
}
