package config

import (
	"strings"
	"time"
)

// MailConfig contains the SMTP relay used for email one-time keys.
type MailConfig struct {
	Addr        string `env:"ADDR"         envDefault:"localhost:587"`
	Username    string `env:"USERNAME"     envDefault:""`
	Password    string `env:"PASSWORD"     envDefault:""`
	ImplicitTLS bool   `env:"IMPLICIT_TLS" envDefault:"false"`
	// From is the default sender when a workflow sets none.
	From string `env:"FROM" envDefault:"no-reply@localhost"`
}

// SMSConfig contains the HTTP SMS gateway used for phone one-time keys.
type SMSConfig struct {
	WebhookURL string        `env:"WEBHOOK_URL" envDefault:""`
	APIKey     string        `env:"API_KEY"     envDefault:""`
	Timeout    time.Duration `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"RETRY_LIMIT" envDefault:"3"`
}

// Sanitize normalises SMS gateway configuration values.
func (c *SMSConfig) Sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
}

// IsConfigured reports whether an SMS gateway is available.
func (c *SMSConfig) IsConfigured() bool {
	return c.WebhookURL != ""
}
