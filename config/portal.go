package config

import "time"

// PortalConfig groups portal flow defaults applied when a workflow does
// not override them.
type PortalConfig struct {
	// DefaultAuthTimeout scopes session and token lifetimes for
	// workflows created without an explicit timeout.
	DefaultAuthTimeout time.Duration `env:"PORTAL_DEFAULT_AUTH_TIMEOUT" envDefault:"15m"`

	// OTPKeyLength is the length of generated email one-time keys.
	OTPKeyLength int `env:"PORTAL_OTP_KEY_LENGTH" envDefault:"8"`

	// TOTPIssuer names the portal in authenticator apps.
	TOTPIssuer string `env:"PORTAL_TOTP_ISSUER" envDefault:"guardgate"`
}

// Sanitize applies guardrails to portal configuration values.
func (p *PortalConfig) Sanitize() {
	if p.DefaultAuthTimeout <= 0 {
		p.DefaultAuthTimeout = 15 * time.Minute
	}
	const minKeyLength, maxKeyLength = 4, 32
	if p.OTPKeyLength < minKeyLength {
		p.OTPKeyLength = minKeyLength
	}
	if p.OTPKeyLength > maxKeyLength {
		p.OTPKeyLength = maxKeyLength
	}
}
