package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and session store configuration
//   - http.go: HTTP server configuration
//   - portal.go: Portal flow defaults
//   - backends.go: LDAP and Kerberos repository endpoints
//   - delivery.go: One-time-key delivery (SMTP relay, SMS gateway)
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// SessionEncryptionKey protects autologon passwords at rest in the
	// session store. Required for production.
	SessionEncryptionKey string `env:"SESSION_ENCRYPTION_KEY"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Portal flow defaults
	Portal PortalConfig

	// Identity backend endpoints
	LDAP     LDAPConfig     `envPrefix:"LDAP_"`
	Kerberos KerberosConfig `envPrefix:"KRB_"`

	// One-time-key delivery
	Mail MailConfig `envPrefix:"SMTP_"`
	SMS  SMSConfig  `envPrefix:"SMS_"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Portal.Sanitize()
	c.LDAP.Sanitize()
	c.SMS.Sanitize()
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
