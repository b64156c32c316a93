package config

import (
	"strings"
	"time"
)

// LDAPConfig contains the directory endpoint shared by LDAP
// repositories.
type LDAPConfig struct {
	URL             string        `env:"URL"              envDefault:""`
	BindDN          string        `env:"BIND_DN"          envDefault:""`
	BindPassword    string        `env:"BIND_PASSWORD"    envDefault:""`
	BaseDN          string        `env:"BASE_DN"          envDefault:""`
	LoginAttribute  string        `env:"LOGIN_ATTRIBUTE"  envDefault:"uid"`
	EmailAttribute  string        `env:"EMAIL_ATTRIBUTE"  envDefault:"mail"`
	PhoneAttribute  string        `env:"PHONE_ATTRIBUTE"  envDefault:"mobile"`
	MemberAttribute string        `env:"MEMBER_ATTRIBUTE" envDefault:"memberOf"`
	RequiredGroups  []string      `env:"REQUIRED_GROUPS"  envDefault:""`
	DialTimeout     time.Duration `env:"DIAL_TIMEOUT"     envDefault:"10s"`
}

// Sanitize normalises LDAP configuration values.
func (c *LDAPConfig) Sanitize() {
	c.URL = strings.TrimSpace(c.URL)
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
}

// IsConfigured reports whether an LDAP endpoint is available.
func (c *LDAPConfig) IsConfigured() bool {
	return c.URL != "" && c.BaseDN != ""
}

// KerberosConfig contains the service keytab used by Kerberos
// repositories.
type KerberosConfig struct {
	KeytabFile       string `env:"KEYTAB_FILE"       envDefault:""`
	ServicePrincipal string `env:"SERVICE_PRINCIPAL" envDefault:""`
	Realm            string `env:"REALM"             envDefault:""`
}

// IsConfigured reports whether a keytab is available.
func (c *KerberosConfig) IsConfigured() bool {
	return c.KeytabFile != ""
}
