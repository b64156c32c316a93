package ldapauth

// Package ldapauth authenticates against an LDAP directory with a
// search-then-bind flow and enforces group membership (ACLs).

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"

	domainportal "github.com/guardgate/portal/internal/domain/portal"
	apperrors "github.com/guardgate/portal/internal/errors"
)

// Config describes one LDAP repository.
type Config struct {
	// URL is an ldap:// or ldaps:// endpoint.
	URL string
	// BindDN and BindPassword are the service account used for the
	// user search. Empty BindDN means anonymous search.
	BindDN       string
	BindPassword string
	// BaseDN is the subtree searched for user entries.
	BaseDN string
	// LoginAttribute matches the submitted login (uid, sAMAccountName).
	LoginAttribute string
	// EmailAttribute and PhoneAttribute feed second-factor delivery.
	EmailAttribute string
	PhoneAttribute string
	// RequiredGroups lists group DNs the user must belong to. Empty
	// means no ACL restriction.
	RequiredGroups []string
	// MemberAttribute is the user attribute listing group DNs
	// (memberOf by default).
	MemberAttribute string
	DialTimeout     time.Duration
}

func (c *Config) sanitize() {
	if c.LoginAttribute == "" {
		c.LoginAttribute = "uid"
	}
	if c.EmailAttribute == "" {
		c.EmailAttribute = "mail"
	}
	if c.MemberAttribute == "" {
		c.MemberAttribute = "memberOf"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
}

// Provider implements ports.Authenticator over an LDAP directory.
type Provider struct {
	cfg    Config
	logger *slog.Logger
	dial   func() (ldapConn, error)
}

// ldapConn is the slice of *ldap.Conn the provider needs; tests swap it.
type ldapConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// NewProvider constructs an LDAP authenticator for one repository.
func NewProvider(cfg Config, logger *slog.Logger) *Provider {
	cfg.sanitize()
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{cfg: cfg, logger: logger.With("component", "ldapauth")}
	p.dial = func() (ldapConn, error) {
		return ldap.DialURL(cfg.URL,
			ldap.DialWithDialer(&net.Dialer{Timeout: cfg.DialTimeout}))
	}
	return p
}

// Authenticate searches the directory for the login, binds as the found
// entry with the submitted secret, and checks group ACLs. Directory
// outages map to internal errors so the fallback chain can continue;
// bad credentials and ACL denials are terminal for this backend.
func (p *Provider) Authenticate(ctx context.Context, login, secret string) (domainportal.AuthResult, error) {
	if secret == "" {
		// An empty password would trigger an unauthenticated bind and
		// succeed against most servers.
		return domainportal.AuthResult{}, apperrors.Credentials("empty password")
	}
	conn, err := p.dial()
	if err != nil {
		return domainportal.AuthResult{}, apperrors.Wrapf(err, apperrors.ErrCodeInternal,
			"dial ldap %s", p.cfg.URL)
	}
	defer func() { _ = conn.Close() }()

	entry, err := p.findUser(conn, login)
	if err != nil {
		return domainportal.AuthResult{}, err
	}

	if err := conn.Bind(entry.DN, secret); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			p.logger.InfoContext(ctx, "ldap bind rejected", "login", login, "dn", entry.DN)
			return domainportal.AuthResult{}, apperrors.Authentication("invalid credentials")
		}
		return domainportal.AuthResult{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "ldap user bind")
	}

	if err := p.checkGroups(entry); err != nil {
		p.logger.InfoContext(ctx, "ldap acl denied", "login", login, "dn", entry.DN)
		return domainportal.AuthResult{}, err
	}

	return domainportal.AuthResult{
		Login: login,
		DN:    entry.DN,
		Email: entry.GetAttributeValue(p.cfg.EmailAttribute),
		Phone: entry.GetAttributeValue(p.cfg.PhoneAttribute),
	}, nil
}

func (p *Provider) findUser(conn ldapConn, login string) (*ldap.Entry, error) {
	if p.cfg.BindDN != "" {
		if err := conn.Bind(p.cfg.BindDN, p.cfg.BindPassword); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "ldap service bind")
		}
	}
	attrs := []string{"dn", p.cfg.EmailAttribute, p.cfg.MemberAttribute}
	if p.cfg.PhoneAttribute != "" {
		attrs = append(attrs, p.cfg.PhoneAttribute)
	}
	req := ldap.NewSearchRequest(
		p.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(%s=%s)", p.cfg.LoginAttribute, ldap.EscapeFilter(login)),
		attrs, nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "ldap user search")
	}
	switch len(res.Entries) {
	case 0:
		return nil, apperrors.Authentication("invalid credentials")
	case 1:
		return res.Entries[0], nil
	default:
		return nil, apperrors.Authenticationf("login %q matches %d directory entries", login, len(res.Entries))
	}
}

func (p *Provider) checkGroups(entry *ldap.Entry) error {
	if len(p.cfg.RequiredGroups) == 0 {
		return nil
	}
	member := map[string]bool{}
	for _, g := range entry.GetAttributeValues(p.cfg.MemberAttribute) {
		member[g] = true
	}
	for _, required := range p.cfg.RequiredGroups {
		if member[required] {
			return nil
		}
	}
	return apperrors.ACL("you are not allowed to access this application, please contact your administrator")
}
