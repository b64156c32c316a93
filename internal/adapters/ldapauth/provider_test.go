package ldapauth

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/guardgate/portal/internal/errors"
)

type fakeConn struct {
	bindErrs   map[string]error
	binds      []string
	searchRes  *ldap.SearchResult
	searchErr  error
	lastSearch *ldap.SearchRequest
	closed     bool
}

func (f *fakeConn) Bind(username, _ string) error {
	f.binds = append(f.binds, username)
	if err, ok := f.bindErrs[username]; ok {
		return err
	}
	return nil
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.lastSearch = req
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchRes, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func testConfig() Config {
	return Config{
		URL:            "ldap://directory.example.com:389",
		BindDN:         "cn=portal,ou=services,dc=example,dc=com",
		BindPassword:   "svc-pw",
		BaseDN:         "ou=people,dc=example,dc=com",
		PhoneAttribute: "mobile",
	}
}

func newTestProvider(cfg Config, conn *fakeConn) *Provider {
	p := NewProvider(cfg, nil)
	p.dial = func() (ldapConn, error) { return conn, nil }
	return p
}

func aliceEntry(groups ...string) *ldap.Entry {
	return ldap.NewEntry("uid=alice,ou=people,dc=example,dc=com", map[string][]string{
		"mail":     {"alice@example.com"},
		"mobile":   {"+33600000000"},
		"memberOf": groups,
	})
}

func singleEntry(e *ldap.Entry) *ldap.SearchResult {
	return &ldap.SearchResult{Entries: []*ldap.Entry{e}}
}

func TestAuthenticateSearchThenBind(t *testing.T) {
	conn := &fakeConn{searchRes: singleEntry(aliceEntry())}
	p := newTestProvider(testConfig(), conn)

	result, err := p.Authenticate(context.Background(), "alice", "pass")
	require.NoError(t, err)

	assert.Equal(t, "alice", result.Login)
	assert.Equal(t, "uid=alice,ou=people,dc=example,dc=com", result.DN)
	assert.Equal(t, "alice@example.com", result.Email)
	assert.Equal(t, "+33600000000", result.Phone)
	// Service bind for the search, then the user bind.
	assert.Equal(t, []string{
		"cn=portal,ou=services,dc=example,dc=com",
		"uid=alice,ou=people,dc=example,dc=com",
	}, conn.binds)
	assert.True(t, conn.closed)
}

func TestAuthenticateRejectsEmptyPassword(t *testing.T) {
	dialed := false
	p := NewProvider(testConfig(), nil)
	p.dial = func() (ldapConn, error) {
		dialed = true
		return &fakeConn{}, nil
	}

	_, err := p.Authenticate(context.Background(), "alice", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCredentials(err))
	assert.False(t, dialed)
}

func TestAuthenticateInvalidCredentials(t *testing.T) {
	conn := &fakeConn{
		searchRes: singleEntry(aliceEntry()),
		bindErrs: map[string]error{
			"uid=alice,ou=people,dc=example,dc=com": ldap.NewError(
				ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials")),
		},
	}
	p := newTestProvider(testConfig(), conn)

	_, err := p.Authenticate(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
}

func TestAuthenticateUnknownUser(t *testing.T) {
	conn := &fakeConn{searchRes: &ldap.SearchResult{}}
	p := newTestProvider(testConfig(), conn)

	_, err := p.Authenticate(context.Background(), "ghost", "pass")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
	// Only the service bind ran; never a user bind for an unknown login.
	assert.Equal(t, []string{"cn=portal,ou=services,dc=example,dc=com"}, conn.binds)
}

func TestAuthenticateAmbiguousLogin(t *testing.T) {
	conn := &fakeConn{searchRes: &ldap.SearchResult{Entries: []*ldap.Entry{
		aliceEntry(), aliceEntry(),
	}}}
	p := newTestProvider(testConfig(), conn)

	_, err := p.Authenticate(context.Background(), "alice", "pass")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
}

func TestAuthenticateGroupACL(t *testing.T) {
	cfg := testConfig()
	cfg.RequiredGroups = []string{"cn=portal-users,ou=groups,dc=example,dc=com"}

	denied := &fakeConn{searchRes: singleEntry(aliceEntry("cn=other,ou=groups,dc=example,dc=com"))}
	_, err := newTestProvider(cfg, denied).Authenticate(context.Background(), "alice", "pass")
	require.Error(t, err)
	assert.True(t, apperrors.IsACL(err))

	allowed := &fakeConn{searchRes: singleEntry(aliceEntry(
		"cn=other,ou=groups,dc=example,dc=com",
		"cn=portal-users,ou=groups,dc=example,dc=com",
	))}
	_, err = newTestProvider(cfg, allowed).Authenticate(context.Background(), "alice", "pass")
	require.NoError(t, err)
}

func TestAuthenticateDirectoryOutageIsInternal(t *testing.T) {
	p := NewProvider(testConfig(), nil)
	p.dial = func() (ldapConn, error) { return nil, errors.New("connection refused") }

	_, err := p.Authenticate(context.Background(), "alice", "pass")
	require.Error(t, err)
	assert.True(t, apperrors.IsInternal(err))

	conn := &fakeConn{searchErr: errors.New("server down")}
	_, err = newTestProvider(testConfig(), conn).Authenticate(context.Background(), "alice", "pass")
	require.Error(t, err)
	assert.True(t, apperrors.IsInternal(err))
}

func TestFindUserEscapesFilterInput(t *testing.T) {
	conn := &fakeConn{searchRes: singleEntry(aliceEntry())}
	p := newTestProvider(testConfig(), conn)

	_, err := p.Authenticate(context.Background(), "al*)(uid=ice", "pass")
	require.NoError(t, err)
	require.NotNil(t, conn.lastSearch)
	assert.NotContains(t, conn.lastSearch.Filter, "al*)(uid=ice")
	assert.Contains(t, conn.lastSearch.Filter, ldap.EscapeFilter("al*)(uid=ice"))
}

func TestConfigSanitizeDefaults(t *testing.T) {
	cfg := Config{URL: "ldap://x"}
	cfg.sanitize()
	assert.Equal(t, "uid", cfg.LoginAttribute)
	assert.Equal(t, "mail", cfg.EmailAttribute)
	assert.Equal(t, "memberOf", cfg.MemberAttribute)
	assert.Positive(t, cfg.DialTimeout)
}
