package httpx

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCookieDomain(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"portal.example.com", "example.com"},
		{"portal.example.com:8443", "example.com"},
		{"deep.sub.portal.example.co.uk", "example.co.uk"},
		{"localhost", ""},
		{"localhost:8080", ""},
		{"127.0.0.1:8080", ""},
		{"[::1]:8080", ""},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, cookieDomain(tt.host))
		})
	}
}

func TestSessionCookieAttributes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://portal.example.com/portal/wf1", nil)

	c := sessionCookie(req, "abc", 15*time.Minute)
	assert.Equal(t, portalCookieName, c.Name)
	assert.Equal(t, "abc", c.Value)
	assert.True(t, c.HttpOnly)
	assert.False(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 900, c.MaxAge)
	assert.Equal(t, "example.com", c.Domain)
}

func TestSessionCookieSecureOverTLS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://portal.example.com/portal/wf1", nil)
	req.TLS = &tls.ConnectionState{}

	c := sessionCookie(req, "abc", time.Minute)
	assert.True(t, c.Secure)
}

func TestExpiredSessionCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://portal.example.com/portal/wf1", nil)

	c := expiredSessionCookie(req)
	assert.Empty(t, c.Value)
	assert.Negative(t, c.MaxAge)
}

func TestRequestCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/portal/wf1", nil)
	assert.Empty(t, requestCookie(req))

	req.AddCookie(&http.Cookie{Name: portalCookieName, Value: "abc"})
	assert.Equal(t, "abc", requestCookie(req))
}
