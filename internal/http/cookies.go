package httpx

import (
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const portalCookieName = "guardgate_session"

// sessionCookie builds the portal session cookie for a challenge or
// registration response. The domain is the registrable part of the host
// so the cookie follows the user across workflow subdomains; Secure is
// set only when the request arrived over TLS.
func sessionCookie(r *http.Request, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     portalCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
	}
	if domain := cookieDomain(r.Host); domain != "" {
		c.Domain = domain
	}
	return c
}

// expiredSessionCookie clears the portal session cookie.
func expiredSessionCookie(r *http.Request) *http.Cookie {
	c := sessionCookie(r, "", 0)
	c.MaxAge = -1
	return c
}

func cookieDomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return domain
}

func requestCookie(r *http.Request) string {
	c, err := r.Cookie(portalCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
