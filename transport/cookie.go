// Package transport holds the HTTP-level security policy: the auth cookie,
// security response headers and CORS.
package transport

import (
	"net/http"
	"time"

	"github.com/pilab-dev/hospital-gate/config"
)

// CookiePolicy describes the auth cookie.
type CookiePolicy struct {
	Name   string
	Path   string
	Secure bool
	MaxAge time.Duration
}

// NewCookiePolicy derives the cookie policy from the session settings.
// The cookie lives as long as the absolute session ceiling.
func NewCookiePolicy(s config.SessionSettings) CookiePolicy {
	return CookiePolicy{
		Name:   s.CookieName,
		Path:   s.CookiePath,
		Secure: s.CookieSecure,
		MaxAge: s.AbsoluteMaxAge,
	}
}

// AuthCookie returns the cookie carrying token.
func (p CookiePolicy) AuthCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     p.Name,
		Value:    token,
		Path:     p.Path,
		MaxAge:   int(p.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearCookie returns a cookie that removes the auth cookie.
func (p CookiePolicy) ClearCookie() *http.Cookie {
	c := p.AuthCookie("")
	// MaxAge < 0 serializes as Max-Age=0.
	c.MaxAge = -1
	return c
}
