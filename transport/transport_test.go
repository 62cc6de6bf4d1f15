package transport_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pilab-dev/hospital-gate/config"
	"github.com/pilab-dev/hospital-gate/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookiePolicy(t *testing.T) {
	p := transport.NewCookiePolicy(config.SessionSettings{
		AbsoluteMaxAge: 24 * time.Hour,
		CookieName:     "auth-token",
		CookiePath:     "/",
		CookieSecure:   true,
	})

	c := p.AuthCookie("tok")
	assert.Equal(t, "auth-token", c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 86400, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)

	rec := httptest.NewRecorder()
	http.SetCookie(rec, p.ClearCookie())
	header := rec.Header().Get("Set-Cookie")
	assert.Contains(t, header, "auth-token=;")
	assert.Contains(t, header, "Max-Age=0")
	assert.Contains(t, header, "HttpOnly")
	assert.Contains(t, header, "SameSite=Strict")
}

func TestBuildCSP(t *testing.T) {
	csp := transport.BuildCSP([]string{"https://api.openai.com", " https://policy.internal ", "https://api.openai.com"}, "https://csp.example.com/report")

	assert.Equal(t, 1, strings.Count(csp, "connect-src"))
	assert.Contains(t, csp, "connect-src 'self' https://api.openai.com https://policy.internal;")
	assert.Contains(t, csp, "default-src 'self'")
	assert.True(t, strings.HasSuffix(csp, "report-uri https://csp.example.com/report"))

	assert.NotContains(t, transport.BuildCSP(nil, ""), "report-uri")
}

func TestHeaderPolicy_Apply(t *testing.T) {
	p := transport.NewHeaderPolicy(config.HeaderSettings{HSTSMaxAge: 31536000})

	h := http.Header{}
	p.Apply(h, true)
	assert.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	assert.Equal(t, "camera=(), microphone=(), geolocation=()", h.Get("Permissions-Policy"))
	assert.Equal(t, p.CSP(), h.Get("Content-Security-Policy"))

	h = http.Header{}
	p.Apply(h, false)
	assert.Empty(t, h.Get("Content-Security-Policy"))
	assert.NotEmpty(t, h.Get("X-Frame-Options"))
}

func TestCORSPolicy(t *testing.T) {
	p := transport.NewCORSPolicy(config.CORSSettings{
		AllowedOrigins:   []string{"https://ops.example.com"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type"},
	})

	assert.True(t, p.Allowed("https://ops.example.com"))
	assert.False(t, p.Allowed("https://evil.example.com"))
	assert.False(t, p.Allowed(""))

	status, h := p.Preflight("https://ops.example.com")
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "https://ops.example.com", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", h.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "GET, POST", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", h.Get("Access-Control-Allow-Headers"))

	status, h = p.Preflight("https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Empty(t, h)

	h = http.Header{}
	p.Decorate(h, "https://evil.example.com")
	assert.Empty(t, h)
}

func TestCORSPolicy_Wildcard(t *testing.T) {
	p := transport.CORSPolicy{AllowedOrigins: []string{"*"}}

	require.True(t, p.Allowed("https://anything.example"))
	status, h := p.Preflight("https://anything.example")
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "https://anything.example", h.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, h.Get("Access-Control-Allow-Credentials"))
}
