package transport

import (
	"net/http"
	"slices"
	"strings"

	"github.com/pilab-dev/hospital-gate/config"
)

// CORSPolicy is an explicit origin allow-list. "*" allows any origin.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowCredentials bool
	Methods          []string
	Headers          []string
}

// NewCORSPolicy builds the policy from the CORS settings.
func NewCORSPolicy(s config.CORSSettings) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins:   s.AllowedOrigins,
		AllowCredentials: s.AllowCredentials,
		Methods:          s.AllowedMethods,
		Headers:          s.AllowedHeaders,
	}
}

// Allowed reports whether origin is on the allow-list.
func (p CORSPolicy) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	return slices.Contains(p.AllowedOrigins, "*") || slices.Contains(p.AllowedOrigins, origin)
}

// Preflight answers an OPTIONS request: 204 with the CORS headers for an
// allowed origin, 403 with no headers otherwise.
func (p CORSPolicy) Preflight(origin string) (int, http.Header) {
	h := http.Header{}
	if !p.Allowed(origin) {
		return http.StatusForbidden, h
	}
	p.Decorate(h, origin)
	h.Set("Access-Control-Allow-Methods", strings.Join(p.Methods, ", "))
	h.Set("Access-Control-Allow-Headers", strings.Join(p.Headers, ", "))
	h.Set("Access-Control-Max-Age", "86400")
	return http.StatusNoContent, h
}

// Decorate adds the CORS response headers for an allowed origin. The
// request origin is echoed, never "*", so credentials keep working.
func (p CORSPolicy) Decorate(h http.Header, origin string) {
	if !p.Allowed(origin) {
		return
	}
	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")
	if p.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}
