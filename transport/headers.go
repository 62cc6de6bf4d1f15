package transport

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/pilab-dev/hospital-gate/config"
)

// HeaderPolicy writes the security response headers.
type HeaderPolicy struct {
	HSTSMaxAge int
	csp        string
}

// NewHeaderPolicy builds the header policy, including the CSP string.
func NewHeaderPolicy(s config.HeaderSettings) HeaderPolicy {
	return HeaderPolicy{
		HSTSMaxAge: s.HSTSMaxAge,
		csp:        BuildCSP(s.ConnectOrigins, s.CSPReportURI),
	}
}

// CSP returns the Content-Security-Policy value.
func (p HeaderPolicy) CSP() string {
	return p.csp
}

// Apply sets the security headers on h. withCSP is false for responses
// that may be embedded by third parties.
func (p HeaderPolicy) Apply(h http.Header, withCSP bool) {
	h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", p.HSTSMaxAge))
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
	if withCSP {
		h.Set("Content-Security-Policy", p.csp)
	}
}

// BuildCSP assembles the Content-Security-Policy. Trusted origins are merged
// into a single connect-src directive.
func BuildCSP(connectOrigins []string, reportURI string) string {
	connect := []string{"'self'"}
	for _, o := range connectOrigins {
		o = strings.TrimSpace(o)
		if o != "" && !slices.Contains(connect, o) {
			connect = append(connect, o)
		}
	}

	directives := []string{
		"default-src 'self'",
		"script-src 'self' 'unsafe-eval' 'unsafe-inline'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: https:",
		"font-src 'self' data:",
		"connect-src " + strings.Join(connect, " "),
		"frame-ancestors 'none'",
	}
	if reportURI != "" {
		directives = append(directives, "report-uri "+reportURI)
	}
	return strings.Join(directives, "; ")
}
