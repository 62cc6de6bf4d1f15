package auth

import (
	"net"
	"net/http"
	"strings"
)

// RequestedTenantID returns the tenantId query parameter. It is only ever
// compared against the session tenant, never used as the tenant.
func RequestedTenantID(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("tenantId"))
}

// RequestIP returns the client address: the first X-Forwarded-For hop,
// then X-Real-IP, then the connection's remote address.
func RequestIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RequestUserAgent returns the User-Agent header, or "unknown".
func RequestUserAgent(r *http.Request) string {
	if ua := r.UserAgent(); ua != "" {
		return ua
	}
	return "unknown"
}
