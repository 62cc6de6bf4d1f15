package echo

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/hospital-gate/auth"
	"github.com/pilab-dev/hospital-gate/authz"
	"github.com/pilab-dev/hospital-gate/domain"
	apierrors "github.com/pilab-dev/hospital-gate/errors"
	"github.com/pilab-dev/hospital-gate/internal/metrics"
	"github.com/pilab-dev/hospital-gate/ratelimit"
	"github.com/rs/zerolog/log"
)

const authContextKey = "hgate.auth"

// AuthContext returns the AuthContext stored by RequireAuth, falling back to
// the one carried by the request context.
func AuthContext(c echo.Context) (*domain.AuthContext, bool) {
	if ac, ok := c.Get(authContextKey).(*domain.AuthContext); ok && ac != nil {
		return ac, true
	}
	return domain.AuthContextFrom(c.Request().Context())
}

// writeError renders err as {"error": ..., "message": ...}. Anything that is
// not an AuthError becomes a bare 500.
func writeError(c echo.Context, err error) error {
	var limited *auth.LimitedError
	if errors.As(err, &limited) {
		setRetryAfter(c.Response().Header(), limited.Result.ResetAt)
	}

	ae, ok := apierrors.AsAuthError(err)
	if !ok {
		log.Ctx(c.Request().Context()).Error().Err(err).Msg("Unhandled error")
		ae = apierrors.NewInternal()
	}
	return c.JSON(ae.Status, ae)
}

func setRetryAfter(h http.Header, resetAt time.Time) {
	if resetAt.IsZero() {
		return
	}
	secs := int(math.Ceil(time.Until(resetAt).Seconds()))
	h.Set("Retry-After", strconv.Itoa(max(secs, 1)))
}

func setRateLimitHeaders(h http.Header, limit int, res ratelimit.Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if !res.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	}
}

// SecurityHeaders sets the security response headers. The CSP header is
// left out of responses selected by Options.SkipCSP.
func (a *AuthAPI) SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			withCSP := a.skipCSP == nil || !a.skipCSP(c)
			a.headers.Apply(c.Response().Header(), withCSP)
			return next(c)
		}
	}
}

// CORS decorates allowed cross-origin requests and answers preflights.
// A preflight from an origin off the allow-list gets 403.
func (a *AuthAPI) CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get(echo.HeaderOrigin)

			if req.Method == http.MethodOptions && req.Header.Get(echo.HeaderAccessControlRequestMethod) != "" {
				status, headers := a.cors.Preflight(origin)
				for k, v := range headers {
					c.Response().Header()[k] = v
				}
				if status == http.StatusForbidden {
					log.Ctx(req.Context()).Warn().Str("origin", origin).Msg("CORS preflight denied")
					return c.JSON(status, apierrors.NewForbidden("Origin not allowed"))
				}
				return c.NoContent(status)
			}

			if origin != "" {
				a.cors.Decorate(c.Response().Header(), origin)
			}
			return next(c)
		}
	}
}

// RequireAuth runs the authentication gate and stores the AuthContext.
func (a *AuthAPI) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, err := a.gate.Authenticate(c.Request().Context(), c.Request())
			if err != nil {
				return writeError(c, err)
			}

			c.Set(authContextKey, ac)
			ctx := domain.WithAuthContext(c.Request().Context(), ac)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func requireAuthContext(c echo.Context) (*domain.AuthContext, error) {
	ac, ok := AuthContext(c)
	if !ok {
		return nil, apierrors.NewUnauthenticated("Authentication required")
	}
	return ac, nil
}

// ScopeFromQuery reads the requested scope from the groupId and hospitalId
// query parameters.
func ScopeFromQuery(c echo.Context) authz.Scope {
	return authz.Scope{GroupID: c.QueryParam("groupId"), HospitalID: c.QueryParam("hospitalId")}
}

// RequireScope denies requests whose scope, as extracted by scopeOf, lies
// outside the caller's group or hospital. Must run after RequireAuth.
func (a *AuthAPI) RequireScope(scopeOf func(echo.Context) authz.Scope) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, err := requireAuthContext(c)
			if err != nil {
				return writeError(c, err)
			}
			if err := authz.RequireScope(ac, scopeOf(c)); err != nil {
				return writeError(c, err)
			}
			return next(c)
		}
	}
}

// RequirePermission requires at least one of keys. Must run after RequireAuth.
func (a *AuthAPI) RequirePermission(keys ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, err := requireAuthContext(c)
			if err != nil {
				return writeError(c, err)
			}
			if err := authz.RequirePermission(ac, keys...); err != nil {
				return writeError(c, err)
			}
			return next(c)
		}
	}
}

// RequireRoutePermission requires the permission mapped to route.
// Unmapped routes are denied. Must run after RequireAuth.
func (a *AuthAPI) RequireRoutePermission(route string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, err := requireAuthContext(c)
			if err != nil {
				return writeError(c, err)
			}
			if err := authz.RequireRoutePermission(ac, route); err != nil {
				return writeError(c, err)
			}
			return next(c)
		}
	}
}

// RateLimitAPI applies the general API budget, keyed by user when the
// request is authenticated and by client IP otherwise.
func (a *AuthAPI) RateLimitAPI() echo.MiddlewareFunc {
	limit := a.limiter.Config().API.MaxAttempts

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := ratelimit.ClientIdentity{IP: auth.RequestIP(c.Request())}
			if ac, ok := AuthContext(c); ok {
				id.UserID = ac.UserID
			}

			res, err := a.limiter.RateLimitAPI(c.Request().Context(), id)
			if err != nil {
				return writeError(c, err)
			}
			setRateLimitHeaders(c.Response().Header(), limit, res)

			if limited := auth.LimitedFromResult(res); limited != nil {
				metrics.RateLimitedTotal.WithLabelValues("api").Inc()
				log.Ctx(c.Request().Context()).Warn().Str("key", id.APIKey()).Msg("API rate limited")
				return writeError(c, limited)
			}
			return next(c)
		}
	}
}

// TenantIsolation rejects requests whose tenantId query parameter disagrees
// with the session tenant. Must run after RequireAuth.
func (a *AuthAPI) TenantIsolation() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, err := requireAuthContext(c)
			if err != nil {
				return writeError(c, err)
			}
			requested := auth.RequestedTenantID(c.Request())
			if !auth.ValidateTenantIsolation(ac, requested) {
				log.Ctx(c.Request().Context()).Warn().
					Str("user_id", ac.UserID).
					Str("tenant_id", ac.TenantID).
					Str("requested_tenant_id", requested).
					Msg("Tenant isolation violation")
				return writeError(c, apierrors.NewForbidden("Tenant mismatch"))
			}
			return next(c)
		}
	}
}
