//nolint:varnamelen
package echo

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pilab-dev/hospital-gate/auth"
	"github.com/pilab-dev/hospital-gate/domain"
	"github.com/pilab-dev/hospital-gate/ratelimit"
	"github.com/pilab-dev/hospital-gate/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Authenticator builds the AuthContext of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*domain.AuthContext, error)
}

// AuthFlows runs login, logout and refresh.
type AuthFlows interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	Logout(ctx context.Context, ac *domain.AuthContext) error
	Refresh(ctx context.Context, ac *domain.AuthContext, ip, userAgent string) (*auth.RefreshResult, error)
}

// APILimiter throttles general API traffic.
type APILimiter interface {
	RateLimitAPI(ctx context.Context, id ratelimit.ClientIdentity) (ratelimit.Result, error)
	Config() ratelimit.Config
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker func(ctx context.Context) error

// AuthAPI holds the dependencies of the auth HTTP surface.
type AuthAPI struct {
	gate     Authenticator
	flows    AuthFlows
	limiter  APILimiter
	cookies  transport.CookiePolicy
	headers  transport.HeaderPolicy
	cors     transport.CORSPolicy
	gatherer prometheus.Gatherer
	health   HealthChecker
	skipCSP  middleware.Skipper
}

// Options carries the policies and optional collaborators of the API.
type Options struct {
	Cookies  transport.CookiePolicy
	Headers  transport.HeaderPolicy
	CORS     transport.CORSPolicy
	Gatherer prometheus.Gatherer
	Health   HealthChecker
	// SkipCSP selects responses sent without Content-Security-Policy,
	// such as pages meant to be embedded by third parties.
	SkipCSP middleware.Skipper
}

// NewAuthAPI initializes the auth API.
func NewAuthAPI(gate Authenticator, flows AuthFlows, limiter APILimiter, opts Options) *AuthAPI {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &AuthAPI{
		gate:     gate,
		flows:    flows,
		limiter:  limiter,
		cookies:  opts.Cookies,
		headers:  opts.Headers,
		cors:     opts.CORS,
		gatherer: opts.Gatherer,
		health:   opts.Health,
		skipCSP:  opts.SkipCSP,
	}
}

// RegisterRoutes registers the auth routes and the global middlewares.
func (a *AuthAPI) RegisterRoutes(e *echo.Echo) {
	e.Use(a.SecurityHeaders(), a.CORS())

	e.GET("/healthz", a.HealthHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	api.POST("/auth/login", a.LoginHandler)
	api.POST("/auth/logout", a.LogoutHandler)

	authed := api.Group("", a.RequireAuth(), a.RateLimitAPI(), a.TenantIsolation())
	authed.POST("/auth/refresh", a.RefreshHandler)
	authed.GET("/auth/me", a.MeHandler)
	authed.GET("/scope/check", a.ScopeCheckHandler, a.RequireScope(ScopeFromQuery))
	authed.GET("/routes/check", a.RouteCheckHandler)
	authed.GET("/permissions", a.PermissionsHandler, a.RequirePermission("admin.users.view"))
}
