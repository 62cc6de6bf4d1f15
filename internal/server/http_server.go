package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pilab-dev/hospital-gate/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// Config holds the listener settings of the HTTP server.
type Config struct {
	Addr        string
	ServiceName string
	// BodyLimit caps request bodies, e.g. "1M". Empty disables the limit.
	BodyLimit string
}

// RouteRegistrar registers routes and route-level middlewares on e.
type RouteRegistrar interface {
	RegisterRoutes(e *echo.Echo)
}

// NewEcho builds the echo instance with recovery, tracing and request
// logging, then lets api register its routes.
func NewEcho(cfg Config, appLogger log.Logger, api RouteRegistrar) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	e.Use(otelecho.Middleware(cfg.ServiceName))
	e.Use(RequestLogger(appLogger))

	if api != nil {
		api.RegisterRoutes(e)
	}

	return e
}

// RequestLogger logs one entry per request through appLogger.
func RequestLogger(appLogger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := log.Fields{
				"method":     req.Method,
				"path":       req.URL.Path,
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"user_agent": req.UserAgent(),
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}

			switch {
			case err != nil:
				appLogger.Error(req.Context(), "HTTP request failed", err, fields)
			case c.Response().Status >= http.StatusInternalServerError:
				appLogger.Warn(req.Context(), "HTTP request", fields)
			default:
				appLogger.Info(req.Context(), "HTTP request", fields)
			}

			return nil
		}
	}
}

// NewHTTPServer wraps handler in an http.Server with conservative timeouts.
func NewHTTPServer(cfg Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
