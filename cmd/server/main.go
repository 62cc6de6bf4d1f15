package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	echoapi "github.com/pilab-dev/hospital-gate/api/echo"
	"github.com/pilab-dev/hospital-gate/auth"
	"github.com/pilab-dev/hospital-gate/config"
	"github.com/pilab-dev/hospital-gate/internal/app"
	passwords "github.com/pilab-dev/hospital-gate/internal/auth"
	"github.com/pilab-dev/hospital-gate/internal/metrics"
	"github.com/pilab-dev/hospital-gate/internal/server"
	"github.com/pilab-dev/hospital-gate/internal/telemetry"
	"github.com/pilab-dev/hospital-gate/log"
	"github.com/pilab-dev/hospital-gate/ratelimit"
	"github.com/pilab-dev/hospital-gate/session"
	"github.com/pilab-dev/hospital-gate/token"
	"github.com/pilab-dev/hospital-gate/tracing"
	"github.com/pilab-dev/hospital-gate/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().
			Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)
	zlog.Logger = log.Zerolog(appLogger)
	zerolog.DefaultContextLogger = &zlog.Logger

	ctx := context.Background()
	if parseErr != nil {
		appLogger.Warn(ctx, "Invalid LOG_LEVEL configured, defaulting to 'info'", log.Fields{
			"configured_log_level": cfg.LogLevel,
		})
	}

	sec, err := cfg.Security()
	if err != nil {
		appLogger.Fatal(ctx, "Invalid security configuration", err)
	}

	appLogger.Info(ctx, "Starting hospital-gate", log.Fields{
		"http_addr":          cfg.HTTPAddr,
		"app_env":            cfg.AppEnv,
		"storage_backend":    cfg.StorageBackend,
		"rate_limit_backend": cfg.RateLimitStore,
		"mongo_db_name":      cfg.MongoDBName,
		"idle_timeout":       sec.Session.IdleTimeout.String(),
		"absolute_max_age":   sec.Session.AbsoluteMaxAge.String(),
		"cors_origins":       sec.CORS.AllowedOrigins,
	})

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName, tracing.Options{Pretty: cfg.LogPretty})
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.InitCustomMetrics(registry)

	mp, err := telemetry.InitMeterProvider(registry)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize MeterProvider", err)
	}

	backends, err := app.Open(ctx, cfg)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to open backends", err)
	}

	sessions := session.NewManager(backends.Sessions, backends.Users, session.Config{
		IdleTimeout:    sec.Session.IdleTimeout,
		AbsoluteMaxAge: sec.Session.AbsoluteMaxAge,
	})
	if err := sessions.EnsureIndexes(ctx); err != nil {
		appLogger.Fatal(ctx, "Failed to ensure session indexes", err)
	}

	tokens, err := token.NewManager(token.Config{
		Secret: sec.JWT.Secret,
		Issuer: sec.JWT.Issuer,
		TTL:    sec.Session.AbsoluteMaxAge,
	})
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize token manager", err)
	}

	limiter := ratelimit.New(backends.RateLimit, app.LimiterConfig(sec))
	hasher := passwords.NewBcryptPasswordHasher(bcrypt.DefaultCost)

	gate := auth.NewGate(sec.Session.CookieName, tokens, sessions, backends.Users)
	flows := auth.NewService(backends.Users, sessions, tokens, limiter, hasher)

	authAPI := echoapi.NewAuthAPI(gate, flows, limiter, echoapi.Options{
		Cookies:  transport.NewCookiePolicy(sec.Session),
		Headers:  transport.NewHeaderPolicy(sec.Headers),
		CORS:     transport.NewCORSPolicy(sec.CORS),
		Gatherer: registry,
		Health:   backends.Health,
	})

	serverCfg := server.Config{Addr: cfg.HTTPAddr, ServiceName: cfg.OtelServiceName, BodyLimit: "1M"}
	e := server.NewEcho(serverCfg, appLogger, authAPI)
	httpServer := server.NewHTTPServer(serverCfg, e)

	go func() {
		appLogger.Info(ctx, "HTTP server listening", log.Fields{"addr": cfg.HTTPAddr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(ctx, "Failed to start HTTP server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(ctx, "Shutting down", log.Fields{"signal": receivedSignal.String()})

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}
	if err := backends.Close(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "Backend shutdown error", err)
	}
	if err := telemetry.Shutdown(shutdownCtx, tp, mp); err != nil {
		appLogger.Error(shutdownCtx, "Telemetry shutdown error", err)
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped")
}
