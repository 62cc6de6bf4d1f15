package config

import (
	"errors"
	"fmt"
	"time"
)

// Limit is a max-attempts-per-window budget.
type Limit struct {
	MaxAttempts int
	Window      time.Duration
}

// SessionSettings controls session lifetimes and the auth cookie.
type SessionSettings struct {
	AbsoluteMaxAge time.Duration
	IdleTimeout    time.Duration
	CookieName     string
	CookiePath     string
	CookieSecure   bool
}

// LockoutSettings controls account lockout after repeated failed logins.
type LockoutSettings struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

// CORSSettings is the cross-origin allow-list.
type CORSSettings struct {
	AllowedOrigins   []string
	AllowCredentials bool
	AllowedMethods   []string
	AllowedHeaders   []string
}

// HeaderSettings feeds the security response headers.
type HeaderSettings struct {
	HSTSMaxAge     int
	CSPReportURI   string
	ConnectOrigins []string
}

// JWTSettings configures the session token signer.
type JWTSettings struct {
	Secret []byte
	Issuer string
}

// Security is the validated, immutable set of auth tunables.
// Build it once at startup with Config.Security and pass it by value.
type Security struct {
	Production     bool
	Session        SessionSettings
	Login          Limit
	API            Limit
	Lockout        LockoutSettings
	SweepThreshold int
	CORS           CORSSettings
	Headers        HeaderSettings
	JWT            JWTSettings
}

// Security validates the raw configuration and returns the immutable auth settings.
// Any violation is returned as a single joined error and must abort startup.
func (c *Config) Security() (Security, error) {
	prod := c.IsProduction()

	origins := splitList(c.CORSAllowedOrigins)
	if origins == nil && !prod {
		origins = []string{"http://localhost:3000"}
	}

	connect := splitList(c.CSPConnectOrigins)
	if c.OpenAIAPIURL != "" {
		connect = append(connect, c.OpenAIAPIURL)
	}
	if c.PolicyEngineURL != "" {
		connect = append(connect, c.PolicyEngineURL)
	}

	secret := c.JWTSecret
	if secret == "" && !prod {
		secret = devJWTSecret
	}

	sec := Security{
		Production: prod,
		Session: SessionSettings{
			AbsoluteMaxAge: millis(c.SessionAbsoluteMaxAgeMS),
			IdleTimeout:    millis(c.SessionIdleTimeoutMS),
			CookieName:     "auth-token",
			CookiePath:     "/",
			CookieSecure:   prod,
		},
		Login:   Limit{MaxAttempts: c.RateLimitLoginMax, Window: millis(c.RateLimitLoginWindowMS)},
		API:     Limit{MaxAttempts: c.RateLimitAPIMax, Window: millis(c.RateLimitAPIWindowMS)},
		Lockout: LockoutSettings{MaxFailedAttempts: c.AccountLockoutMaxFailed, Duration: millis(c.AccountLockoutDurationMS)},

		SweepThreshold: c.RateLimitSweepAbove,
		CORS: CORSSettings{
			AllowedOrigins:   origins,
			AllowCredentials: true,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		},
		Headers: HeaderSettings{
			HSTSMaxAge:     c.HSTSMaxAge,
			CSPReportURI:   c.CSPReportURI,
			ConnectOrigins: connect,
		},
		JWT: JWTSettings{Secret: []byte(secret), Issuer: c.JWTIssuer},
	}

	if err := sec.Validate(); err != nil {
		return Security{}, err
	}
	return sec, nil
}

// Validate checks the cross-field invariants of the settings.
func (s Security) Validate() error {
	var errs []error

	if s.Session.IdleTimeout <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TIMEOUT_MS must be > 0"))
	}
	if s.Session.AbsoluteMaxAge < s.Session.IdleTimeout {
		errs = append(errs, errors.New("SESSION_ABSOLUTE_MAX_AGE_MS must be >= SESSION_IDLE_TIMEOUT_MS"))
	}
	if s.Login.MaxAttempts < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_LOGIN_MAX must be >= 1"))
	}
	if s.Login.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_LOGIN_WINDOW_MS must be > 0"))
	}
	if s.API.MaxAttempts < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_API_MAX must be >= 1"))
	}
	if s.API.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_API_WINDOW_MS must be > 0"))
	}
	if s.Lockout.MaxFailedAttempts < 1 {
		errs = append(errs, errors.New("ACCOUNT_LOCKOUT_MAX_FAILED must be >= 1"))
	}
	if s.Lockout.Duration <= 0 {
		errs = append(errs, errors.New("ACCOUNT_LOCKOUT_DURATION_MS must be > 0"))
	}
	if s.Headers.HSTSMaxAge < 0 {
		errs = append(errs, errors.New("HSTS_MAX_AGE must be >= 0"))
	}
	if len(s.JWT.Secret) == 0 {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if s.Production && len(s.JWT.Secret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes in production"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("security configuration errors: %w", errors.Join(errs...))
	}
	return nil
}
