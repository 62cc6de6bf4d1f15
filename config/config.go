package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StorageType selects the session/user store.
type StorageType string

const (
	StorageTypeMongoDB StorageType = "mongodb"
	StorageTypeMemory  StorageType = "memory"
)

// RateLimitBackend selects where rate-limit counters live.
type RateLimitBackend string

const (
	RateLimitMemory RateLimitBackend = "memory"
	RateLimitRedis  RateLimitBackend = "redis"
)

// devJWTSecret is only accepted outside production.
const devJWTSecret = "hospital-gate-development-secret-do-not-use"

// Config holds the raw process configuration.
// Keys are the environment variable names; a hospital_gate.yaml may set the same keys.
type Config struct {
	HTTPAddr        string           `mapstructure:"HTTP_ADDR"`
	AppEnv          string           `mapstructure:"APP_ENV"`
	LogLevel        string           `mapstructure:"LOG_LEVEL"`
	LogPretty       bool             `mapstructure:"LOG_PRETTY"`
	OtelServiceName string           `mapstructure:"OTEL_SERVICE_NAME"`
	StorageBackend  StorageType      `mapstructure:"STORAGE_BACKEND"`
	MongoURI        string           `mapstructure:"MONGO_URI"`
	MongoDBName     string           `mapstructure:"MONGO_DB_NAME"`
	RateLimitStore  RateLimitBackend `mapstructure:"RATE_LIMIT_BACKEND"`
	RedisAddr       string           `mapstructure:"REDIS_ADDR"`
	RedisPassword   string           `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int              `mapstructure:"REDIS_DB"`
	RedisPrefix     string           `mapstructure:"REDIS_PREFIX"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
	JWTIssuer string `mapstructure:"JWT_ISSUER"`

	SessionAbsoluteMaxAgeMS int64 `mapstructure:"SESSION_ABSOLUTE_MAX_AGE_MS"`
	SessionIdleTimeoutMS    int64 `mapstructure:"SESSION_IDLE_TIMEOUT_MS"`

	RateLimitLoginMax      int   `mapstructure:"RATE_LIMIT_LOGIN_MAX"`
	RateLimitLoginWindowMS int64 `mapstructure:"RATE_LIMIT_LOGIN_WINDOW_MS"`
	RateLimitAPIMax        int   `mapstructure:"RATE_LIMIT_API_MAX"`
	RateLimitAPIWindowMS   int64 `mapstructure:"RATE_LIMIT_API_WINDOW_MS"`
	RateLimitSweepAbove    int   `mapstructure:"RATE_LIMIT_SWEEP_THRESHOLD"`

	AccountLockoutMaxFailed  int   `mapstructure:"ACCOUNT_LOCKOUT_MAX_FAILED"`
	AccountLockoutDurationMS int64 `mapstructure:"ACCOUNT_LOCKOUT_DURATION_MS"`

	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	HSTSMaxAge         int    `mapstructure:"HSTS_MAX_AGE"`
	CSPReportURI       string `mapstructure:"CSP_REPORT_URI"`
	CSPConnectOrigins  string `mapstructure:"CSP_CONNECT_ORIGINS"`
	OpenAIAPIURL       string `mapstructure:"OPENAI_API_URL"`
	PolicyEngineURL    string `mapstructure:"POLICY_ENGINE_URL"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("hospital_gate")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/hospital-gate/")
	v.AddConfigPath("$HOME/.hospital-gate")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "hospital-gate")
	v.SetDefault("STORAGE_BACKEND", string(StorageTypeMongoDB))
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "hospital_ops")
	v.SetDefault("RATE_LIMIT_BACKEND", string(RateLimitMemory))
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "hgate")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "hospital-gate")

	v.SetDefault("SESSION_ABSOLUTE_MAX_AGE_MS", 86400000) // 24h
	v.SetDefault("SESSION_IDLE_TIMEOUT_MS", 1800000)      // 30m
	v.SetDefault("RATE_LIMIT_LOGIN_MAX", 5)
	v.SetDefault("RATE_LIMIT_LOGIN_WINDOW_MS", 900000) // 15m
	v.SetDefault("RATE_LIMIT_API_MAX", 120)
	v.SetDefault("RATE_LIMIT_API_WINDOW_MS", 60000)
	v.SetDefault("RATE_LIMIT_SWEEP_THRESHOLD", 10000)
	v.SetDefault("ACCOUNT_LOCKOUT_MAX_FAILED", 5)
	v.SetDefault("ACCOUNT_LOCKOUT_DURATION_MS", 1800000) // 30m

	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("HSTS_MAX_AGE", 31536000)
	v.SetDefault("CSP_REPORT_URI", "")
	v.SetDefault("CSP_CONNECT_ORIGINS", "")
	v.SetDefault("OPENAI_API_URL", "")
	v.SetDefault("POLICY_ENGINE_URL", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.AppEnv))
	return env == "production" || env == "prod"
}

// splitList parses a comma-separated env value, dropping blanks.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
