// Package app opens the storage backends selected by configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/hospital-gate/config"
	"github.com/pilab-dev/hospital-gate/domain"
	"github.com/pilab-dev/hospital-gate/memory"
	"github.com/pilab-dev/hospital-gate/mongodb"
	"github.com/pilab-dev/hospital-gate/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Backends are the stores behind the session manager and the rate limiter.
type Backends struct {
	Sessions  domain.SessionRepository
	Users     domain.UserRepository
	RateLimit ratelimit.Store

	// Mongo is the database of the mongodb backend, nil otherwise.
	Mongo *mongo.Database
	// Redis is the client of the redis rate-limit backend, nil otherwise.
	Redis redis.UniversalClient

	checks  []func(context.Context) error
	closers []func(context.Context) error
}

// Open connects the session/user store and the rate-limit table named by
// cfg. On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}

	if err := b.openStorage(ctx, cfg); err != nil {
		return nil, err
	}
	if err := b.openRateLimit(ctx, cfg); err != nil {
		_ = b.Close(context.Background())
		return nil, err
	}

	return b, nil
}

func (b *Backends) openStorage(ctx context.Context, cfg *config.Config) error {
	switch cfg.StorageBackend {
	case config.StorageTypeMemory:
		log.Warn().Msg("Using in-memory session and user stores, data is lost on restart")
		b.Sessions = memory.NewSessionRepository()
		b.Users = memory.NewUserRepository()
	case config.StorageTypeMongoDB, "":
		db, err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return err
		}
		b.Mongo = db
		b.Sessions = mongodb.NewSessionRepository(db)
		b.Users = mongodb.NewUserRepository(db)
		b.checks = append(b.checks, mongodb.Ping)
		b.closers = append(b.closers, func(ctx context.Context) error {
			mongodb.CloseMongoDB(ctx)
			return nil
		})
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	return nil
}

func (b *Backends) openRateLimit(ctx context.Context, cfg *config.Config) error {
	switch cfg.RateLimitStore {
	case config.RateLimitMemory, "":
		store := ratelimit.NewMemoryStore()
		b.RateLimit = store
		b.closers = append(b.closers, func(context.Context) error { return store.Close() })
	case config.RateLimitRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}

		log.Info().Str("addr", cfg.RedisAddr).Msg("Rate limits shared through Redis")
		b.Redis = client
		b.RateLimit = ratelimit.NewRedisStore(client, cfg.RedisPrefix)
		b.checks = append(b.checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		b.closers = append(b.closers, func(context.Context) error { return client.Close() })
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", cfg.RateLimitStore)
	}
	return nil
}

// Health pings every remote backend.
func (b *Backends) Health(ctx context.Context) error {
	var errs []error
	for _, check := range b.checks {
		if err := check(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the backends in reverse opening order.
func (b *Backends) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// LimiterConfig maps the security settings onto the limiter budgets.
func LimiterConfig(sec config.Security) ratelimit.Config {
	return ratelimit.Config{
		Login:            ratelimit.Limit{MaxAttempts: sec.Login.MaxAttempts, Window: sec.Login.Window},
		API:              ratelimit.Limit{MaxAttempts: sec.API.MaxAttempts, Window: sec.API.Window},
		LockoutMaxFailed: sec.Lockout.MaxFailedAttempts,
		LockoutDuration:  sec.Lockout.Duration,
		SweepThreshold:   sec.SweepThreshold,
	}
}
