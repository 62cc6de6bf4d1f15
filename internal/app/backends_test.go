package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pilab-dev/hospital-gate/config"
	"github.com/pilab-dev/hospital-gate/memory"
	"github.com/pilab-dev/hospital-gate/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	b, err := Open(context.Background(), &config.Config{
		StorageBackend: config.StorageTypeMemory,
		RateLimitStore: config.RateLimitMemory,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	assert.IsType(t, &memory.SessionRepository{}, b.Sessions)
	assert.IsType(t, &memory.UserRepository{}, b.Users)
	assert.IsType(t, &ratelimit.MemoryStore{}, b.RateLimit)
	assert.Nil(t, b.Mongo)
	assert.Nil(t, b.Redis)
	assert.NoError(t, b.Health(context.Background()))
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	b, err := Open(context.Background(), &config.Config{
		StorageBackend: config.StorageTypeMemory,
		RateLimitStore: config.RateLimitRedis,
		RedisAddr:      mr.Addr(),
		RedisPrefix:    "hgate",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	require.IsType(t, &ratelimit.RedisStore{}, b.RateLimit)
	require.NoError(t, b.Health(context.Background()))

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, b.RateLimit.Update(ctx, "ip:10.0.0.1", now, func(*ratelimit.Entry) *ratelimit.Entry {
		return &ratelimit.Entry{Count: 1, ResetAt: now.Add(time.Minute)}
	}))
	assert.True(t, mr.Exists("hgate:ratelimit:ip:10.0.0.1"))

	mr.Close()
	assert.Error(t, b.Health(ctx))
}

func TestOpen_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), &config.Config{
		StorageBackend: config.StorageTypeMemory,
		RateLimitStore: config.RateLimitRedis,
		RedisAddr:      addr,
	})
	assert.ErrorContains(t, err, "ping redis")
}

func TestOpen_UnknownBackends(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{StorageBackend: "sqlite"})
	assert.ErrorContains(t, err, "STORAGE_BACKEND")

	_, err = Open(context.Background(), &config.Config{
		StorageBackend: config.StorageTypeMemory,
		RateLimitStore: "memcached",
	})
	assert.ErrorContains(t, err, "RATE_LIMIT_BACKEND")
}

func TestLimiterConfig(t *testing.T) {
	sec := config.Security{
		Login:          config.Limit{MaxAttempts: 5, Window: 15 * time.Minute},
		API:            config.Limit{MaxAttempts: 120, Window: time.Minute},
		Lockout:        config.LockoutSettings{MaxFailedAttempts: 3, Duration: 30 * time.Minute},
		SweepThreshold: 100,
	}

	got := LimiterConfig(sec)
	assert.Equal(t, 5, got.Login.MaxAttempts)
	assert.Equal(t, time.Minute, got.API.Window)
	assert.Equal(t, 3, got.LockoutMaxFailed)
	assert.Equal(t, 30*time.Minute, got.LockoutDuration)
	assert.Equal(t, 100, got.SweepThreshold)
}
