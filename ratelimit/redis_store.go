package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldCount       = "count"
	fieldResetAt     = "reset_at_ms"
	fieldLockedUntil = "locked_until_ms"

	// maxUpdateRetries bounds optimistic retries of one Update under contention.
	maxUpdateRetries = 50
	retryBackoff     = time.Millisecond
)

// RedisStore keeps entries in Redis so every instance sees the same
// counters and locks. Each entry is a hash that expires with the entry, so
// the store never needs sweeping.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis backed store. Keys are namespaced as
// <prefix>:ratelimit:<key>.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisStore) redisKey(key string) string {
	return fmt.Sprintf("%s:ratelimit:%s", r.prefix, key)
}

func unavailable(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Get implements Store.Get.
func (r *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	return r.read(ctx, r.client, r.redisKey(key))
}

// hashReader is satisfied by both the client and a WATCH transaction.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func (r *RedisStore) read(ctx context.Context, c hashReader, rk string) (*Entry, error) {
	res, err := c.HGetAll(ctx, rk).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	count, err := strconv.Atoi(res[fieldCount])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldCount, err)
	}
	resetAt, err := parseMillis(res[fieldResetAt])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldResetAt, err)
	}
	lockedUntil, err := parseMillis(res[fieldLockedUntil])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldLockedUntil, err)
	}

	return &Entry{
		Count:       count,
		ResetAt:     resetAt,
		LockedUntil: lockedUntil,
	}, nil
}

// write queues the commands that replace rk with entry. The expiry is
// relative so it does not depend on the Redis server clock.
func write(ctx context.Context, pipe redis.Pipeliner, rk string, entry *Entry, now time.Time) {
	if entry == nil {
		pipe.Del(ctx, rk)
		return
	}

	ttl := entry.ttl(now)
	if ttl <= 0 {
		pipe.Del(ctx, rk)
		return
	}

	pipe.HSet(ctx, rk,
		fieldCount, entry.Count,
		fieldResetAt, toMillis(entry.ResetAt),
		fieldLockedUntil, toMillis(entry.LockedUntil),
	)
	pipe.PExpire(ctx, rk, ttl)
}

// Update implements Store.Update with an optimistic WATCH/MULTI transaction,
// so concurrent updates from any instance never lose an increment.
func (r *RedisStore) Update(ctx context.Context, key string, now time.Time, fn UpdateFunc) error {
	rk := r.redisKey(key)

	txf := func(tx *redis.Tx) error {
		cur, err := r.read(ctx, tx, rk)
		if err != nil {
			return err
		}
		next := fn(cur)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(ctx, pipe, rk, next, now)
			return nil
		})
		return err
	}

	for attempt := range maxUpdateRetries {
		err := r.client.Watch(ctx, txf, rk)
		if errors.Is(err, redis.TxFailedErr) {
			select {
			case <-ctx.Done():
				return unavailable(ctx.Err())
			case <-time.After(rand.N(retryBackoff * time.Duration(attempt+1))):
			}
			continue
		}
		if err != nil {
			return unavailable(err)
		}
		return nil
	}
	return fmt.Errorf("%w: update %s: too many concurrent writers", ErrStoreUnavailable, key)
}

// Set stores entry under key, replacing what was there.
func (r *RedisStore) Set(ctx context.Context, key string, entry *Entry, now time.Time) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		write(ctx, pipe, r.redisKey(key), entry, now)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Delete implements Store.Delete.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return unavailable(err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func parseMillis(raw string) (time.Time, error) {
	if raw == "" || raw == "0" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
