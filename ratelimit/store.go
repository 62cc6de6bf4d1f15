// Package ratelimit implements fixed-window attempt counters and temporary
// account locks over a pluggable Store.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps failures of the backing store.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Entry is the counter state of one client key.
type Entry struct {
	Count       int
	ResetAt     time.Time
	LockedUntil time.Time // zero when not locked
}

// LockedAt reports whether the entry holds an active lock at now.
func (e *Entry) LockedAt(now time.Time) bool {
	return !e.LockedUntil.IsZero() && now.Before(e.LockedUntil)
}

// StaleAt reports whether both the window and the lock have elapsed.
func (e *Entry) StaleAt(now time.Time) bool {
	return now.After(e.ResetAt) && (e.LockedUntil.IsZero() || now.After(e.LockedUntil))
}

// expiresAt is the instant after which the entry carries no information.
func (e *Entry) expiresAt() time.Time {
	if e.LockedUntil.After(e.ResetAt) {
		return e.LockedUntil
	}
	return e.ResetAt
}

// ttl is how long the entry must be kept, measured on the caller's clock.
func (e *Entry) ttl(now time.Time) time.Duration {
	return e.expiresAt().Sub(now)
}

// UpdateFunc maps the current entry of a key (nil when missing) to the entry
// to store. Returning nil deletes the key. It may run more than once for a
// single Update and must not have side effects beyond its return value and
// the variables it assigns.
type UpdateFunc func(cur *Entry) *Entry

// Store holds rate-limit entries by key.
// Get returns (nil, nil) for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	// Update applies fn to the entry of key atomically with respect to other
	// updates of the same key. now is the caller's clock and sets the
	// expiry of the stored entry.
	Update(ctx context.Context, key string, now time.Time, fn UpdateFunc) error
	Delete(ctx context.Context, key string) error
}

// Sweeper is implemented by stores that keep stale entries until asked to
// drop them. Stores that expire entries on their own do not implement it.
type Sweeper interface {
	// Sweep removes entries that are stale at now and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
	Len(ctx context.Context) int
}
