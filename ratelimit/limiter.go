package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Limit is a max-attempts-per-window budget.
type Limit struct {
	MaxAttempts int
	Window      time.Duration
}

// Config holds the limiter budgets.
type Config struct {
	Login Limit
	API   Limit

	LockoutMaxFailed int
	LockoutDuration  time.Duration

	// SweepThreshold triggers an opportunistic sweep once a Sweeper store
	// holds more entries than this. Zero disables sweeping.
	SweepThreshold int
}

// Result is the outcome of one attempt.
// Callers answer 423 when Locked is set and 429 when Allowed is false.
// ResetAt is the end of the lock when Locked is set.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Locked    bool
}

// ClientIdentity identifies the caller of a rate-limited operation.
type ClientIdentity struct {
	UserID string
	IP     string
}

// Key returns user:<id> when the user is known and ip:<addr> otherwise.
// Login budgets and account locks live under this key.
func (c ClientIdentity) Key() string {
	if c.UserID != "" {
		return UserKey(c.UserID)
	}
	ip := c.IP
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// APIKey is the key of the general API budget of the caller. It never
// shares an entry with login budgets or locks.
func (c ClientIdentity) APIKey() string {
	return "api:" + c.Key()
}

// UserKey is the key holding the login budget and lock of a user account.
func UserKey(userID string) string {
	return "user:" + userID
}

// FailedLoginKey is the key of the consecutive failed password counter of
// a user account.
func FailedLoginKey(userID string) string {
	return "failed:" + UserKey(userID)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter applies the window and lock rules on top of a Store. Every
// operation is a single atomic store update of one key, so the Limiter
// itself holds no lock.
type Limiter struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// New creates a Limiter.
func New(store Store, cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the limiter budgets.
func (l *Limiter) Config() Config {
	return l.cfg
}

// countAttempt applies one attempt to cur. An active lock denies without
// counting. A missing entry or an elapsed window starts a fresh window.
func countAttempt(cur *Entry, now time.Time, maxAttempts int, window time.Duration) (Result, *Entry, bool) {
	if cur != nil && cur.LockedAt(now) {
		return Result{Allowed: false, Remaining: 0, ResetAt: cur.LockedUntil, Locked: true}, cur, false
	}

	if cur == nil || now.After(cur.ResetAt) {
		fresh := &Entry{Count: 1, ResetAt: now.Add(window)}
		return Result{Allowed: true, Remaining: maxAttempts - 1, ResetAt: fresh.ResetAt}, fresh, true
	}

	next := *cur
	next.Count++
	return Result{
		Allowed:   next.Count <= maxAttempts,
		Remaining: max(0, maxAttempts-next.Count),
		ResetAt:   next.ResetAt,
	}, &next, false
}

// CheckRateLimit counts one attempt for key.
//
// A missing entry or an elapsed window starts a fresh window with count 1,
// unless a lock is still active. An active lock denies unconditionally.
// Otherwise the count is incremented and the attempt is allowed while
// count <= maxAttempts.
func (l *Limiter) CheckRateLimit(ctx context.Context, key string, maxAttempts int, window time.Duration) (Result, error) {
	now := l.now()

	var (
		res   Result
		fresh bool
	)
	err := l.store.Update(ctx, key, now, func(cur *Entry) *Entry {
		var next *Entry
		res, next, fresh = countAttempt(cur, now, maxAttempts, window)
		return next
	})
	if err != nil {
		return Result{}, err
	}

	if fresh {
		l.maybeSweep(ctx, now)
	}
	return res, nil
}

func (l *Limiter) maybeSweep(ctx context.Context, now time.Time) {
	sweeper, ok := l.store.(Sweeper)
	if !ok || l.cfg.SweepThreshold <= 0 || sweeper.Len(ctx) <= l.cfg.SweepThreshold {
		return
	}

	removed, err := sweeper.Sweep(ctx, now)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("rate limit sweep failed")
		return
	}
	log.Ctx(ctx).Debug().Int("removed", removed).Msg("rate limit store swept")
}

// LockAccount locks key for duration, keeping its current count.
func (l *Limiter) LockAccount(ctx context.Context, key string, duration time.Duration) error {
	_, err := l.lock(ctx, key, duration)
	return err
}

func (l *Limiter) lock(ctx context.Context, key string, duration time.Duration) (time.Time, error) {
	now := l.now()
	until := now.Add(duration)

	err := l.store.Update(ctx, key, now, func(cur *Entry) *Entry {
		next := &Entry{ResetAt: until}
		if cur != nil {
			next.Count = cur.Count
			next.ResetAt = cur.ResetAt
		}
		next.LockedUntil = until
		return next
	})
	if err != nil {
		return time.Time{}, err
	}

	log.Ctx(ctx).Warn().Str("key", key).Time("locked_until", until).Msg("account locked")
	return until, nil
}

// IsAccountLocked reports whether key holds an active lock. An elapsed lock
// is cleared on read.
func (l *Limiter) IsAccountLocked(ctx context.Context, key string) (bool, error) {
	now := l.now()

	entry, err := l.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if entry == nil || entry.LockedUntil.IsZero() {
		return false, nil
	}
	if entry.LockedAt(now) {
		return true, nil
	}

	locked := false
	err = l.store.Update(ctx, key, now, func(cur *Entry) *Entry {
		locked = false
		if cur == nil {
			return nil
		}
		if cur.LockedAt(now) {
			locked = true
			return cur
		}
		next := *cur
		next.LockedUntil = time.Time{}
		return &next
	})
	if err != nil {
		return false, err
	}
	return locked, nil
}

// ClearRateLimit removes all state of key. Used for manual unlock.
func (l *Limiter) ClearRateLimit(ctx context.Context, key string) error {
	return l.store.Delete(ctx, key)
}

// RateLimitLogin counts a login attempt against the caller's login budget.
// A caller whose user is known and who exceeds the budget is locked for
// LockoutDuration in the same update.
func (l *Limiter) RateLimitLogin(ctx context.Context, id ClientIdentity) (Result, error) {
	now := l.now()
	key := id.Key()

	var res Result
	err := l.store.Update(ctx, key, now, func(cur *Entry) *Entry {
		var next *Entry
		res, next, _ = countAttempt(cur, now, l.cfg.Login.MaxAttempts, l.cfg.Login.Window)
		if !res.Allowed && !res.Locked && id.UserID != "" {
			next.LockedUntil = now.Add(l.cfg.LockoutDuration)
			res.Locked = true
			res.ResetAt = next.LockedUntil
		}
		return next
	})
	if err != nil {
		return Result{}, fmt.Errorf("login rate limit: %w", err)
	}

	if res.Locked && id.UserID != "" {
		log.Ctx(ctx).Warn().Str("key", key).Time("locked_until", res.ResetAt).Msg("login budget exhausted")
	}
	return res, nil
}

// RateLimitAPI counts a general API request for the caller.
func (l *Limiter) RateLimitAPI(ctx context.Context, id ClientIdentity) (Result, error) {
	return l.CheckRateLimit(ctx, id.APIKey(), l.cfg.API.MaxAttempts, l.cfg.API.Window)
}

// TrackFailedLogin records a failed password check for userID. Once
// LockoutMaxFailed failures accumulate within LockoutDuration, the counter
// restarts and the account key is locked for LockoutDuration.
func (l *Limiter) TrackFailedLogin(ctx context.Context, userID string) (Result, error) {
	now := l.now()
	maxFailed := l.cfg.LockoutMaxFailed

	var res Result
	err := l.store.Update(ctx, FailedLoginKey(userID), now, func(cur *Entry) *Entry {
		var next *Entry
		res, next, _ = countAttempt(cur, now, maxFailed, l.cfg.LockoutDuration)
		if next.Count >= maxFailed {
			return nil
		}
		return next
	})
	if err != nil {
		return Result{}, fmt.Errorf("track failed login: %w", err)
	}
	if res.Remaining > 0 {
		return res, nil
	}

	until, err := l.lock(ctx, UserKey(userID), l.cfg.LockoutDuration)
	if err != nil {
		return Result{}, fmt.Errorf("track failed login: %w", err)
	}
	return Result{Allowed: false, Remaining: 0, ResetAt: until, Locked: true}, nil
}

// ClearFailedLogins resets the failed password counter of userID together
// with its login budget and lock. The API budget is left alone.
func (l *Limiter) ClearFailedLogins(ctx context.Context, userID string) error {
	if err := l.store.Delete(ctx, FailedLoginKey(userID)); err != nil {
		return fmt.Errorf("clear failed logins: %w", err)
	}
	if err := l.store.Delete(ctx, UserKey(userID)); err != nil {
		return fmt.Errorf("clear failed logins: %w", err)
	}
	return nil
}
