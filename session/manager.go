// Package session manages login sessions: creation, validation with idle and
// absolute lifetimes, rotation and deletion.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/hospital-gate/domain"
	"github.com/rs/zerolog/log"
)

// ErrStore marks failures of the session or user store.
var ErrStore = errors.New("session store error")

// Reason explains why a session failed validation.
type Reason string

const (
	ReasonNone            Reason = "none"
	ReasonNotFound        Reason = "not_found"
	ReasonExpired         Reason = "expired"
	ReasonIdleExpired     Reason = "idle_expired"
	ReasonAbsoluteExpired Reason = "absolute_expired"
	ReasonSuperseded      Reason = "superseded" // logged in elsewhere
	ReasonUserNotFound    Reason = "user_not_found"
)

// Validation is the outcome of Manager.Validate.
type Validation struct {
	Valid           bool
	Reason          Reason
	Expired         bool
	IdleExpired     bool
	AbsoluteExpired bool
}

func invalid(reason Reason) Validation {
	return Validation{Reason: reason}
}

// Config holds the session lifetimes.
type Config struct {
	IdleTimeout    time.Duration
	AbsoluteMaxAge time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		m.newID = gen
	}
}

// Manager implements the session lifecycle over the session and user repositories.
type Manager struct {
	sessions domain.SessionRepository
	users    domain.UserRepository
	cfg      Config
	now      func() time.Time
	newID    func() string
}

// NewManager creates a Manager.
func NewManager(sessions domain.SessionRepository, users domain.UserRepository, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		sessions: sessions,
		users:    users,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateParams describes a new session.
type CreateParams struct {
	UserID    string
	UserAgent string
	IP        string
	TenantID  string
}

// Create stores a new timed session and makes it the user's active session.
// Any other session of the user stops validating from this point on.
func (m *Manager) Create(ctx context.Context, p CreateParams) (string, error) {
	now := m.now().UTC()
	idle := now.Add(m.cfg.IdleTimeout)
	absolute := now.Add(m.cfg.AbsoluteMaxAge)

	rec := &domain.SessionRecord{
		SessionID:         m.newID(),
		UserID:            p.UserID,
		TenantID:          p.TenantID,
		CreatedAt:         now,
		LastSeenAt:        now,
		LastActivityAt:    &now,
		ExpiresAt:         domain.EarliestDeadline(idle, absolute),
		IdleExpiresAt:     &idle,
		AbsoluteExpiresAt: &absolute,
		UserAgent:         p.UserAgent,
		IP:                p.IP,
	}

	if err := m.sessions.InsertSession(ctx, rec); err != nil {
		return "", fmt.Errorf("%w: insert session: %w", ErrStore, err)
	}

	if err := m.users.SetActiveSession(ctx, p.UserID, rec.SessionID); err != nil {
		return "", fmt.Errorf("%w: set active session: %w", ErrStore, err)
	}

	log.Ctx(ctx).Debug().
		Str("user_id", p.UserID).
		Str("session_id", rec.SessionID).
		Bool("has_tenant", p.TenantID != "").
		Msg("session created")

	return rec.SessionID, nil
}

// Validate checks a session of userID.
//
// Legacy sessions only expire on expiresAt. Timed sessions are checked against
// their absolute deadline first and their idle deadline second. An expired
// session is deleted. A session that is not the user's active one is reported
// as superseded and left in place. A valid timed session slides its idle
// window; a valid legacy session only gets lastSeenAt updated.
func (m *Manager) Validate(ctx context.Context, userID, sessionID string) (Validation, error) {
	rec, err := m.sessions.FindSession(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return invalid(ReasonNotFound), nil
		}
		return Validation{}, fmt.Errorf("%w: find session: %w", ErrStore, err)
	}

	s := domain.ResolveSession(rec, m.cfg.IdleTimeout, m.cfg.AbsoluteMaxAge)
	now := m.now().UTC()

	if v, expired := m.checkExpiry(s, now); expired {
		if err := m.sessions.DeleteSession(ctx, sessionID); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("failed to delete expired session")
		}
		return v, nil
	}

	user, err := m.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return invalid(ReasonUserNotFound), nil
		}
		return Validation{}, fmt.Errorf("%w: get user: %w", ErrStore, err)
	}
	if user.ActiveSessionID != sessionID {
		return invalid(ReasonSuperseded), nil
	}

	if err := m.sessions.TouchSession(ctx, sessionID, m.touchFor(s, now)); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			// rotated or deleted concurrently
			return invalid(ReasonNotFound), nil
		}
		return Validation{}, fmt.Errorf("%w: touch session: %w", ErrStore, err)
	}

	return Validation{Valid: true, Reason: ReasonNone}, nil
}

func (m *Manager) checkExpiry(s *domain.Session, now time.Time) (Validation, bool) {
	switch s.Shape {
	case domain.ShapeTimed:
		if now.After(s.AbsoluteExpiresAt) {
			return Validation{Reason: ReasonAbsoluteExpired, Expired: true, AbsoluteExpired: true}, true
		}
		if now.After(s.IdleExpiresAt) {
			return Validation{Reason: ReasonIdleExpired, Expired: true, IdleExpired: true}, true
		}
	default:
		if now.After(s.ExpiresAt) {
			return Validation{Reason: ReasonExpired, Expired: true}, true
		}
	}
	return Validation{}, false
}

func (m *Manager) touchFor(s *domain.Session, now time.Time) domain.SessionTouch {
	touch := domain.SessionTouch{LastSeenAt: now}
	if s.Shape != domain.ShapeTimed {
		return touch
	}

	idle := now.Add(m.cfg.IdleTimeout)
	expires := domain.EarliestDeadline(idle, s.AbsoluteExpiresAt)
	touch.LastActivityAt = &now
	touch.IdleExpiresAt = &idle
	touch.ExpiresAt = &expires
	return touch
}

// Get returns the resolved session with the given id.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	rec, err := m.sessions.FindSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: find session: %w", ErrStore, err)
	}
	return domain.ResolveSession(rec, m.cfg.IdleTimeout, m.cfg.AbsoluteMaxAge), nil
}

// RotateParams describes a session rotation.
type RotateParams struct {
	UserID       string
	OldSessionID string
	UserAgent    string
	IP           string
	// TenantID is only used when the old session carries no tenant.
	TenantID string
}

// Rotate replaces OldSessionID with a new session of the same tenant.
func (m *Manager) Rotate(ctx context.Context, p RotateParams) (string, error) {
	tenantID := p.TenantID

	old, err := m.sessions.FindSession(ctx, p.UserID, p.OldSessionID)
	switch {
	case err == nil:
		if old.TenantID != "" {
			tenantID = old.TenantID
		}
		if err := m.Delete(ctx, p.OldSessionID); err != nil {
			return "", err
		}
	case errors.Is(err, domain.ErrSessionNotFound):
	default:
		return "", fmt.Errorf("%w: find session: %w", ErrStore, err)
	}

	id, err := m.Create(ctx, CreateParams{
		UserID:    p.UserID,
		UserAgent: p.UserAgent,
		IP:        p.IP,
		TenantID:  tenantID,
	})
	if err != nil {
		return "", err
	}

	log.Ctx(ctx).Debug().
		Str("user_id", p.UserID).
		Str("old_session_id", p.OldSessionID).
		Str("session_id", id).
		Msg("session rotated")

	return id, nil
}

// Delete removes one session.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.sessions.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("%w: delete session: %w", ErrStore, err)
	}
	return nil
}

// DeleteUserSessions removes every session of userID and clears its active session.
func (m *Manager) DeleteUserSessions(ctx context.Context, userID string) error {
	n, err := m.sessions.DeleteUserSessions(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: delete user sessions: %w", ErrStore, err)
	}

	if err := m.users.ClearActiveSession(ctx, userID); err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("%w: clear active session: %w", ErrStore, err)
	}

	log.Ctx(ctx).Debug().Str("user_id", userID).Int64("deleted", n).Msg("user sessions deleted")
	return nil
}

// EnsureIndexes creates the session store indexes.
func (m *Manager) EnsureIndexes(ctx context.Context) error {
	if err := m.sessions.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("%w: ensure indexes: %w", ErrStore, err)
	}
	return nil
}
