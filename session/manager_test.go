package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pilab-dev/hospital-gate/domain"
	mock_domain "github.com/pilab-dev/hospital-gate/domain/mocks"
	"github.com/pilab-dev/hospital-gate/memory"
	"github.com/pilab-dev/hospital-gate/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	idleTimeout    = 30 * time.Minute
	absoluteMaxAge = 24 * time.Hour
)

type fixture struct {
	sessions *memory.SessionRepository
	users    *memory.UserRepository
	mgr      *session.Manager
	now      time.Time
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		sessions: memory.NewSessionRepository(),
		users: memory.NewUserRepository(domain.User{
			ID:       "u1",
			Email:    "nurse@example.com",
			Role:     domain.RoleStaff,
			TenantID: "t1",
			IsActive: true,
		}),
		now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	}

	seq := 0
	f.mgr = session.NewManager(f.sessions, f.users,
		session.Config{IdleTimeout: idleTimeout, AbsoluteMaxAge: absoluteMaxAge},
		session.WithClock(func() time.Time { return f.now }),
		session.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("s%d", seq)
		}),
	)
	return f
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.mgr.Create(ctx, session.CreateParams{UserID: "u1", UserAgent: "ua", IP: "10.0.0.1", TenantID: "t1"})
	require.NoError(t, err)

	rec, err := f.sessions.FindSession(ctx, "u1", id)
	require.NoError(t, err)
	require.NotNil(t, rec.IdleExpiresAt)
	require.NotNil(t, rec.AbsoluteExpiresAt)
	assert.Equal(t, f.now.Add(idleTimeout), *rec.IdleExpiresAt)
	assert.Equal(t, f.now.Add(absoluteMaxAge), *rec.AbsoluteExpiresAt)
	assert.Equal(t, *rec.IdleExpiresAt, rec.ExpiresAt)
	assert.Equal(t, "t1", rec.TenantID)
	assert.Equal(t, "10.0.0.1", rec.IP)

	u, err := f.users.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, id, u.ActiveSessionID)
}

func TestValidate_SlidesIdleWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.mgr.Create(ctx, session.CreateParams{UserID: "u1"})
	require.NoError(t, err)

	f.advance(20 * time.Minute)
	v, err := f.mgr.Validate(ctx, "u1", id)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, session.ReasonNone, v.Reason)

	rec, err := f.sessions.FindSession(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, f.now, *rec.LastActivityAt)
	assert.Equal(t, f.now.Add(idleTimeout), *rec.IdleExpiresAt)
	assert.Equal(t, f.now.Add(idleTimeout), rec.ExpiresAt)

	// 40 minutes after creation but only 20 after the last activity
	f.advance(20 * time.Minute)
	v, err = f.mgr.Validate(ctx, "u1", id)
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestValidate_IdleExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.mgr.Create(ctx, session.CreateParams{UserID: "u1"})
	require.NoError(t, err)

	f.advance(idleTimeout + time.Second)
	v, err := f.mgr.Validate(ctx, "u1", id)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.True(t, v.Expired)
	assert.True(t, v.IdleExpired)
	assert.False(t, v.AbsoluteExpired)
	assert.Equal(t, session.ReasonIdleExpired, v.Reason)

	_, err = f.sessions.FindSession(ctx, "u1", id)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestValidate_AbsoluteExpiredEvenWhenActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.mgr.Create(ctx, session.CreateParams{UserID: "u1"})
	require.NoError(t, err)

	// keep the session warm right up to the absolute ceiling
	for elapsed := time.Duration(0); elapsed < absoluteMaxAge-idleTimeout; elapsed += 25 * time.Minute {
		f.advance(25 * time.Minute)
		v, err := f.mgr.Validate(ctx, "u1", id)
		require.NoError(t, err)
		require.True(t, v.Valid)
	}

	rec, err := f.sessions.FindSession(ctx, "u1", id)
	require.NoError(t, err)
	f.now = rec.AbsoluteExpiresAt.Add(-time.Second)
	v, err := f.mgr.Validate(ctx, "u1", id)
	require.NoError(t, err)
	require.True(t, v.Valid)

	rec, err = f.sessions.FindSession(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, *rec.AbsoluteExpiresAt, rec.ExpiresAt)

	f.advance(2 * time.Second)
	v, err = f.mgr.Validate(ctx, "u1", id)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.True(t, v.AbsoluteExpired)
	assert.False(t, v.IdleExpired)
	assert.Equal(t, session.ReasonAbsoluteExpired, v.Reason)
}

func TestValidate_SupersededByNewLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.mgr.Create(ctx, session.CreateParams{UserID: "u1"})
	require.NoError(t, err)
	second, err := f.mgr.Create(ctx, session.CreateParams{UserID: "u1"})
	require.NoError(t, err)

	v, err := f.mgr.Validate(ctx, "u1", first)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, session.ReasonSuperseded, v.Reason)
	assert.False(t, v.Expired)

	// a superseded session is not deleted
	_, err = f.sessions.FindSession(ctx, "u1", first)
	assert.NoError(t, err)

	v, err = f.mgr.Validate(ctx, "u1", second)
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestValidate_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	v, err := f.mgr.Validate(ctx, "u1", "missing")
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, session.ReasonNotFound, v.Reason)

	id, err := f.mgr.Create(ctx, session.CreateParams{UserID: "u1"})
	require.NoError(t, err)

	// another user's id does not match
	v, err = f.mgr.Validate(ctx, "u2", id)
	require.NoError(t, err)
	assert.Equal(t, session.ReasonNotFound, v.Reason)
}

func TestValidate_UserNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	now := f.now
	idle := now.Add(idleTimeout)
	abs := now.Add(absoluteMaxAge)
	require.NoError(t, f.sessions.InsertSession(ctx, &domain.SessionRecord{
		SessionID: "orphan", UserID: "ghost", CreatedAt: now, LastSeenAt: now,
		ExpiresAt: idle, IdleExpiresAt: &idle, AbsoluteExpiresAt: &abs,
	}))

	v, err := f.mgr.Validate(ctx, "ghost", "orphan")
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, session.ReasonUserNotFound, v.Reason)
}

func TestValidate_LegacyShape(t *testing.T) {
	ctx := context.Background()

	insertLegacy := func(t *testing.T, f *fixture, expiresAt time.Time) {
		t.Helper()
		created := f.now.Add(-6 * 24 * time.Hour)
		require.NoError(t, f.sessions.InsertSession(ctx, &domain.SessionRecord{
			SessionID:  "legacy",
			UserID:     "u1",
			TenantID:   "t1",
			CreatedAt:  created,
			LastSeenAt: created,
			ExpiresAt:  expiresAt,
		}))
		require.NoError(t, f.users.SetActiveSession(ctx, "u1", "legacy"))
	}

	t.Run("one millisecond past expiry is rejected and deleted", func(t *testing.T) {
		f := newFixture(t)
		insertLegacy(t, f, f.now.Add(-time.Millisecond))

		v, err := f.mgr.Validate(ctx, "u1", "legacy")
		require.NoError(t, err)
		assert.False(t, v.Valid)
		assert.True(t, v.Expired)
		assert.Equal(t, session.ReasonExpired, v.Reason)

		_, err = f.sessions.FindSessionByID(ctx, "legacy")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("one millisecond before expiry validates and only touches lastSeenAt", func(t *testing.T) {
		f := newFixture(t)
		expiresAt := f.now.Add(time.Millisecond)
		insertLegacy(t, f, expiresAt)

		v, err := f.mgr.Validate(ctx, "u1", "legacy")
		require.NoError(t, err)
		assert.True(t, v.Valid)

		rec, err := f.sessions.FindSessionByID(ctx, "legacy")
		require.NoError(t, err)
		assert.Equal(t, f.now, rec.LastSeenAt)
		assert.Equal(t, expiresAt, rec.ExpiresAt)
		assert.Nil(t, rec.IdleExpiresAt)
		assert.Nil(t, rec.AbsoluteExpiresAt)
		assert.Nil(t, rec.LastActivityAt)
	})
}

func TestRotate_PreservesTenant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	old, err := f.mgr.Create(ctx, session.CreateParams{UserID: "u1", TenantID: "t1"})
	require.NoError(t, err)

	f.advance(time.Minute)
	fresh, err := f.mgr.Rotate(ctx, session.RotateParams{UserID: "u1", OldSessionID: old, TenantID: "ignored"})
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh)

	_, err = f.sessions.FindSessionByID(ctx, old)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	s, err := f.mgr.Get(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, "t1", s.TenantID)
	assert.Equal(t, domain.ShapeTimed, s.Shape)

	v, err := f.mgr.Validate(ctx, "u1", fresh)
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestRotate_MissingOldSessionUsesFallbackTenant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.mgr.Rotate(ctx, session.RotateParams{UserID: "u1", OldSessionID: "gone", TenantID: "t1"})
	require.NoError(t, err)

	s, err := f.mgr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "t1", s.TenantID)
}

func TestDeleteUserSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mgr.Create(ctx, session.CreateParams{UserID: "u1"})
	require.NoError(t, err)
	id, err := f.mgr.Create(ctx, session.CreateParams{UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, f.mgr.DeleteUserSessions(ctx, "u1"))
	assert.Equal(t, 0, f.sessions.Len())

	u, err := f.users.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, u.ActiveSessionID)

	v, err := f.mgr.Validate(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, session.ReasonNotFound, v.Reason)
}

func TestDelete_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.mgr.Create(ctx, session.CreateParams{UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, f.mgr.Delete(ctx, id))
	require.NoError(t, f.mgr.Delete(ctx, id))
}

var errBoom = errors.New("connection reset")

func TestValidate_StoreErrorIsWrapped(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := mock_domain.NewMockSessionRepository(ctrl)
	users := mock_domain.NewMockUserRepository(ctrl)

	sessions.EXPECT().FindSession(gomock.Any(), "u1", "s1").Return(nil, errBoom)

	mgr := session.NewManager(sessions, users, session.Config{IdleTimeout: idleTimeout, AbsoluteMaxAge: absoluteMaxAge})

	_, err := mgr.Validate(context.Background(), "u1", "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrStore)
	assert.ErrorIs(t, err, errBoom)
}

func TestValidate_UserStoreErrorIsWrapped(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := mock_domain.NewMockSessionRepository(ctrl)
	users := mock_domain.NewMockUserRepository(ctrl)

	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	idle := now.Add(idleTimeout)
	abs := now.Add(absoluteMaxAge)
	sessions.EXPECT().FindSession(gomock.Any(), "u1", "s1").Return(&domain.SessionRecord{
		SessionID: "s1", UserID: "u1", CreatedAt: now, LastSeenAt: now,
		ExpiresAt: idle, IdleExpiresAt: &idle, AbsoluteExpiresAt: &abs,
	}, nil)
	users.EXPECT().GetUserByID(gomock.Any(), "u1").Return(nil, errBoom)

	mgr := session.NewManager(sessions, users,
		session.Config{IdleTimeout: idleTimeout, AbsoluteMaxAge: absoluteMaxAge},
		session.WithClock(func() time.Time { return now }))

	_, err := mgr.Validate(context.Background(), "u1", "s1")
	assert.ErrorIs(t, err, session.ErrStore)
}

func TestValidate_SlideRaceReportsNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := mock_domain.NewMockSessionRepository(ctrl)
	users := mock_domain.NewMockUserRepository(ctrl)

	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	idle := now.Add(idleTimeout)
	abs := now.Add(absoluteMaxAge)
	sessions.EXPECT().FindSession(gomock.Any(), "u1", "s1").Return(&domain.SessionRecord{
		SessionID: "s1", UserID: "u1", CreatedAt: now, LastSeenAt: now,
		ExpiresAt: idle, IdleExpiresAt: &idle, AbsoluteExpiresAt: &abs,
	}, nil)
	users.EXPECT().GetUserByID(gomock.Any(), "u1").Return(&domain.User{ID: "u1", ActiveSessionID: "s1", IsActive: true}, nil)
	// Rotated away between the read and the slide.
	sessions.EXPECT().TouchSession(gomock.Any(), "s1", gomock.Any()).Return(domain.ErrSessionNotFound)

	mgr := session.NewManager(sessions, users,
		session.Config{IdleTimeout: idleTimeout, AbsoluteMaxAge: absoluteMaxAge},
		session.WithClock(func() time.Time { return now.Add(time.Minute) }))

	v, err := mgr.Validate(context.Background(), "u1", "s1")
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, session.ReasonNotFound, v.Reason)
}
