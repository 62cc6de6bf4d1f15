package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveSession(t *testing.T) {
	created := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	idle := 30 * time.Minute
	absolute := 24 * time.Hour

	t.Run("legacy record", func(t *testing.T) {
		rec := &SessionRecord{
			SessionID:  "s1",
			UserID:     "u1",
			TenantID:   "t1",
			CreatedAt:  created,
			LastSeenAt: created,
			ExpiresAt:  created.Add(7 * 24 * time.Hour),
		}

		s := ResolveSession(rec, idle, absolute)
		assert.Equal(t, ShapeLegacy, s.Shape)
		assert.Equal(t, rec.ExpiresAt, s.ExpiresAt)
		assert.True(t, s.IdleExpiresAt.IsZero())
		assert.Equal(t, "legacy", s.Shape.String())
	})

	t.Run("timed record", func(t *testing.T) {
		last := created.Add(time.Hour)
		idleAt := last.Add(idle)
		absAt := created.Add(absolute)
		rec := &SessionRecord{
			SessionID:         "s1",
			UserID:            "u1",
			CreatedAt:         created,
			LastSeenAt:        last,
			LastActivityAt:    &last,
			ExpiresAt:         idleAt,
			IdleExpiresAt:     &idleAt,
			AbsoluteExpiresAt: &absAt,
		}

		s := ResolveSession(rec, idle, absolute)
		assert.Equal(t, ShapeTimed, s.Shape)
		assert.Equal(t, last, s.LastActivityAt)
		assert.Equal(t, idleAt, s.IdleExpiresAt)
		assert.Equal(t, absAt, s.AbsoluteExpiresAt)
	})

	t.Run("timed record missing absolute deadline", func(t *testing.T) {
		idleAt := created.Add(idle)
		rec := &SessionRecord{CreatedAt: created, LastSeenAt: created, IdleExpiresAt: &idleAt}

		s := ResolveSession(rec, idle, absolute)
		assert.Equal(t, ShapeTimed, s.Shape)
		assert.Equal(t, created.Add(absolute), s.AbsoluteExpiresAt)
	})

	t.Run("timed record missing idle deadline falls back to last seen", func(t *testing.T) {
		absAt := created.Add(absolute)
		seen := created.Add(10 * time.Minute)
		rec := &SessionRecord{CreatedAt: created, LastSeenAt: seen, AbsoluteExpiresAt: &absAt}

		s := ResolveSession(rec, idle, absolute)
		assert.Equal(t, seen, s.LastActivityAt)
		assert.Equal(t, seen.Add(idle), s.IdleExpiresAt)
	})
}

func TestEarliestDeadline(t *testing.T) {
	a := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(time.Second)

	assert.Equal(t, a, EarliestDeadline(a, b))
	assert.Equal(t, a, EarliestDeadline(b, a))
	assert.Equal(t, a, EarliestDeadline(a, a))
}
