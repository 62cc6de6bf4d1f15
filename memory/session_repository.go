// Package memory provides in-process implementations of the domain
// repositories for local development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/pilab-dev/hospital-gate/domain"
)

// SessionRepository keeps session records in a map keyed by session id.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionRecord
}

// NewSessionRepository creates an empty repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]domain.SessionRecord),
	}
}

// InsertSession stores a new record.
func (r *SessionRepository) InsertSession(_ context.Context, rec *domain.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[rec.SessionID]; ok {
		return domain.ErrSessionExists
	}
	r.sessions[rec.SessionID] = cloneRecord(rec)
	return nil
}

// FindSession returns the record matching both ids.
func (r *SessionRepository) FindSession(_ context.Context, userID, sessionID string) (*domain.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[sessionID]
	if !ok || rec.UserID != userID {
		return nil, domain.ErrSessionNotFound
	}
	out := cloneRecord(&rec)
	return &out, nil
}

// FindSessionByID returns the record with the given session id.
func (r *SessionRepository) FindSessionByID(_ context.Context, sessionID string) (*domain.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := cloneRecord(&rec)
	return &out, nil
}

// TouchSession applies a validation update.
func (r *SessionRepository) TouchSession(_ context.Context, sessionID string, touch domain.SessionTouch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}

	rec.LastSeenAt = touch.LastSeenAt
	if touch.LastActivityAt != nil {
		rec.LastActivityAt = timePtr(*touch.LastActivityAt)
	}
	if touch.IdleExpiresAt != nil {
		rec.IdleExpiresAt = timePtr(*touch.IdleExpiresAt)
	}
	if touch.ExpiresAt != nil {
		rec.ExpiresAt = *touch.ExpiresAt
	}
	r.sessions[sessionID] = rec
	return nil
}

// DeleteSession removes a record. Deleting a missing record is not an error.
func (r *SessionRepository) DeleteSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
	return nil
}

// DeleteUserSessions removes every record of userID.
func (r *SessionRepository) DeleteUserSessions(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, rec := range r.sessions {
		if rec.UserID == userID {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// EnsureIndexes is a no-op.
func (r *SessionRepository) EnsureIndexes(context.Context) error {
	return nil
}

// Len returns the number of stored records.
func (r *SessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func cloneRecord(rec *domain.SessionRecord) domain.SessionRecord {
	out := *rec
	if rec.LastActivityAt != nil {
		out.LastActivityAt = timePtr(*rec.LastActivityAt)
	}
	if rec.IdleExpiresAt != nil {
		out.IdleExpiresAt = timePtr(*rec.IdleExpiresAt)
	}
	if rec.AbsoluteExpiresAt != nil {
		out.AbsoluteExpiresAt = timePtr(*rec.AbsoluteExpiresAt)
	}
	return out
}

var _ domain.SessionRepository = (*SessionRepository)(nil)
