package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pilab-dev/hospital-gate/domain"
)

// UserRepository keeps users in memory, keyed by id.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
	now   func() time.Time
}

// NewUserRepository creates a repository seeded with users.
func NewUserRepository(users ...domain.User) *UserRepository {
	r := &UserRepository{
		users: make(map[string]domain.User, len(users)),
		now:   time.Now,
	}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

// Put inserts or replaces a user.
func (r *UserRepository) Put(u domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// GetUserByID implements domain.UserRepository.
func (r *UserRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

// GetUserByEmail implements domain.UserRepository. Emails match case-insensitively.
func (r *UserRepository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// SetActiveSession implements domain.UserRepository.
func (r *UserRepository) SetActiveSession(_ context.Context, userID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.ActiveSessionID = sessionID
	u.UpdatedAt = r.now()
	r.users[userID] = u
	return nil
}

// ClearActiveSession implements domain.UserRepository.
func (r *UserRepository) ClearActiveSession(ctx context.Context, userID string) error {
	return r.SetActiveSession(ctx, userID, "")
}

func cloneUser(u domain.User) *domain.User {
	u.Permissions = append([]string(nil), u.Permissions...)
	return &u
}

func timePtr(t time.Time) *time.Time {
	return &t
}

var _ domain.UserRepository = (*UserRepository)(nil)
