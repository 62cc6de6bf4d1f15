package domain

import (
	"context"
	"errors"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionExists   = errors.New("session with this ID already exists")
)

//go:generate go run go.uber.org/mock/mockgen@latest -source=$GOFILE -destination=mocks/mock_$GOFILE -package=mock_domain

// SessionRepository persists session records.
// Lookups that match nothing return ErrSessionNotFound.
type SessionRepository interface {
	InsertSession(ctx context.Context, rec *SessionRecord) error
	FindSession(ctx context.Context, userID, sessionID string) (*SessionRecord, error)
	FindSessionByID(ctx context.Context, sessionID string) (*SessionRecord, error)
	TouchSession(ctx context.Context, sessionID string, touch SessionTouch) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteUserSessions(ctx context.Context, userID string) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

// UserRepository reads users and maintains their active session pointer.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	SetActiveSession(ctx context.Context, userID, sessionID string) error
	ClearActiveSession(ctx context.Context, userID string) error
}
