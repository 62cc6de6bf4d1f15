package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/pilab-dev/hospital-gate/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// SessionRepository implements domain.SessionRepository on the sessions collection.
type SessionRepository struct {
	collection *mongo.Collection
}

// NewSessionRepository creates a SessionRepository. Call EnsureIndexes once at startup.
func NewSessionRepository(db *mongo.Database) *SessionRepository {
	return &SessionRepository{
		collection: db.Collection(SessionsCollection),
	}
}

// EnsureIndexes creates the session indexes. The TTL index on expiresAt lets
// MongoDB remove sessions nobody validates anymore.
func (r *SessionRepository) EnsureIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sessionId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "idleExpiresAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "absoluteExpiresAt", Value: 1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("create session indexes: %w", err)
	}

	log.Ctx(ctx).Info().Msg("Indexes for sessions collection ensured.")
	return nil
}

// InsertSession stores a new session record.
func (r *SessionRepository) InsertSession(ctx context.Context, rec *domain.SessionRecord) error {
	if _, err := r.collection.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindSession returns the session matching both the user and session id.
func (r *SessionRepository) FindSession(ctx context.Context, userID, sessionID string) (*domain.SessionRecord, error) {
	return r.findOne(ctx, bson.M{"userId": userID, "sessionId": sessionID})
}

// FindSessionByID returns the session with the given id.
func (r *SessionRepository) FindSessionByID(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	return r.findOne(ctx, bson.M{"sessionId": sessionID})
}

func (r *SessionRepository) findOne(ctx context.Context, filter bson.M) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	if err := r.collection.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &rec, nil
}

// TouchSession writes the fields of a successful validation.
// Legacy records only get lastSeenAt.
func (r *SessionRepository) TouchSession(ctx context.Context, sessionID string, touch domain.SessionTouch) error {
	set := bson.M{"lastSeenAt": touch.LastSeenAt}
	if touch.LastActivityAt != nil {
		set["lastActivityAt"] = *touch.LastActivityAt
	}
	if touch.IdleExpiresAt != nil {
		set["idleExpiresAt"] = *touch.IdleExpiresAt
	}
	if touch.ExpiresAt != nil {
		set["expiresAt"] = *touch.ExpiresAt
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"sessionId": sessionID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes one session. A missing session is not an error.
func (r *SessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"sessionId": sessionID}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteUserSessions removes every session of a user.
func (r *SessionRepository) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return result.DeletedCount, nil
}

var _ domain.SessionRepository = (*SessionRepository)(nil)
