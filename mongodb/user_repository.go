package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pilab-dev/hospital-gate/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UserRepository implements domain.UserRepository on the users collection.
// Users are owned by the user administration module. The request path only
// writes the active session pointer; CreateUser serves operator provisioning.
type UserRepository struct {
	users *mongo.Collection
	now   func() time.Time
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		users: db.Collection(UsersCollection),
		now:   time.Now,
	}
}

// GetUserByID returns the user with the given id.
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

// GetUserByEmail returns the user with the given email, compared case-insensitively.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	opts := options.FindOne().SetCollation(&options.Collation{Locale: "en", Strength: 2})
	return r.findOne(ctx, bson.M{"email": strings.TrimSpace(email)}, opts)
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOneOptions]) (*domain.User, error) {
	var user domain.User
	if err := r.users.FindOne(ctx, filter, opts...).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// ErrUserExists is returned by CreateUser for a duplicate id or email.
var ErrUserExists = errors.New("user already exists")

// CreateUser inserts u. The email is stored trimmed.
func (r *UserRepository) CreateUser(ctx context.Context, u *domain.User) error {
	if _, err := r.GetUserByEmail(ctx, u.Email); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	doc := *u
	doc.Email = strings.TrimSpace(doc.Email)
	doc.ActiveSessionID = ""
	doc.UpdatedAt = r.now().UTC()

	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// SetActiveSession points the user at sessionID.
func (r *UserRepository) SetActiveSession(ctx context.Context, userID, sessionID string) error {
	update := bson.M{"$set": bson.M{
		"activeSessionId": sessionID,
		"updatedAt":       r.now().UTC(),
	}}
	return r.updateUser(ctx, userID, update)
}

// ClearActiveSession removes the active session pointer.
func (r *UserRepository) ClearActiveSession(ctx context.Context, userID string) error {
	update := bson.M{
		"$unset": bson.M{"activeSessionId": ""},
		"$set":   bson.M{"updatedAt": r.now().UTC()},
	}
	return r.updateUser(ctx, userID, update)
}

func (r *UserRepository) updateUser(ctx context.Context, userID string, update bson.M) error {
	result, err := r.users.UpdateOne(ctx, bson.M{"id": userID}, update)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

var _ domain.UserRepository = (*UserRepository)(nil)
