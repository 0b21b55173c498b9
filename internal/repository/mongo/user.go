package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/sakif/todo-auth/internal/apperror"
	"github.com/sakif/todo-auth/internal/model"
	"github.com/sakif/todo-auth/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

type UserStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// userDocument is the BSON shape of a stored user.
type userDocument struct {
	ID             bson.ObjectID `bson:"_id"`
	Email          string        `bson:"email"`
	HashedPassword string        `bson:"hashed_password"`
	Name           string        `bson:"name"`
	DisplayName    *string       `bson:"display_name,omitempty"`
	PhotoURL       *string       `bson:"photo_url,omitempty"`
	PhoneNumber    *string       `bson:"phone_number,omitempty"`
	CreatedAt      time.Time     `bson:"created_at"`
}

func toDocument(u *model.StoredUser) userDocument {
	return userDocument{
		ID:             bson.ObjectID(u.ID),
		Email:          u.Email,
		HashedPassword: u.HashedPassword,
		Name:           u.Name,
		DisplayName:    u.DisplayName,
		PhotoURL:       u.PhotoURL,
		PhoneNumber:    u.PhoneNumber,
		CreatedAt:      u.CreatedAt,
	}
}

func (d userDocument) toModel() *model.StoredUser {
	return &model.StoredUser{
		ID:             xid.ID(d.ID),
		Email:          d.Email,
		HashedPassword: d.HashedPassword,
		Name:           d.Name,
		DisplayName:    d.DisplayName,
		PhotoURL:       d.PhotoURL,
		PhoneNumber:    d.PhoneNumber,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}

func (s *UserStore) Create(ctx context.Context, user *model.StoredUser) error {
	user.ID = repository.NewID()
	// BSON datetimes carry milliseconds.
	user.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := s.coll.InsertOne(ctx, toDocument(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.DuplicateKey("user", "email")
		}
		return fmt.Errorf("mongo: inserting user: %w", err)
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*model.StoredUser, error) {
	native, err := repository.ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: bson.ObjectID(native)}}, id)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*model.StoredUser, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: email}}, email)
}

func (s *UserStore) findOne(ctx context.Context, filter bson.D, key string) (*model.StoredUser, error) {
	var doc userDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("mongo: finding user: %w", err)
	}
	return doc.toModel(), nil
}

func (s *UserStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *UserStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectAfter)
	defer cancel()
	return s.client.Disconnect(ctx)
}
