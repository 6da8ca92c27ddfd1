package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
)

// UserRepository implements domain.UserRepository on MongoDB.
type UserRepository struct {
	users *mongo.Collection
}

func NewUserRepository(ctx context.Context, db *mongo.Database) (*UserRepository, error) {
	coll := db.Collection(UsersCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "provider", Value: 1},
				{Key: "subject", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user indexes: %w", err)
	}

	return &UserRepository{users: coll}, nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()

	_, err := r.users.InsertOne(ctx, user)
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) GetByProviderSubject(ctx context.Context, provider, subject string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"provider": provider, "subject": subject})
}

func (r *UserRepository) TouchLogin(ctx context.Context, id string) error {
	update := bson.M{"$set": bson.M{"last_login_at": time.Now().UTC()}}

	result, err := r.users.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return serrors.ErrUserNotFound
	}

	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var result domain.User

	err := r.users.FindOne(ctx, filter).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrUserNotFound
		}
		return nil, err
	}

	return &result, nil
}
