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

// sessionRetentionSeconds delays the TTL sweep past logical expiry so a late
// poll still observes the record and reports expired_token. Expiry itself is
// checked lazily at poll and authorize time.
const sessionRetentionSeconds = 3600

// DeviceSessionRepository implements domain.DeviceSessionRepository on
// MongoDB. Both flow transitions are single conditional document operations,
// so concurrent authorizers and pollers resolve to exactly one winner each.
type DeviceSessionRepository struct {
	sessions *mongo.Collection
}

func NewDeviceSessionRepository(ctx context.Context, db *mongo.Database) (*DeviceSessionRepository, error) {
	coll := db.Collection(DeviceSessionsCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "device_code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user_code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(sessionRetentionSeconds),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create device session indexes: %w", err)
	}

	return &DeviceSessionRepository{sessions: coll}, nil
}

func (r *DeviceSessionRepository) Create(ctx context.Context, session *domain.DeviceSession) error {
	session.ID = uuid.NewString()
	session.CreatedAt = time.Now().UTC()

	_, err := r.sessions.InsertOne(ctx, session)
	return err
}

func (r *DeviceSessionRepository) GetByDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceSession, error) {
	var result domain.DeviceSession

	err := r.sessions.FindOne(ctx, bson.M{"device_code": deviceCode}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrDeviceCodeNotFound
		}
		return nil, err
	}

	return &result, nil
}

func (r *DeviceSessionRepository) GetByUserCode(ctx context.Context, userCode string) (*domain.DeviceSession, error) {
	var result domain.DeviceSession

	err := r.sessions.FindOne(ctx, bson.M{"user_code": userCode}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrUserCodeNotFound
		}
		return nil, err
	}

	return &result, nil
}

func (r *DeviceSessionRepository) Authorize(ctx context.Context, userCode, userID, userEmail string) (*domain.DeviceSession, error) {
	filter := bson.M{
		"user_code":  userCode,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
		"status":     domain.DeviceSessionStatusPending,
	}
	update := bson.M{
		"$set": bson.M{
			"status":     domain.DeviceSessionStatusAuthorized,
			"user_id":    userID,
			"user_email": userEmail,
		},
	}
	opt := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated domain.DeviceSession
	err := r.sessions.FindOneAndUpdate(ctx, filter, update, opt).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrCannotAuthorizeSession
		}
		return nil, err
	}

	return &updated, nil
}

func (r *DeviceSessionRepository) Consume(ctx context.Context, deviceCode string) (*domain.DeviceSession, error) {
	filter := bson.M{
		"device_code": deviceCode,
		"status":      domain.DeviceSessionStatusAuthorized,
	}

	var consumed domain.DeviceSession
	err := r.sessions.FindOneAndDelete(ctx, filter).Decode(&consumed)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrDeviceCodeNotFound
		}
		return nil, err
	}

	return &consumed, nil
}

func (r *DeviceSessionRepository) Delete(ctx context.Context, deviceCode string) error {
	_, err := r.sessions.DeleteOne(ctx, bson.M{"device_code": deviceCode})
	return err
}

func (r *DeviceSessionRepository) TouchPolled(ctx context.Context, deviceCode string) error {
	filter := bson.M{"device_code": deviceCode}
	update := bson.M{"$set": bson.M{"last_polled_at": time.Now().UTC()}}

	result, err := r.sessions.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return serrors.ErrDeviceCodeNotFound
	}

	return nil
}

func (r *DeviceSessionRepository) DeleteExpired(ctx context.Context) error {
	// Sessions linger for the retention window past expiry so a late poll
	// still learns it expired rather than seeing an unknown code.
	cutoff := time.Now().UTC().Add(-sessionRetentionSeconds * time.Second)
	filter := bson.M{"expires_at": bson.M{"$lte": cutoff}}

	_, err := r.sessions.DeleteMany(ctx, filter)
	return err
}
