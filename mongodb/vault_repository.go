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

// VaultRepository implements domain.VaultRepository on MongoDB.
type VaultRepository struct {
	entries *mongo.Collection
}

func NewVaultRepository(ctx context.Context, db *mongo.Database) (*VaultRepository, error) {
	coll := db.Collection(VaultEntriesCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "provider", Value: 1},
				{Key: "account_slot", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vault indexes: %w", err)
	}

	return &VaultRepository{entries: coll}, nil
}

func (r *VaultRepository) keyFilter(userID, provider, accountSlot string) bson.M {
	return bson.M{
		"user_id":      userID,
		"provider":     provider,
		"account_slot": accountSlot,
	}
}

func (r *VaultRepository) Upsert(ctx context.Context, entry *domain.VaultEntry) error {
	now := time.Now().UTC()
	entry.UpdatedAt = now

	update := bson.M{
		"$set": bson.M{
			"email":         entry.Email,
			"access_token":  entry.AccessToken,
			"refresh_token": entry.RefreshToken,
			"expires_at":    entry.ExpiresAt,
			"scopes":        entry.Scopes,
			"display_name":  entry.DisplayName,
			"client_kind":   entry.ClientKind,
			"updated_at":    entry.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"created_at": now,
		},
	}

	_, err := r.entries.UpdateOne(ctx,
		r.keyFilter(entry.UserID, entry.Provider, entry.AccountSlot),
		update,
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (r *VaultRepository) Update(ctx context.Context, entry *domain.VaultEntry) error {
	entry.UpdatedAt = time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"access_token":  entry.AccessToken,
			"refresh_token": entry.RefreshToken,
			"expires_at":    entry.ExpiresAt,
			"updated_at":    entry.UpdatedAt,
		},
	}

	result, err := r.entries.UpdateOne(ctx,
		r.keyFilter(entry.UserID, entry.Provider, entry.AccountSlot),
		update,
	)
	if err != nil {
		return err
	}
	// A removed account must stay removed; an in-flight refresh never
	// re-creates the entry.
	if result.MatchedCount == 0 {
		return serrors.ErrAccountNotFound
	}

	return nil
}

func (r *VaultRepository) Get(ctx context.Context, userID, provider, accountSlot string) (*domain.VaultEntry, error) {
	var result domain.VaultEntry

	err := r.entries.FindOne(ctx, r.keyFilter(userID, provider, accountSlot)).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrAccountNotFound
		}
		return nil, err
	}

	return &result, nil
}

func (r *VaultRepository) ListByUser(ctx context.Context, userID string) ([]*domain.VaultEntry, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "provider", Value: 1},
		{Key: "account_slot", Value: 1},
	})

	cursor, err := r.entries.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*domain.VaultEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *VaultRepository) Delete(ctx context.Context, userID, provider, accountSlot string) error {
	result, err := r.entries.DeleteOne(ctx, r.keyFilter(userID, provider, accountSlot))
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return serrors.ErrAccountNotFound
	}

	return nil
}
