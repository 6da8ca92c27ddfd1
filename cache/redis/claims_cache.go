package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hearthview/auth/cache"
)

// ClaimsCache implements cache.ClaimsCache on Redis, for deployments running
// more than one auth-service instance.
type ClaimsCache struct {
	client *redis.Client
	prefix string
}

func NewClaimsCache(client *redis.Client, prefix string) *ClaimsCache {
	return &ClaimsCache{
		client: client,
		prefix: prefix,
	}
}

func (r *ClaimsCache) redisKey(token string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, token)
}

func (r *ClaimsCache) Set(ctx context.Context, token string, claims *cache.SessionClaims) error {
	ttl := time.Until(claims.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("failed to marshal claims: %w", err)
	}

	if err := r.client.Set(ctx, r.redisKey(token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache claims in redis: %w", err)
	}
	return nil
}

func (r *ClaimsCache) Get(ctx context.Context, token string) (*cache.SessionClaims, bool) {
	payload, err := r.client.Get(ctx, r.redisKey(token)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("redis claims cache read failed")
		}
		return nil, false
	}

	var claims cache.SessionClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		log.Warn().Err(err).Msg("corrupt claims cache entry, dropping")
		r.Delete(ctx, token)
		return nil, false
	}
	return &claims, true
}

func (r *ClaimsCache) Delete(ctx context.Context, token string) {
	if err := r.client.Del(ctx, r.redisKey(token)).Err(); err != nil {
		log.Warn().Err(err).Msg("redis claims cache delete failed")
	}
}
