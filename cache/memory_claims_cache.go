package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryClaimsCache is the in-process ClaimsCache.
type MemoryClaimsCache struct {
	cache *ttlcache.Cache[string, *SessionClaims]
}

func NewMemoryClaimsCache() *MemoryClaimsCache {
	c := ttlcache.New[string, *SessionClaims](
		// A cache hit must not extend an entry past its token's expiry.
		ttlcache.WithDisableTouchOnHit[string, *SessionClaims](),
	)
	go c.Start()

	return &MemoryClaimsCache{cache: c}
}

func (m *MemoryClaimsCache) Set(_ context.Context, token string, claims *SessionClaims) error {
	ttl := time.Until(claims.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	m.cache.Set(token, claims, ttl)
	return nil
}

func (m *MemoryClaimsCache) Get(_ context.Context, token string) (*SessionClaims, bool) {
	item := m.cache.Get(token)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (m *MemoryClaimsCache) Delete(_ context.Context, token string) {
	m.cache.Delete(token)
}

// Close stops the background expiration loop.
func (m *MemoryClaimsCache) Close() {
	m.cache.Stop()
}
