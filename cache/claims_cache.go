package cache

import (
	"context"
	"time"
)

// SessionClaims are the verified claims of a session token. Hot request paths
// cache them so repeated calls with the same bearer token skip re-parsing the
// JWT. Entries expire with the token, so the cache can never extend a token's
// life.
type SessionClaims struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	DeviceType string    `json:"device_type"`
	DeviceID   string    `json:"device_id"`
	SessionID  string    `json:"session_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ClaimsCache caches verified session-token claims keyed by the raw token.
type ClaimsCache interface {
	Set(ctx context.Context, token string, claims *SessionClaims) error
	Get(ctx context.Context, token string) (*SessionClaims, bool)
	Delete(ctx context.Context, token string)
}
