package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hearthview/auth/cache"
	serrors "github.com/hearthview/auth/errors"
)

// DefaultSessionTokenTTL covers a TV's unattended runtime between refreshes.
const DefaultSessionTokenTTL = 72 * time.Hour

type sessionClaims struct {
	Email      string `json:"email"`
	DeviceType string `json:"device_type"`
	DeviceID   string `json:"device_id"`
	SessionID  string `json:"session_id"`
	jwt.RegisteredClaims
}

// SessionTokenService mints and verifies the system's own bearer tokens,
// distinct from any provider token. Each mint embeds a fresh device_id /
// session_id pair, so one user holds many concurrently valid tokens, one per
// physical device instance.
//
// There is no revocation list; the short validity window plus forced
// re-authentication on refresh failure covers revocation.
type SessionTokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	claims cache.ClaimsCache
}

func NewSessionTokenService(secret []byte, issuer string, ttl time.Duration, claimsCache cache.ClaimsCache) *SessionTokenService {
	if ttl <= 0 {
		ttl = DefaultSessionTokenTTL
	}
	return &SessionTokenService{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		claims: claimsCache,
	}
}

// Mint issues a session token for a newly authenticated device instance.
func (s *SessionTokenService) Mint(userID, email, deviceType string) (string, error) {
	return s.mint(userID, email, deviceType, uuid.NewString(), uuid.NewString())
}

func (s *SessionTokenService) mint(userID, email, deviceType, deviceID, sessionID string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Email:      email,
		DeviceType: deviceType,
		DeviceID:   deviceID,
		SessionID:  sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// Verify validates a session token's signature and expiry and returns its
// claims. Verified claims are cached until token expiry so hot request paths
// skip re-parsing.
func (s *SessionTokenService) Verify(ctx context.Context, token string) (*cache.SessionClaims, error) {
	if s.claims != nil {
		if cached, ok := s.claims.Get(ctx, token); ok {
			return cached, nil
		}
	}

	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", serrors.ErrInvalidSessionToken, err)
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, serrors.ErrInvalidSessionToken
	}

	verified := &cache.SessionClaims{
		UserID:     claims.Subject,
		Email:      claims.Email,
		DeviceType: claims.DeviceType,
		DeviceID:   claims.DeviceID,
		SessionID:  claims.SessionID,
		ExpiresAt:  claims.ExpiresAt.Time,
	}

	if s.claims != nil {
		if err := s.claims.Set(ctx, token, verified); err != nil {
			log.Debug().Err(err).Msg("failed to cache session claims")
		}
	}

	return verified, nil
}

// Refresh reissues a session token before its own expiry, preserving the
// device identity so the token still names the same device instance.
func (s *SessionTokenService) Refresh(ctx context.Context, token string) (string, error) {
	claims, err := s.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	return s.mint(claims.UserID, claims.Email, claims.DeviceType, claims.DeviceID, claims.SessionID)
}
