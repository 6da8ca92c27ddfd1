package federation

import (
	"context"
	"time"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
)

// Identity is the verified result of checking an identity assertion with the
// issuing provider.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// RefreshedToken is the result of a refresh-token exchange.
type RefreshedToken struct {
	AccessToken string
	// RefreshToken is empty when the provider did not rotate the grant.
	RefreshToken string
	ExpiresAt    time.Time
}

// Provider is an external identity provider that can verify identity
// assertions and refresh stored grants. The ClientKind selects which OAuth
// client pair performs the refresh exchange; grants are bound to the client
// that issued them.
type Provider interface {
	Name() string

	// VerifyAssertion validates an externally supplied access token against
	// the provider and returns the verified identity. Unverified emails are
	// rejected with ErrInvalidAssertion.
	VerifyAssertion(ctx context.Context, accessToken string) (*Identity, error)

	// Refresh exchanges a refresh token for a fresh access token. Failures
	// are returned as *errors.RefreshError with Terminal set when the grant
	// itself is invalid or revoked.
	Refresh(ctx context.Context, refreshToken string, kind domain.ClientKind) (*RefreshedToken, error)
}

// Registry resolves providers by name.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, serrors.ErrProviderNotFound
	}
	return p, nil
}
