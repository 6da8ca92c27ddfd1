package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hearthview/auth/domain"
	"github.com/hearthview/auth/internal/federation"
)

// fakeProvider is a scriptable federation.Provider for service tests.
type fakeProvider struct {
	name string

	identity  *federation.Identity
	verifyErr error

	refreshFn    func(ctx context.Context, refreshToken string, kind domain.ClientKind) (*federation.RefreshedToken, error)
	refreshCalls atomic.Int64
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{
		name: name,
		identity: &federation.Identity{
			Subject:       "subject-1",
			Email:         "user@example.com",
			EmailVerified: true,
			Name:          "Test User",
		},
	}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) VerifyAssertion(context.Context, string) (*federation.Identity, error) {
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	cp := *p.identity
	return &cp, nil
}

func (p *fakeProvider) Refresh(ctx context.Context, refreshToken string, kind domain.ClientKind) (*federation.RefreshedToken, error) {
	p.refreshCalls.Add(1)
	if p.refreshFn != nil {
		return p.refreshFn(ctx, refreshToken, kind)
	}
	return &federation.RefreshedToken{
		AccessToken: "refreshed-access-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}
