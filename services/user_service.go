package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
	"github.com/hearthview/auth/internal/federation"
)

// UserService is the account registry: it maps verified provider identities
// to internal user records, creating one on first sight.
type UserService struct {
	repo domain.UserRepository
}

func NewUserService(repo domain.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// GetOrCreate resolves the internal user for a verified identity. Lookup is
// by (provider, subject) first; an email match attaches the login to an
// existing user rather than splitting it into a duplicate record.
func (s *UserService) GetOrCreate(ctx context.Context, provider string, identity *federation.Identity) (*domain.User, error) {
	user, err := s.repo.GetByProviderSubject(ctx, provider, identity.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, serrors.ErrUserNotFound) {
		return nil, err
	}

	user, err = s.repo.GetByEmail(ctx, identity.Email)
	if err == nil {
		log.Info().
			Str("user_id", user.ID).
			Str("provider", provider).
			Msg("matched existing user by email")
		return user, nil
	}
	if !errors.Is(err, serrors.ErrUserNotFound) {
		return nil, err
	}

	user = &domain.User{
		Email:       identity.Email,
		Provider:    provider,
		Subject:     identity.Subject,
		DisplayName: identity.Name,
		Picture:     identity.Picture,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().
		Str("user_id", user.ID).
		Str("provider", provider).
		Msg("user created on first sight")

	return user, nil
}

// GetByID looks up a user record.
func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetByID(ctx, id)
}

// TouchLogin stamps the user's last login time.
func (s *UserService) TouchLogin(ctx context.Context, id string) error {
	return s.repo.TouchLogin(ctx, id)
}
