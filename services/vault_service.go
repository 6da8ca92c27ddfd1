package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
	"github.com/hearthview/auth/internal/federation"
)

// DefaultRefreshBuffer is the lead time before expiry at which a stored token
// is considered stale.
const DefaultRefreshBuffer = 5 * time.Minute

// VaultService owns the durable store of provider credentials and the
// refresh-with-buffer logic. Refreshes for the same (user, provider, slot)
// are coalesced: at most one exchange reaches the provider at a time and all
// concurrent callers share its result.
type VaultService struct {
	repo      domain.VaultRepository
	providers *federation.Registry
	buffer    time.Duration
	group     singleflight.Group
}

func NewVaultService(repo domain.VaultRepository, providers *federation.Registry, refreshBuffer time.Duration) *VaultService {
	if refreshBuffer <= 0 {
		refreshBuffer = DefaultRefreshBuffer
	}
	return &VaultService{
		repo:      repo,
		providers: providers,
		buffer:    refreshBuffer,
	}
}

// Store upserts one provider credential. Other slots of the same user are
// untouched.
func (s *VaultService) Store(
	ctx context.Context,
	userID, provider, accountSlot string,
	creds ProviderCredentials,
	identity *federation.Identity,
) (*domain.Account, error) {
	entry := &domain.VaultEntry{
		UserID:       userID,
		Provider:     provider,
		AccountSlot:  accountSlot,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
		Scopes:       creds.Scopes,
		ClientKind:   creds.ClientKind,
	}
	if identity != nil {
		entry.Email = identity.Email
		entry.DisplayName = identity.Name
	}
	if entry.ClientKind == "" {
		entry.ClientKind = domain.ClientKindWeb
	}

	if err := s.repo.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to store vault entry: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("provider", provider).
		Str("slot", accountSlot).
		Msg("provider credentials stored")

	account := entry.Account()
	return &account, nil
}

// ValidToken is the result of GetValidToken.
type ValidToken struct {
	AccessToken string
	ExpiresAt   time.Time
	Refreshed   bool
}

// GetValidToken returns the stored access token if it is still comfortably
// inside its validity window, refreshing it through the provider otherwise.
// A provider rejection of the grant surfaces as a terminal RefreshError; the
// caller must treat that as re-authentication required, never as transient.
func (s *VaultService) GetValidToken(ctx context.Context, userID, provider, accountSlot string) (*ValidToken, error) {
	entry, err := s.repo.Get(ctx, userID, provider, accountSlot)
	if err != nil {
		return nil, err
	}

	if time.Now().Before(entry.ExpiresAt.Add(-s.buffer)) {
		return &ValidToken{AccessToken: entry.AccessToken, ExpiresAt: entry.ExpiresAt}, nil
	}

	// Coalesce concurrent refreshes per slot. The winning call's context
	// drives the provider exchange; waiters just share its result.
	key := userID + "|" + provider + "|" + accountSlot
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.refresh(ctx, userID, provider, accountSlot)
	})
	if err != nil {
		return nil, err
	}

	return v.(*ValidToken), nil
}

func (s *VaultService) refresh(ctx context.Context, userID, provider, accountSlot string) (*ValidToken, error) {
	// Re-read inside the flight: a previous flight may have refreshed the
	// entry between our staleness check and now.
	entry, err := s.repo.Get(ctx, userID, provider, accountSlot)
	if err != nil {
		return nil, err
	}
	if time.Now().Before(entry.ExpiresAt.Add(-s.buffer)) {
		return &ValidToken{AccessToken: entry.AccessToken, ExpiresAt: entry.ExpiresAt}, nil
	}

	prov, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}

	refreshed, err := prov.Refresh(ctx, entry.RefreshToken, entry.ClientKind)
	if err != nil {
		if serrors.IsTerminalRefresh(err) {
			log.Warn().
				Str("user_id", userID).
				Str("provider", provider).
				Str("slot", accountSlot).
				Err(err).
				Msg("provider refused refresh grant, re-authentication required")
		} else {
			log.Warn().
				Str("user_id", userID).
				Str("provider", provider).
				Str("slot", accountSlot).
				Err(err).
				Msg("transient provider refresh failure")
		}
		return nil, err
	}

	entry.AccessToken = refreshed.AccessToken
	entry.ExpiresAt = refreshed.ExpiresAt
	if refreshed.RefreshToken != "" {
		entry.RefreshToken = refreshed.RefreshToken
	}

	// Update, not Upsert: if the account was removed while the exchange was
	// in flight, it stays removed.
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("provider", provider).
		Str("slot", accountSlot).
		Time("expires_at", entry.ExpiresAt).
		Msg("provider token refreshed")

	return &ValidToken{
		AccessToken: entry.AccessToken,
		ExpiresAt:   entry.ExpiresAt,
		Refreshed:   true,
	}, nil
}

// ListAccounts enumerates a user's connected accounts with secrets stripped.
func (s *VaultService) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	entries, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(entries))
	for _, entry := range entries {
		accounts = append(accounts, entry.Account())
	}
	return accounts, nil
}

// RemoveAccount deletes one slot. The cutover is hard: the entry is gone
// immediately and any in-flight refresh for it fails rather than recreating
// it.
func (s *VaultService) RemoveAccount(ctx context.Context, userID, provider, accountSlot string) error {
	if err := s.repo.Delete(ctx, userID, provider, accountSlot); err != nil {
		return err
	}
	s.group.Forget(userID + "|" + provider + "|" + accountSlot)

	log.Info().
		Str("user_id", userID).
		Str("provider", provider).
		Str("slot", accountSlot).
		Msg("account removed")
	return nil
}
