package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
	"github.com/hearthview/auth/mongodb/testutil"
)

func newVaultRepo(t *testing.T) *VaultRepository {
	t.Helper()

	db, cleanup := testutil.SetupTestMongoDB(t, "vault_test")
	t.Cleanup(cleanup)

	repo, err := NewVaultRepository(context.Background(), db)
	require.NoError(t, err)
	return repo
}

func vaultEntry(userID, slot string) *domain.VaultEntry {
	return &domain.VaultEntry{
		UserID:       userID,
		Provider:     "google",
		AccountSlot:  slot,
		Email:        "user@example.com",
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().UTC().Truncate(time.Millisecond).Add(time.Hour),
		Scopes:       []string{"calendar.readonly"},
		ClientKind:   domain.ClientKindWeb,
	}
}

func TestVaultRepositoryUpsert(t *testing.T) {
	repo := newVaultRepo(t)
	ctx := context.Background()

	entry := vaultEntry("user-1", "primary")
	require.NoError(t, repo.Upsert(ctx, entry))

	got, err := repo.Get(ctx, "user-1", "google", "primary")
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "access-token", got.AccessToken)
	assert.Equal(t, domain.ClientKindWeb, got.ClientKind)
	firstID := got.ID

	// Upserting the same key replaces tokens but keeps the identity.
	replacement := vaultEntry("user-1", "primary")
	replacement.AccessToken = "newer-access-token"
	require.NoError(t, repo.Upsert(ctx, replacement))

	got, err = repo.Get(ctx, "user-1", "google", "primary")
	require.NoError(t, err)
	assert.Equal(t, firstID, got.ID)
	assert.Equal(t, "newer-access-token", got.AccessToken)

	entries, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestVaultRepositoryUpdateRequiresExisting(t *testing.T) {
	repo := newVaultRepo(t)
	ctx := context.Background()

	ghost := vaultEntry("user-1", "primary")
	assert.ErrorIs(t, repo.Update(ctx, ghost), serrors.ErrAccountNotFound)

	require.NoError(t, repo.Upsert(ctx, vaultEntry("user-1", "primary")))

	existing, err := repo.Get(ctx, "user-1", "google", "primary")
	require.NoError(t, err)
	existing.AccessToken = "refreshed-access-token"
	require.NoError(t, repo.Update(ctx, existing))

	got, err := repo.Get(ctx, "user-1", "google", "primary")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access-token", got.AccessToken)
}

func TestVaultRepositoryListSortedByProviderAndSlot(t *testing.T) {
	repo := newVaultRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, vaultEntry("user-1", "work")))
	require.NoError(t, repo.Upsert(ctx, vaultEntry("user-1", "primary")))
	require.NoError(t, repo.Upsert(ctx, vaultEntry("user-2", "primary")))

	entries, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "primary", entries[0].AccountSlot)
	assert.Equal(t, "work", entries[1].AccountSlot)
}

func TestVaultRepositoryDelete(t *testing.T) {
	repo := newVaultRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, vaultEntry("user-1", "primary")))
	require.NoError(t, repo.Upsert(ctx, vaultEntry("user-1", "work")))

	require.NoError(t, repo.Delete(ctx, "user-1", "google", "work"))

	_, err := repo.Get(ctx, "user-1", "google", "work")
	assert.ErrorIs(t, err, serrors.ErrAccountNotFound)

	// Deleting again reports the absence.
	assert.ErrorIs(t, repo.Delete(ctx, "user-1", "google", "work"), serrors.ErrAccountNotFound)

	// Sibling slots survive.
	_, err = repo.Get(ctx, "user-1", "google", "primary")
	assert.NoError(t, err)
}
