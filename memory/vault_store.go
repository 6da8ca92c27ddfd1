package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
)

// VaultStore keeps provider credentials in process.
type VaultStore struct {
	mu      sync.RWMutex
	entries map[string]*domain.VaultEntry
}

func NewVaultStore() *VaultStore {
	return &VaultStore{entries: make(map[string]*domain.VaultEntry)}
}

func vaultKey(userID, provider, accountSlot string) string {
	return fmt.Sprintf("%s|%s|%s", userID, provider, accountSlot)
}

func (s *VaultStore) Upsert(_ context.Context, entry *domain.VaultEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vaultKey(entry.UserID, entry.Provider, entry.AccountSlot)
	now := time.Now().UTC()

	if existing, ok := s.entries[key]; ok {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	} else {
		entry.ID = uuid.NewString()
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	cp := *entry
	s.entries[key] = &cp
	return nil
}

func (s *VaultStore) Update(_ context.Context, entry *domain.VaultEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vaultKey(entry.UserID, entry.Provider, entry.AccountSlot)
	if _, ok := s.entries[key]; !ok {
		return serrors.ErrAccountNotFound
	}

	entry.UpdatedAt = time.Now().UTC()
	cp := *entry
	s.entries[key] = &cp
	return nil
}

func (s *VaultStore) Get(_ context.Context, userID, provider, accountSlot string) (*domain.VaultEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[vaultKey(userID, provider, accountSlot)]
	if !ok {
		return nil, serrors.ErrAccountNotFound
	}
	cp := *entry
	return &cp, nil
}

func (s *VaultStore) ListByUser(_ context.Context, userID string) ([]*domain.VaultEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.VaultEntry
	for _, entry := range s.entries {
		if entry.UserID == userID {
			cp := *entry
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].AccountSlot < out[j].AccountSlot
	})
	return out, nil
}

func (s *VaultStore) Delete(_ context.Context, userID, provider, accountSlot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vaultKey(userID, provider, accountSlot)
	if _, ok := s.entries[key]; !ok {
		return serrors.ErrAccountNotFound
	}
	delete(s.entries, key)
	return nil
}
