package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
)

// UserStore keeps internal user records in process.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User // keyed by user id
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*domain.User)}
}

func (s *UserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()

	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, serrors.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			cp := *user
			return &cp, nil
		}
	}
	return nil, serrors.ErrUserNotFound
}

func (s *UserStore) GetByProviderSubject(_ context.Context, provider, subject string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Provider == provider && user.Subject == subject {
			cp := *user
			return &cp, nil
		}
	}
	return nil, serrors.ErrUserNotFound
}

func (s *UserStore) TouchLogin(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return serrors.ErrUserNotFound
	}
	user.LastLoginAt = time.Now().UTC()
	return nil
}
