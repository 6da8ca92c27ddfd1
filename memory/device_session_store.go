package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
)

// sessionRetention keeps a session around past its logical expiry so a late
// poll still reports expired_token instead of invalid_code. Eviction after
// the grace window is storage hygiene, not correctness.
const sessionRetention = time.Hour

// DeviceSessionStore keeps device sessions in process. One mutex guards both
// indexes, which makes the conditional transitions (pending -> authorized,
// authorized -> consumed) linearizable.
type DeviceSessionStore struct {
	mu        sync.Mutex
	sessions  *ttlcache.Cache[string, *domain.DeviceSession] // keyed by device code
	userCodes map[string]string                              // user code -> device code
}

func NewDeviceSessionStore() *DeviceSessionStore {
	c := ttlcache.New[string, *domain.DeviceSession](
		ttlcache.WithDisableTouchOnHit[string, *domain.DeviceSession](),
	)
	go c.Start()

	return &DeviceSessionStore{
		sessions:  c,
		userCodes: make(map[string]string),
	}
}

func (s *DeviceSessionStore) Create(_ context.Context, session *domain.DeviceSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.ID = uuid.NewString()
	session.CreatedAt = time.Now().UTC()

	cp := *session
	s.sessions.Set(session.DeviceCode, &cp, time.Until(session.ExpiresAt)+sessionRetention)
	s.userCodes[session.UserCode] = session.DeviceCode

	return nil
}

func (s *DeviceSessionStore) GetByDeviceCode(_ context.Context, deviceCode string) (*domain.DeviceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(deviceCode)
	if sess == nil {
		return nil, serrors.ErrDeviceCodeNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *DeviceSessionStore) GetByUserCode(_ context.Context, userCode string) (*domain.DeviceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deviceCode, ok := s.userCodes[userCode]
	if !ok {
		return nil, serrors.ErrUserCodeNotFound
	}
	sess := s.lookup(deviceCode)
	if sess == nil {
		delete(s.userCodes, userCode)
		return nil, serrors.ErrUserCodeNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *DeviceSessionStore) Authorize(_ context.Context, userCode, userID, userEmail string) (*domain.DeviceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deviceCode, ok := s.userCodes[userCode]
	if !ok {
		return nil, serrors.ErrCannotAuthorizeSession
	}
	sess := s.lookup(deviceCode)
	if sess == nil || sess.IsExpired(time.Now()) || sess.Status != domain.DeviceSessionStatusPending {
		return nil, serrors.ErrCannotAuthorizeSession
	}

	sess.Status = domain.DeviceSessionStatusAuthorized
	sess.UserID = userID
	sess.UserEmail = userEmail

	cp := *sess
	return &cp, nil
}

func (s *DeviceSessionStore) Consume(_ context.Context, deviceCode string) (*domain.DeviceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(deviceCode)
	if sess == nil || sess.Status != domain.DeviceSessionStatusAuthorized {
		return nil, serrors.ErrDeviceCodeNotFound
	}

	s.sessions.Delete(deviceCode)
	delete(s.userCodes, sess.UserCode)

	cp := *sess
	return &cp, nil
}

func (s *DeviceSessionStore) Delete(_ context.Context, deviceCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess := s.lookup(deviceCode); sess != nil {
		delete(s.userCodes, sess.UserCode)
	}
	s.sessions.Delete(deviceCode)
	return nil
}

func (s *DeviceSessionStore) TouchPolled(_ context.Context, deviceCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(deviceCode)
	if sess == nil {
		return serrors.ErrDeviceCodeNotFound
	}
	sess.LastPolledAt = time.Now().UTC()
	return nil
}

func (s *DeviceSessionStore) DeleteExpired(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for userCode, deviceCode := range s.userCodes {
		sess := s.lookup(deviceCode)
		if sess == nil {
			delete(s.userCodes, userCode)
			continue
		}
		if sess.IsExpired(now.Add(-sessionRetention)) {
			s.sessions.Delete(deviceCode)
			delete(s.userCodes, userCode)
		}
	}
	return nil
}

// Close stops the background eviction loop.
func (s *DeviceSessionStore) Close() {
	s.sessions.Stop()
}

// lookup returns the live session pointer. Callers hold s.mu and must copy
// before returning the value outside the store.
func (s *DeviceSessionStore) lookup(deviceCode string) *domain.DeviceSession {
	item := s.sessions.Get(deviceCode)
	if item == nil {
		return nil
	}
	return item.Value()
}
