package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	serrors "github.com/hearthview/auth/errors"
)

const (
	defaultRefreshBuffer = 5 * time.Minute
	retryBackoff         = 10 * time.Second
)

// RefreshScheduler keeps one provider access token fresh on the client side.
// It refreshes proactively shortly before expiry, coalesces concurrent
// Token callers onto a single request, and signals the caller when the
// server reports a terminal refresh failure so re-authentication can start.
type RefreshScheduler struct {
	client      *Client
	provider    string
	accountSlot string
	buffer      time.Duration
	backoff     time.Duration
	onReauth    func(error)

	group singleflight.Group

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
	timer       *time.Timer
	closed      bool
}

// SchedulerOption configures a RefreshScheduler.
type SchedulerOption func(*RefreshScheduler)

// WithRefreshBuffer overrides how long before expiry the proactive refresh
// fires.
func WithRefreshBuffer(d time.Duration) SchedulerOption {
	return func(s *RefreshScheduler) { s.buffer = d }
}

// WithReauthHandler installs a callback invoked once when a refresh fails
// terminally. The scheduler stops after calling it.
func WithReauthHandler(fn func(error)) SchedulerOption {
	return func(s *RefreshScheduler) { s.onReauth = fn }
}

// WithRetryBackoff overrides the wait before the single transient-failure
// retry.
func WithRetryBackoff(d time.Duration) SchedulerOption {
	return func(s *RefreshScheduler) { s.backoff = d }
}

// NewRefreshScheduler creates a scheduler for one provider account slot.
func NewRefreshScheduler(c *Client, provider, accountSlot string, opts ...SchedulerOption) *RefreshScheduler {
	s := &RefreshScheduler{
		client:      c,
		provider:    provider,
		accountSlot: accountSlot,
		buffer:      defaultRefreshBuffer,
		backoff:     retryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Token returns an access token valid right now, fetching or refreshing
// through the service when the cached one is inside the buffer window.
// Concurrent callers share a single in-flight request.
func (s *RefreshScheduler) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.accessToken != "" && time.Until(s.expiresAt) > s.buffer {
		token := s.accessToken
		s.mu.Unlock()

		return token, nil
	}
	s.mu.Unlock()

	token, err, _ := s.group.Do("token", func() (any, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return "", err
	}

	return token.(string), nil
}

// Close stops the proactive refresh timer. It does not invalidate the cached
// token.
func (s *RefreshScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *RefreshScheduler) fetch(ctx context.Context) (string, error) {
	resp, err := s.client.GetValidAccessToken(ctx, s.provider, s.accountSlot)
	if err != nil {
		if serrors.IsTerminalRefresh(err) {
			s.terminalFailure(err)

			return "", err
		}

		// One retry after a fixed backoff covers brief provider or network
		// hiccups without turning the scheduler into a retry loop.
		log.Warn().Err(err).
			Str("provider", s.provider).
			Str("account_slot", s.accountSlot).
			Msg("Token fetch failed, retrying once")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.backoff):
		}

		resp, err = s.client.GetValidAccessToken(ctx, s.provider, s.accountSlot)
		if err != nil {
			if serrors.IsTerminalRefresh(err) {
				s.terminalFailure(err)
			}

			return "", err
		}
	}

	s.mu.Lock()
	s.accessToken = resp.AccessToken
	s.expiresAt = resp.ExpiresAt
	s.rescheduleLocked()
	s.mu.Unlock()

	return resp.AccessToken, nil
}

// rescheduleLocked arms the proactive refresh timer at expiresAt-buffer.
// Caller holds mu.
func (s *RefreshScheduler) rescheduleLocked() {
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	wait := time.Until(s.expiresAt) - s.buffer
	if wait < time.Second {
		wait = time.Second
	}

	s.timer = time.AfterFunc(wait, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := s.Token(ctx); err != nil {
			log.Warn().Err(err).
				Str("provider", s.provider).
				Str("account_slot", s.accountSlot).
				Msg("Proactive token refresh failed")
		}
	})
}

// terminalFailure clears cached state, stops the timer, and notifies the
// re-auth handler once.
func (s *RefreshScheduler) terminalFailure(err error) {
	s.mu.Lock()
	s.accessToken = ""
	s.expiresAt = time.Time{}
	alreadyClosed := s.closed
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if alreadyClosed || s.onReauth == nil {
		return
	}

	log.Warn().Err(err).
		Str("provider", s.provider).
		Str("account_slot", s.accountSlot).
		Msg("Refresh failed terminally, re-authentication required")

	s.onReauth(err)
}

// ExpiresAt reports when the cached token expires, zero when none is held.
func (s *RefreshScheduler) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.expiresAt
}
