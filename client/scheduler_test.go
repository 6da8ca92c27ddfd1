package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthview/auth/api"
	serrors "github.com/hearthview/auth/errors"
)

// tokenBackend fakes the /v1/accounts/token/valid endpoint.
type tokenBackend struct {
	calls atomic.Int64

	mu        sync.Mutex
	delay     time.Duration
	respond   func(w http.ResponseWriter)
	expiresIn time.Duration
}

func newTokenBackend() *tokenBackend {
	return &tokenBackend{expiresIn: time.Hour}
}

func (b *tokenBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/accounts/token/valid" {
			http.NotFound(w, r)
			return
		}
		b.calls.Add(1)

		b.mu.Lock()
		delay, respond, expiresIn := b.delay, b.respond, b.expiresIn
		b.mu.Unlock()

		time.Sleep(delay)

		if respond != nil {
			respond(w)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.ValidTokenResponse{
			AccessToken: "valid-access-token",
			ExpiresAt:   time.Now().Add(expiresIn),
			Refreshed:   false,
		})
	})
}

func (b *tokenBackend) set(fn func(*tokenBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func newTestScheduler(t *testing.T, backend *tokenBackend, opts ...SchedulerOption) *RefreshScheduler {
	t.Helper()

	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	c := New(srv.URL, WithSessionToken("session-token"))
	s := NewRefreshScheduler(c, "google", "primary", opts...)
	t.Cleanup(s.Close)

	return s
}

func TestSchedulerTokenCachedUntilBuffer(t *testing.T) {
	backend := newTokenBackend()
	s := newTestScheduler(t, backend)
	ctx := context.Background()

	token, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "valid-access-token", token)
	assert.EqualValues(t, 1, backend.calls.Load())

	// Comfortably outside the buffer: served from cache.
	for i := 0; i < 5; i++ {
		token, err = s.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "valid-access-token", token)
	}
	assert.EqualValues(t, 1, backend.calls.Load())
}

func TestSchedulerCoalescesConcurrentCallers(t *testing.T) {
	backend := newTokenBackend()
	backend.set(func(b *tokenBackend) { b.delay = 100 * time.Millisecond })
	s := newTestScheduler(t, backend)

	const callers = 10
	tokens := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = s.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i := range tokens {
		require.NoError(t, errs[i])
		assert.Equal(t, "valid-access-token", tokens[i])
	}
	assert.EqualValues(t, 1, backend.calls.Load(),
		"concurrent callers must share one request")
}

func TestSchedulerStaleTokenRefetched(t *testing.T) {
	backend := newTokenBackend()
	// Expiry inside the buffer: every Token call goes to the backend.
	backend.set(func(b *tokenBackend) { b.expiresIn = time.Minute })
	s := newTestScheduler(t, backend, WithRefreshBuffer(5*time.Minute))
	ctx := context.Background()

	_, err := s.Token(ctx)
	require.NoError(t, err)
	_, err = s.Token(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 2, backend.calls.Load())
}

func TestSchedulerRetriesTransientFailureOnce(t *testing.T) {
	backend := newTokenBackend()

	var failures atomic.Int64
	backend.set(func(b *tokenBackend) {
		b.respond = func(w http.ResponseWriter) {
			if failures.Add(1) == 1 {
				terminal := false
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadGateway)
				json.NewEncoder(w).Encode(api.ErrorResponse{
					Error:    "refresh_failed",
					Terminal: &terminal,
				})
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(api.ValidTokenResponse{
				AccessToken: "valid-access-token",
				ExpiresAt:   time.Now().Add(time.Hour),
			})
		}
	})

	s := newTestScheduler(t, backend, WithRetryBackoff(10*time.Millisecond))

	token, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "valid-access-token", token)
	assert.EqualValues(t, 2, backend.calls.Load())
}

func TestSchedulerTerminalFailureSignalsReauth(t *testing.T) {
	backend := newTokenBackend()
	backend.set(func(b *tokenBackend) {
		b.respond = func(w http.ResponseWriter) {
			terminal := true
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(api.ErrorResponse{
				Error:       "refresh_failed",
				Description: "grant revoked",
				Terminal:    &terminal,
			})
		}
	})

	reauth := make(chan error, 1)
	s := newTestScheduler(t, backend, WithReauthHandler(func(err error) { reauth <- err }))

	_, err := s.Token(context.Background())
	require.Error(t, err)
	assert.True(t, serrors.IsTerminalRefresh(err))
	assert.EqualValues(t, 1, backend.calls.Load(), "terminal failures are not retried")

	select {
	case err := <-reauth:
		assert.True(t, serrors.IsTerminalRefresh(err))
	case <-time.After(time.Second):
		t.Fatal("re-auth handler was not invoked")
	}

	// The cached state is gone and the scheduler is stopped.
	assert.True(t, s.ExpiresAt().IsZero())
}

func TestSchedulerProactiveRefreshFiresBeforeExpiry(t *testing.T) {
	backend := newTokenBackend()
	// Buffer sized so expiry-minus-buffer lands ~1.5s out, just past the
	// timer's 1s floor.
	backend.set(func(b *tokenBackend) { b.expiresIn = 90 * time.Minute })
	s := newTestScheduler(t, backend, WithRefreshBuffer(90*time.Minute-1500*time.Millisecond))

	_, err := s.Token(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, backend.calls.Load())

	// expiry-buffer is 1.5s away; the timer should fire on its own.
	assert.Eventually(t, func() bool {
		return backend.calls.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond, "proactive refresh did not fire")
}
