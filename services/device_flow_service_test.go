package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
	"github.com/hearthview/auth/internal/federation"
	"github.com/hearthview/auth/memory"
)

type flowFixture struct {
	flow     *DeviceFlowService
	vault    *VaultService
	tokens   *SessionTokenService
	provider *fakeProvider
	sessions *memory.DeviceSessionStore
}

func newFlowFixture(t *testing.T, opts DeviceFlowOptions, gateOpts AccessGateOptions) *flowFixture {
	t.Helper()

	sessions := memory.NewDeviceSessionStore()
	t.Cleanup(sessions.Close)

	provider := newFakeProvider("google")
	registry := federation.NewRegistry(provider)

	vault := NewVaultService(memory.NewVaultStore(), registry, DefaultRefreshBuffer)
	tokens := newTokenService(time.Hour, nil)
	users := NewUserService(memory.NewUserStore())
	gate := NewAccessGate(gateOpts)

	return &flowFixture{
		flow:     NewDeviceFlowService(sessions, users, vault, tokens, gate, registry, opts),
		vault:    vault,
		tokens:   tokens,
		provider: provider,
		sessions: sessions,
	}
}

func (f *flowFixture) authorize(ctx context.Context, userCode string) (*AuthorizeResult, error) {
	return f.flow.AuthorizeSession(ctx, userCode, "google", "assertion", "phone", ProviderCredentials{
		AccessToken:  "provider-access",
		RefreshToken: "provider-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		ClientKind:   domain.ClientKindWeb,
	})
}

func TestDeviceFlowCreateSession(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{
		VerificationURL: "https://hearthview.app/link",
		SessionTTL:      10 * time.Minute,
		PollInterval:    5 * time.Second,
	}, AccessGateOptions{})

	result, err := fx.flow.CreateSession(context.Background(), "tv")
	require.NoError(t, err)

	assert.Len(t, result.DeviceCode, 64)
	assert.Len(t, result.UserCode, 9)
	assert.Equal(t, "https://hearthview.app/link?code="+result.UserCode, result.VerificationURL)
	assert.Equal(t, 600, result.ExpiresIn)
	assert.Equal(t, 5, result.Interval)
}

func TestDeviceFlowHappyPath(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{}, AccessGateOptions{})
	ctx := context.Background()

	created, err := fx.flow.CreateSession(ctx, "tv")
	require.NoError(t, err)

	// Pending until someone authorizes.
	poll, err := fx.flow.PollStatus(ctx, created.DeviceCode)
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusAuthorizationPending, poll.Status)
	assert.Empty(t, poll.SessionToken)

	authorized, err := fx.authorize(ctx, created.UserCode)
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusAuthorized, authorized.Status)
	assert.NotEmpty(t, authorized.SessionToken)
	assert.Equal(t, "user@example.com", authorized.UserEmail)

	// First poll after authorization redeems the code.
	poll, err = fx.flow.PollStatus(ctx, created.DeviceCode)
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusAuthorized, poll.Status)
	assert.NotEmpty(t, poll.SessionToken)
	assert.Equal(t, authorized.UserID, poll.UserID)

	// Both devices hold valid but distinct session tokens.
	assert.NotEqual(t, authorized.SessionToken, poll.SessionToken)
	tvClaims, err := fx.tokens.Verify(ctx, poll.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "tv", tvClaims.DeviceType)
	phoneClaims, err := fx.tokens.Verify(ctx, authorized.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "phone", phoneClaims.DeviceType)

	// The provider tokens landed in the vault under the default slot.
	accounts, err := fx.vault.ListAccounts(ctx, poll.UserID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "google", accounts[0].Provider)
	assert.Equal(t, "primary", accounts[0].AccountSlot)
}

func TestDeviceFlowTokenDeliveredExactlyOnce(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{}, AccessGateOptions{})
	ctx := context.Background()

	created, err := fx.flow.CreateSession(ctx, "tv")
	require.NoError(t, err)
	_, err = fx.authorize(ctx, created.UserCode)
	require.NoError(t, err)

	poll, err := fx.flow.PollStatus(ctx, created.DeviceCode)
	require.NoError(t, err)
	require.Equal(t, serrors.StatusAuthorized, poll.Status)

	// The code is spent; replaying it yields nothing.
	replay, err := fx.flow.PollStatus(ctx, created.DeviceCode)
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusInvalidCode, replay.Status)
	assert.Empty(t, replay.SessionToken)
}

func TestDeviceFlowConcurrentPollsSingleWinner(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{}, AccessGateOptions{})
	ctx := context.Background()

	created, err := fx.flow.CreateSession(ctx, "tv")
	require.NoError(t, err)
	_, err = fx.authorize(ctx, created.UserCode)
	require.NoError(t, err)

	const pollers = 16
	results := make([]*PollResult, pollers)
	errs := make([]error, pollers)

	var wg sync.WaitGroup
	wg.Add(pollers)
	for i := 0; i < pollers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fx.flow.PollStatus(ctx, created.DeviceCode)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, result := range results {
		require.NoError(t, errs[i])
		if result.Status == serrors.StatusAuthorized {
			winners++
			assert.NotEmpty(t, result.SessionToken)
		} else {
			assert.Equal(t, serrors.StatusInvalidCode, result.Status)
		}
	}
	assert.Equal(t, 1, winners, "exactly one poller may redeem the code")
}

func TestDeviceFlowConcurrentAuthorizeSingleWinner(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{}, AccessGateOptions{})
	ctx := context.Background()

	created, err := fx.flow.CreateSession(ctx, "tv")
	require.NoError(t, err)

	const authorizers = 8
	results := make([]*AuthorizeResult, authorizers)
	errs := make([]error, authorizers)

	var wg sync.WaitGroup
	wg.Add(authorizers)
	for i := 0; i < authorizers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fx.authorize(ctx, created.UserCode)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, result := range results {
		require.NoError(t, errs[i])
		switch result.Status {
		case serrors.StatusAuthorized:
			winners++
		case serrors.StatusCodeAlreadyUsed:
		default:
			t.Fatalf("unexpected authorize status %q", result.Status)
		}
	}
	assert.Equal(t, 1, winners, "exactly one authorizer may win")
}

func TestDeviceFlowAuthorizeRetryIsIdempotent(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{}, AccessGateOptions{})
	ctx := context.Background()

	created, err := fx.flow.CreateSession(ctx, "tv")
	require.NoError(t, err)

	first, err := fx.authorize(ctx, created.UserCode)
	require.NoError(t, err)
	require.Equal(t, serrors.StatusAuthorized, first.Status)

	retry, err := fx.authorize(ctx, created.UserCode)
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusCodeAlreadyUsed, retry.Status)
	assert.Empty(t, retry.SessionToken)

	// The retry cannot have disturbed the pending redemption.
	poll, err := fx.flow.PollStatus(ctx, created.DeviceCode)
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusAuthorized, poll.Status)
}

func TestDeviceFlowExpiredSessionReportsExpiredToken(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{SessionTTL: -time.Minute}, AccessGateOptions{})
	ctx := context.Background()

	created, err := fx.flow.CreateSession(ctx, "tv")
	require.NoError(t, err)

	// Authorizing an expired code fails closed.
	result, err := fx.authorize(ctx, created.UserCode)
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusExpiredCode, result.Status)

	// A late poll still learns the session expired rather than seeing an
	// unknown code. The expired record is dropped along the way, so further
	// polls see invalid_code.
	poll, err := fx.flow.PollStatus(ctx, created.DeviceCode)
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusExpiredToken, poll.Status)

	poll, err = fx.flow.PollStatus(ctx, created.DeviceCode)
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusInvalidCode, poll.Status)
}

func TestDeviceFlowUnknownCodes(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{}, AccessGateOptions{})
	ctx := context.Background()

	poll, err := fx.flow.PollStatus(ctx, "no-such-device-code")
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusInvalidCode, poll.Status)

	result, err := fx.authorize(ctx, "XXXX-XXXX")
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusInvalidCode, result.Status)
}

func TestDeviceFlowAuthorizeNormalizesUserCode(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{}, AccessGateOptions{})
	ctx := context.Background()

	created, err := fx.flow.CreateSession(ctx, "tv")
	require.NoError(t, err)

	sloppy := " " + created.UserCode[:4] + " " + created.UserCode[5:] + " "
	result, err := fx.authorize(ctx, sloppy)
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusAuthorized, result.Status)
}

func TestDeviceFlowAuthorizeUnknownProvider(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{}, AccessGateOptions{})
	ctx := context.Background()

	created, err := fx.flow.CreateSession(ctx, "tv")
	require.NoError(t, err)

	_, err = fx.flow.AuthorizeSession(ctx, created.UserCode, "myspace", "assertion", "phone", ProviderCredentials{})
	assert.ErrorIs(t, err, serrors.ErrInvalidAssertion)
}

func TestDeviceFlowAuthorizeRejectedAssertion(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{}, AccessGateOptions{})
	ctx := context.Background()

	fx.provider.verifyErr = fmt.Errorf("%w: token rejected", serrors.ErrInvalidAssertion)

	created, err := fx.flow.CreateSession(ctx, "tv")
	require.NoError(t, err)

	_, err = fx.authorize(ctx, created.UserCode)
	assert.ErrorIs(t, err, serrors.ErrInvalidAssertion)

	// The session must still be pending; a failed assertion has no effects.
	poll, err := fx.flow.PollStatus(ctx, created.DeviceCode)
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusAuthorizationPending, poll.Status)
}

func TestDeviceFlowAuthorizeAccessDenied(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{}, AccessGateOptions{
		AllowlistEnabled: true,
		Allowlist:        []string{"someone-else@example.com"},
	})
	ctx := context.Background()

	created, err := fx.flow.CreateSession(ctx, "tv")
	require.NoError(t, err)

	_, err = fx.authorize(ctx, created.UserCode)
	var denied *serrors.AccessDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, serrors.ReasonNotWhitelisted, denied.Reason)

	// Denied identities leave no trace: session untouched, vault empty.
	poll, err := fx.flow.PollStatus(ctx, created.DeviceCode)
	require.NoError(t, err)
	assert.Equal(t, serrors.StatusAuthorizationPending, poll.Status)
}

func TestDeviceFlowRepeatLoginReusesUser(t *testing.T) {
	fx := newFlowFixture(t, DeviceFlowOptions{}, AccessGateOptions{})
	ctx := context.Background()

	first, err := fx.flow.CreateSession(ctx, "tv")
	require.NoError(t, err)
	a, err := fx.authorize(ctx, first.UserCode)
	require.NoError(t, err)

	second, err := fx.flow.CreateSession(ctx, "tv")
	require.NoError(t, err)
	b, err := fx.authorize(ctx, second.UserCode)
	require.NoError(t, err)

	assert.Equal(t, a.UserID, b.UserID, "same identity maps to the same user record")
}
