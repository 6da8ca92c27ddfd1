package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
	"github.com/hearthview/auth/internal/federation"
)

// DeviceFlowOptions tune the device authorization flow.
type DeviceFlowOptions struct {
	// VerificationURL is the page the user opens on the companion device; the
	// user code is appended as a query parameter so it can be QR-encoded.
	VerificationURL string
	SessionTTL      time.Duration
	PollInterval    time.Duration
}

func (o *DeviceFlowOptions) withDefaults() {
	if o.VerificationURL == "" {
		o.VerificationURL = "https://hearthview.app/link"
	}
	if o.SessionTTL == 0 {
		o.SessionTTL = 10 * time.Minute
	}
	if o.PollInterval == 0 {
		o.PollInterval = 5 * time.Second
	}
}

// DeviceFlowService is the device-flow state machine: it creates device/user
// code pairs, authorizes them from a companion device, and hands the polling
// device its session token exactly once.
type DeviceFlowService struct {
	sessions  domain.DeviceSessionRepository
	users     *UserService
	vault     *VaultService
	tokens    *SessionTokenService
	gate      *AccessGate
	providers *federation.Registry
	opts      DeviceFlowOptions
}

func NewDeviceFlowService(
	sessions domain.DeviceSessionRepository,
	users *UserService,
	vault *VaultService,
	tokens *SessionTokenService,
	gate *AccessGate,
	providers *federation.Registry,
	opts DeviceFlowOptions,
) *DeviceFlowService {
	opts.withDefaults()
	return &DeviceFlowService{
		sessions:  sessions,
		users:     users,
		vault:     vault,
		tokens:    tokens,
		gate:      gate,
		providers: providers,
		opts:      opts,
	}
}

// CreateSessionResult is returned to the polling device.
type CreateSessionResult struct {
	DeviceCode      string
	UserCode        string
	VerificationURL string
	ExpiresIn       int
	Interval        int
}

// CreateSession starts a new device authorization attempt.
func (s *DeviceFlowService) CreateSession(ctx context.Context, deviceType string) (*CreateSessionResult, error) {
	if deviceType == "" {
		deviceType = "device"
	}

	deviceCode, err := newDeviceCode()
	if err != nil {
		return nil, err
	}
	userCode, err := newUserCode()
	if err != nil {
		return nil, err
	}

	session := &domain.DeviceSession{
		DeviceCode: deviceCode,
		UserCode:   userCode,
		DeviceType: deviceType,
		Status:     domain.DeviceSessionStatusPending,
		Interval:   int(s.opts.PollInterval.Seconds()),
		ExpiresAt:  time.Now().UTC().Add(s.opts.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create device session: %w", err)
	}

	log.Info().
		Str("user_code", userCode).
		Str("device_type", deviceType).
		Time("expires_at", session.ExpiresAt).
		Msg("device session created")

	return &CreateSessionResult{
		DeviceCode:      deviceCode,
		UserCode:        userCode,
		VerificationURL: fmt.Sprintf("%s?code=%s", s.opts.VerificationURL, userCode),
		ExpiresIn:       int(s.opts.SessionTTL.Seconds()),
		Interval:        session.Interval,
	}, nil
}

// PollResult is returned to the polling device. Status is always set; the
// token and identity are present only on the single consuming poll.
type PollResult struct {
	Status       string
	SessionToken string
	UserID       string
	UserEmail    string
}

// PollStatus reports the state of a device session. The first poll after
// authorization consumes the session: the record is deleted in the same
// conditional operation that reads it, so a second poller or a replayed
// device code sees invalid_code.
func (s *DeviceFlowService) PollStatus(ctx context.Context, deviceCode string) (*PollResult, error) {
	session, err := s.sessions.GetByDeviceCode(ctx, deviceCode)
	if err != nil {
		if errors.Is(err, serrors.ErrDeviceCodeNotFound) {
			return &PollResult{Status: serrors.StatusInvalidCode}, nil
		}
		return nil, err
	}

	if session.IsExpired(time.Now()) {
		if err := s.sessions.Delete(ctx, deviceCode); err != nil {
			log.Warn().Err(err).Msg("failed to delete expired device session")
		}
		return &PollResult{Status: serrors.StatusExpiredToken}, nil
	}

	if session.Status == domain.DeviceSessionStatusPending {
		if err := s.sessions.TouchPolled(ctx, deviceCode); err != nil {
			log.Debug().Err(err).Msg("failed to record poll time")
		}
		return &PollResult{Status: serrors.StatusAuthorizationPending}, nil
	}

	// Authorized: consume exactly once.
	consumed, err := s.sessions.Consume(ctx, deviceCode)
	if err != nil {
		if errors.Is(err, serrors.ErrDeviceCodeNotFound) {
			// Lost the consumption race; the code is spent.
			return &PollResult{Status: serrors.StatusInvalidCode}, nil
		}
		return nil, err
	}

	token, err := s.tokens.Mint(consumed.UserID, consumed.UserEmail, consumed.DeviceType)
	if err != nil {
		return nil, fmt.Errorf("failed to mint session token: %w", err)
	}

	log.Info().
		Str("user_id", consumed.UserID).
		Str("device_type", consumed.DeviceType).
		Msg("device session redeemed")

	return &PollResult{
		Status:       serrors.StatusAuthorized,
		SessionToken: token,
		UserID:       consumed.UserID,
		UserEmail:    consumed.UserEmail,
	}, nil
}

// ProviderCredentials are the provider tokens the authorizing device obtained
// and hands over for storage.
type ProviderCredentials struct {
	AccountSlot  string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
	ClientKind   domain.ClientKind
}

// AuthorizeResult is returned to the authorizing device.
type AuthorizeResult struct {
	Status       string
	SessionToken string
	UserID       string
	UserEmail    string
	Decision     domain.AccessDecision
}

// AuthorizeSession completes a device authorization from the companion
// device. The caller authenticates with a provider identity assertion, not a
// session token; this is the one operation where a provider credential proves
// identity.
//
// The call is idempotency-safe: retries after the first success observe
// code_already_used and cause no further side effects.
func (s *DeviceFlowService) AuthorizeSession(
	ctx context.Context,
	userCode, provider, assertion, deviceType string,
	creds ProviderCredentials,
) (*AuthorizeResult, error) {
	userCode = NormalizeUserCode(userCode)
	if deviceType == "" {
		deviceType = "phone"
	}

	prov, err := s.providers.Get(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown provider %q", serrors.ErrInvalidAssertion, provider)
	}

	identity, err := prov.VerifyAssertion(ctx, assertion)
	if err != nil {
		return nil, err
	}

	decision := s.gate.Check(identity.Email)
	if !decision.Allowed {
		log.Info().
			Str("email", identity.Email).
			Str("reason", decision.Reason).
			Msg("device authorization denied")
		return nil, serrors.NewAccessDenied(decision.Reason)
	}

	// Fast-fail before touching the registry or vault so a stale retry has
	// no side effects.
	if status, ok := s.sessionStatusForAuthorize(ctx, userCode); !ok {
		return &AuthorizeResult{Status: status}, nil
	}

	user, err := s.users.GetOrCreate(ctx, provider, identity)
	if err != nil {
		return nil, err
	}

	slot := creds.AccountSlot
	if slot == "" {
		slot = "primary"
	}
	if _, err := s.vault.Store(ctx, user.ID, provider, slot, creds, identity); err != nil {
		return nil, fmt.Errorf("failed to store provider tokens: %w", err)
	}

	if _, err := s.sessions.Authorize(ctx, userCode, user.ID, user.Email); err != nil {
		if errors.Is(err, serrors.ErrCannotAuthorizeSession) {
			// Raced with another authorizer or with expiry; re-inspect.
			status, _ := s.sessionStatusForAuthorize(ctx, userCode)
			return &AuthorizeResult{Status: status}, nil
		}
		return nil, err
	}

	if err := s.users.TouchLogin(ctx, user.ID); err != nil {
		log.Debug().Err(err).Str("user_id", user.ID).Msg("failed to stamp login time")
	}

	// The authorizing device is itself a logged-in client now; it gets its
	// own independently expiring session token.
	token, err := s.tokens.Mint(user.ID, user.Email, deviceType)
	if err != nil {
		return nil, fmt.Errorf("failed to mint session token: %w", err)
	}

	log.Info().
		Str("user_id", user.ID).
		Str("user_code", userCode).
		Str("provider", provider).
		Msg("device session authorized")

	return &AuthorizeResult{
		Status:       serrors.StatusAuthorized,
		SessionToken: token,
		UserID:       user.ID,
		UserEmail:    user.Email,
		Decision:     decision,
	}, nil
}

// DeleteExpired sweeps expired sessions. Expiry is enforced lazily at poll
// and authorize time; the sweep only keeps the table small.
func (s *DeviceFlowService) DeleteExpired(ctx context.Context) error {
	return s.sessions.DeleteExpired(ctx)
}

// sessionStatusForAuthorize inspects a session by user code and returns the
// terminal authorize status when the session cannot be authorized. ok is true
// when the session is pending and unexpired.
func (s *DeviceFlowService) sessionStatusForAuthorize(ctx context.Context, userCode string) (string, bool) {
	session, err := s.sessions.GetByUserCode(ctx, userCode)
	if err != nil {
		return serrors.StatusInvalidCode, false
	}
	if session.IsExpired(time.Now()) {
		return serrors.StatusExpiredCode, false
	}
	if session.Status != domain.DeviceSessionStatusPending {
		return serrors.StatusCodeAlreadyUsed, false
	}
	return "", true
}
