package errors

import (
	"errors"
	"fmt"
)

// Flow statuses returned to polling and authorizing devices. These are
// expected outcomes of the device flow, not faults: clients poll repeatedly
// and branch on the status value.
const (
	StatusAuthorizationPending = "authorization_pending"
	StatusAuthorized           = "authorized"
	StatusInvalidCode          = "invalid_code"
	StatusExpiredToken         = "expired_token"
	StatusExpiredCode          = "expired_code"
	StatusCodeAlreadyUsed      = "code_already_used"
	StatusAccessDenied         = "access_denied"
)

var (
	// ErrDeviceCodeNotFound is returned when a device code does not exist in
	// the store. A consumed or swept session is indistinguishable from one
	// that never existed.
	ErrDeviceCodeNotFound = errors.New("device code not found")

	// ErrUserCodeNotFound is returned when a user code does not exist.
	ErrUserCodeNotFound = errors.New("user code not found")

	// ErrCannotAuthorizeSession is returned by the conditional
	// pending -> authorized transition when no pending, unexpired session
	// matches the user code.
	ErrCannotAuthorizeSession = errors.New("device session cannot be authorized")

	// ErrInvalidAssertion is returned when a provider identity assertion
	// could not be verified, including when the provider does not report the
	// email as verified.
	ErrInvalidAssertion = errors.New("identity assertion could not be verified")

	// ErrInvalidSessionToken is returned when a session token fails signature
	// or expiry validation.
	ErrInvalidSessionToken = errors.New("invalid session token")

	// ErrAccountNotFound is returned when no vault entry exists for the
	// requested (user, provider, account slot).
	ErrAccountNotFound = errors.New("account not found")

	// ErrUserNotFound is returned when no internal user record matches.
	ErrUserNotFound = errors.New("user not found")

	// ErrProviderNotFound is returned when no identity provider is registered
	// under the requested name.
	ErrProviderNotFound = errors.New("identity provider not found")
)

// Access denial reasons, surfaced verbatim to clients.
const (
	ReasonMaintenance    = "maintenance"
	ReasonNotWhitelisted = "not_whitelisted"
	ReasonTrialExpired   = "trial_expired"
)

// AccessDeniedError carries the user-facing reason an identity was refused
// credentials. It never grants partial access.
type AccessDeniedError struct {
	Reason string `json:"reason"`
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

func NewAccessDenied(reason string) *AccessDeniedError {
	return &AccessDeniedError{Reason: reason}
}

// RefreshError reports a failed provider refresh exchange. Terminal means the
// grant itself is dead (invalid or revoked) and the caller must force a full
// re-authentication; transient failures (network, 5xx, timeout) may be
// retried.
type RefreshError struct {
	Terminal bool
	Err      error
}

func (e *RefreshError) Error() string {
	kind := "transient"
	if e.Terminal {
		kind = "terminal"
	}
	return fmt.Sprintf("token refresh failed (%s): %v", kind, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

func NewRefreshError(terminal bool, err error) *RefreshError {
	return &RefreshError{Terminal: terminal, Err: err}
}

// IsTerminalRefresh reports whether err is a RefreshError with Terminal set.
func IsTerminalRefresh(err error) bool {
	var re *RefreshError
	return errors.As(err, &re) && re.Terminal
}

// IsRefreshError reports whether err is any RefreshError.
func IsRefreshError(err error) bool {
	var re *RefreshError
	return errors.As(err, &re)
}
