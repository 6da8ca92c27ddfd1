package domain

import "context"

// DeviceSessionRepository stores in-flight device authorization sessions.
//
// Authorize and Consume are the two linearization points of the flow: both
// are conditional single-document operations, never read-then-write, so
// concurrent callers resolve to exactly one winner.
type DeviceSessionRepository interface {
	Create(ctx context.Context, session *DeviceSession) error
	GetByDeviceCode(ctx context.Context, deviceCode string) (*DeviceSession, error)
	GetByUserCode(ctx context.Context, userCode string) (*DeviceSession, error)

	// Authorize flips a pending, unexpired session to authorized and attaches
	// the user. Returns ErrCannotAuthorizeSession when no such session
	// matches (unknown, expired, or already authorized); callers distinguish
	// those cases with GetByUserCode.
	Authorize(ctx context.Context, userCode, userID, userEmail string) (*DeviceSession, error)

	// Consume atomically removes an authorized session and returns it. Any
	// caller after the first gets ErrDeviceCodeNotFound; this is what makes a
	// device code single-use.
	Consume(ctx context.Context, deviceCode string) (*DeviceSession, error)

	Delete(ctx context.Context, deviceCode string) error
	TouchPolled(ctx context.Context, deviceCode string) error
	DeleteExpired(ctx context.Context) error
}

// VaultRepository stores provider credentials keyed by
// (user, provider, account slot).
type VaultRepository interface {
	// Upsert creates or overwrites the entry for its key without disturbing
	// other slots.
	Upsert(ctx context.Context, entry *VaultEntry) error

	// Update rewrites an existing entry and fails with ErrAccountNotFound
	// when the entry is gone. Refresh persistence uses this so a removed
	// account is never resurrected by an in-flight refresh.
	Update(ctx context.Context, entry *VaultEntry) error

	Get(ctx context.Context, userID, provider, accountSlot string) (*VaultEntry, error)
	ListByUser(ctx context.Context, userID string) ([]*VaultEntry, error)
	Delete(ctx context.Context, userID, provider, accountSlot string) error
}

// UserRepository stores internal user records.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByProviderSubject(ctx context.Context, provider, subject string) (*User, error)
	TouchLogin(ctx context.Context, id string) error
}
