package domain

import "time"

// ClientKind records which OAuth client pair a provider credential was issued
// against. Providers bind refresh grants to the issuing client, and a device
// flow and an interactive flow typically use different client credentials, so
// the refresh exchange must reuse the original pair.
type ClientKind string

const (
	ClientKindDevice ClientKind = "device"
	ClientKindWeb    ClientKind = "web"
)

// VaultEntry is one stored external-provider credential, keyed by
// (UserID, Provider, AccountSlot). AccountSlot is a user-chosen stable label
// ("primary", "account2") distinguishing multiple connected accounts from the
// same provider; it is not tied to any provider-side identifier.
type VaultEntry struct {
	ID           string     `bson:"_id" json:"id"`
	UserID       string     `bson:"user_id" json:"user_id"`
	Provider     string     `bson:"provider" json:"provider"`
	AccountSlot  string     `bson:"account_slot" json:"account_slot"`
	Email        string     `bson:"email" json:"email"`
	AccessToken  string     `bson:"access_token" json:"access_token"`
	RefreshToken string     `bson:"refresh_token" json:"refresh_token"`
	ExpiresAt    time.Time  `bson:"expires_at" json:"expires_at"`
	Scopes       []string   `bson:"scopes,omitempty" json:"scopes,omitempty"`
	DisplayName  string     `bson:"display_name,omitempty" json:"display_name,omitempty"`
	ClientKind   ClientKind `bson:"client_kind" json:"client_kind"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
}

// Account is the listing view of a VaultEntry with the secrets stripped.
type Account struct {
	Provider    string    `json:"provider"`
	AccountSlot string    `json:"account_slot"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Scopes      []string  `json:"scopes,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Account returns the secret-free view of the entry.
func (e *VaultEntry) Account() Account {
	return Account{
		Provider:    e.Provider,
		AccountSlot: e.AccountSlot,
		Email:       e.Email,
		DisplayName: e.DisplayName,
		Scopes:      e.Scopes,
		ExpiresAt:   e.ExpiresAt,
	}
}
