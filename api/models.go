// Package api defines the wire types of the auth service's HTTP surface.
package api

import "time"

// UserInfo identifies the authenticated user in flow responses.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ProviderCredentials carry provider tokens supplied by an authorizing or
// already-authenticated device.
type ProviderCredentials struct {
	AccountSlot  string    `json:"account_slot,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`
	ClientKind   string    `json:"client_kind,omitempty"`
}

// Account is the secret-free view of one connected provider account.
type Account struct {
	Provider    string    `json:"provider"`
	AccountSlot string    `json:"account_slot"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Scopes      []string  `json:"scopes,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type CreateDeviceCodeRequest struct {
	DeviceType string `json:"device_type"`
}

type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

type PollDeviceCodeRequest struct {
	DeviceCode string `json:"device_code"`
}

type PollDeviceCodeResponse struct {
	Status       string    `json:"status"`
	SessionToken string    `json:"session_token,omitempty"`
	User         *UserInfo `json:"user,omitempty"`
}

type AuthorizeDeviceCodeRequest struct {
	UserCode    string              `json:"user_code"`
	Provider    string              `json:"provider"`
	Assertion   string              `json:"assertion"`
	DeviceType  string              `json:"device_type,omitempty"`
	Credentials ProviderCredentials `json:"credentials"`
}

type AuthorizeDeviceCodeResponse struct {
	Status       string    `json:"status"`
	SessionToken string    `json:"session_token,omitempty"`
	User         *UserInfo `json:"user,omitempty"`
	Tier         string    `json:"tier,omitempty"`
}

type StoreTokensRequest struct {
	Provider    string              `json:"provider"`
	Credentials ProviderCredentials `json:"credentials"`
}

type StoreTokensResponse struct {
	Stored  bool    `json:"stored"`
	Account Account `json:"account"`
}

type ValidTokenRequest struct {
	Provider    string `json:"provider"`
	AccountSlot string `json:"account_slot"`
}

type ValidTokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Refreshed   bool      `json:"refreshed"`
}

type ListAccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

type RemoveAccountRequest struct {
	Provider    string `json:"provider"`
	AccountSlot string `json:"account_slot"`
}

type RemoveAccountResponse struct {
	Removed bool `json:"removed"`
}

type SessionRefreshResponse struct {
	SessionToken string `json:"session_token"`
}

// ErrorResponse is the uniform error body. Terminal is set only on
// refresh_failed errors so clients can distinguish "re-authenticate" from
// "retry later".
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Terminal    *bool  `json:"terminal,omitempty"`
}
