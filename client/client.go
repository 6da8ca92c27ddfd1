// Package client is the Go client for the device authorization and
// token vault API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hearthview/auth/api"
	serrors "github.com/hearthview/auth/errors"
)

const defaultTimeout = 15 * time.Second

// Client talks to the auth service over HTTP. The zero value is not usable;
// construct it with New.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	sessionToken string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSessionToken sets the bearer token used on authenticated calls.
func WithSessionToken(token string) Option {
	return func(c *Client) { c.sessionToken = token }
}

// New creates an API client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetSessionToken replaces the bearer token, e.g. after a device flow
// completes or a session refresh rotates it.
func (c *Client) SetSessionToken(token string) {
	c.sessionToken = token
}

// SessionToken returns the bearer token currently in use.
func (c *Client) SessionToken() string {
	return c.sessionToken
}

// CreateDeviceCode starts a device authorization flow.
func (c *Client) CreateDeviceCode(ctx context.Context, deviceType string) (*api.DeviceCodeResponse, error) {
	var resp api.DeviceCodeResponse
	err := c.post(ctx, "/v1/device/code", false, api.CreateDeviceCodeRequest{DeviceType: deviceType}, &resp)
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

// PollDeviceCode reports the current state of a device flow.
func (c *Client) PollDeviceCode(ctx context.Context, deviceCode string) (*api.PollDeviceCodeResponse, error) {
	var resp api.PollDeviceCodeResponse
	err := c.post(ctx, "/v1/device/token", false, api.PollDeviceCodeRequest{DeviceCode: deviceCode}, &resp)
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

// AuthorizeDeviceCode approves a pending device flow.
func (c *Client) AuthorizeDeviceCode(ctx context.Context, req api.AuthorizeDeviceCodeRequest) (*api.AuthorizeDeviceCodeResponse, error) {
	var resp api.AuthorizeDeviceCodeResponse
	if err := c.post(ctx, "/v1/device/authorize", false, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// StoreTokens vaults provider tokens for the calling user.
func (c *Client) StoreTokens(ctx context.Context, provider string, creds api.ProviderCredentials) (*api.StoreTokensResponse, error) {
	var resp api.StoreTokensResponse
	err := c.post(ctx, "/v1/accounts/tokens", true, api.StoreTokensRequest{Provider: provider, Credentials: creds}, &resp)
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

// GetValidAccessToken returns a provider access token, refreshed server-side
// if it was close to expiry.
func (c *Client) GetValidAccessToken(ctx context.Context, provider, accountSlot string) (*api.ValidTokenResponse, error) {
	var resp api.ValidTokenResponse
	err := c.post(ctx, "/v1/accounts/token/valid", true,
		api.ValidTokenRequest{Provider: provider, AccountSlot: accountSlot}, &resp)
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

// ListAccounts lists the user's connected accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]api.Account, error) {
	var resp api.ListAccountsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/accounts", true, nil, &resp); err != nil {
		return nil, err
	}

	return resp.Accounts, nil
}

// RemoveAccount deletes one vaulted account slot.
func (c *Client) RemoveAccount(ctx context.Context, provider, accountSlot string) error {
	var resp api.RemoveAccountResponse

	return c.do(ctx, http.MethodDelete, "/v1/accounts", true,
		api.RemoveAccountRequest{Provider: provider, AccountSlot: accountSlot}, &resp)
}

// RefreshSession rotates the session token and stores the replacement on the
// client.
func (c *Client) RefreshSession(ctx context.Context) (string, error) {
	var resp api.SessionRefreshResponse
	if err := c.post(ctx, "/v1/session/refresh", true, nil, &resp); err != nil {
		return "", err
	}
	c.sessionToken = resp.SessionToken

	return resp.SessionToken, nil
}

func (c *Client) post(ctx context.Context, path string, authed bool, body, out any) error {
	return c.do(ctx, http.MethodPost, path, authed, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, authed bool, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError turns a non-200 response back into the typed errors the
// services raise, so callers can use errors.Is/As on the client side too.
func decodeError(resp *http.Response) error {
	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	switch body.Error {
	case serrors.StatusAccessDenied:
		return serrors.NewAccessDenied(body.Reason)
	case "refresh_failed":
		terminal := body.Terminal != nil && *body.Terminal
		return serrors.NewRefreshError(terminal, fmt.Errorf("%s", body.Description))
	case "invalid_token":
		return serrors.ErrInvalidSessionToken
	case "account_not_found":
		return serrors.ErrAccountNotFound
	case "user_not_found":
		return serrors.ErrUserNotFound
	case "unknown_provider":
		return serrors.ErrProviderNotFound
	case "missing_token":
		return serrors.ErrInvalidSessionToken
	}

	if body.Description != "" {
		return fmt.Errorf("%s: %s", body.Error, body.Description)
	}

	return fmt.Errorf("%s", body.Error)
}
