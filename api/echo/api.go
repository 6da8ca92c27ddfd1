// Package echo exposes the device authorization and token vault HTTP API.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/hearthview/auth/api"
	"github.com/hearthview/auth/cache"
	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
	"github.com/hearthview/auth/services"
)

// DeviceAuthAPI struct to hold dependencies.
type DeviceAuthAPI struct {
	flow   *services.DeviceFlowService
	vault  *services.VaultService
	tokens *services.SessionTokenService
}

// NewDeviceAuthAPI initializes the device authorization API.
func NewDeviceAuthAPI(
	flow *services.DeviceFlowService,
	vault *services.VaultService,
	tokens *services.SessionTokenService,
) *DeviceAuthAPI {
	return &DeviceAuthAPI{
		flow:   flow,
		vault:  vault,
		tokens: tokens,
	}
}

// RegisterRoutes registers the device flow and account routes.
func (a *DeviceAuthAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/device/code", a.CreateDeviceCodeHandler)
	e.POST("/v1/device/token", a.PollDeviceCodeHandler)
	e.POST("/v1/device/authorize", a.AuthorizeDeviceCodeHandler)

	authed := e.Group("", a.RequireSession)
	authed.POST("/v1/accounts/tokens", a.StoreTokensHandler)
	authed.POST("/v1/accounts/token/valid", a.ValidTokenHandler)
	authed.GET("/v1/accounts", a.ListAccountsHandler)
	authed.DELETE("/v1/accounts", a.RemoveAccountHandler)
	authed.POST("/v1/session/refresh", a.SessionRefreshHandler)
}

// CreateDeviceCodeHandler starts a device authorization flow: it allocates a
// device_code/user_code pair and tells the device where the user should go to
// approve it.
func (a *DeviceAuthAPI) CreateDeviceCodeHandler(c echo.Context) error {
	var req api.CreateDeviceCodeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}

	result, err := a.flow.CreateSession(c.Request().Context(), req.DeviceType)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create device session")

		return serverError(c)
	}

	return c.JSON(http.StatusOK, api.DeviceCodeResponse{
		DeviceCode:      result.DeviceCode,
		UserCode:        result.UserCode,
		VerificationURL: result.VerificationURL,
		ExpiresIn:       result.ExpiresIn,
		Interval:        result.Interval,
	})
}

// PollDeviceCodeHandler reports the state of a pending device flow. Flow
// outcomes (authorization_pending, expired_token, invalid_code, authorized)
// are all 200 responses with a status field; only infrastructure failures
// surface as HTTP errors.
func (a *DeviceAuthAPI) PollDeviceCodeHandler(c echo.Context) error {
	var req api.PollDeviceCodeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	if req.DeviceCode == "" {
		return badRequest(c, "device_code is required")
	}

	result, err := a.flow.PollStatus(c.Request().Context(), req.DeviceCode)
	if err != nil {
		log.Error().Err(err).Msg("Device code poll failed")

		return serverError(c)
	}

	resp := api.PollDeviceCodeResponse{Status: result.Status}
	if result.Status == serrors.StatusAuthorized {
		resp.SessionToken = result.SessionToken
		resp.User = &api.UserInfo{ID: result.UserID, Email: result.UserEmail}
	}

	return c.JSON(http.StatusOK, resp)
}

// AuthorizeDeviceCodeHandler approves a pending device flow on behalf of an
// authenticated user. The caller proves its identity with a provider
// assertion and hands over the provider tokens to be vaulted.
func (a *DeviceAuthAPI) AuthorizeDeviceCodeHandler(c echo.Context) error {
	var req api.AuthorizeDeviceCodeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	if req.UserCode == "" || req.Provider == "" || req.Assertion == "" {
		return badRequest(c, "user_code, provider and assertion are required")
	}

	creds := services.ProviderCredentials{
		AccountSlot:  req.Credentials.AccountSlot,
		AccessToken:  req.Credentials.AccessToken,
		RefreshToken: req.Credentials.RefreshToken,
		ExpiresAt:    req.Credentials.ExpiresAt,
		Scopes:       req.Credentials.Scopes,
		ClientKind:   domain.ClientKind(req.Credentials.ClientKind),
	}

	result, err := a.flow.AuthorizeSession(
		c.Request().Context(), req.UserCode, req.Provider, req.Assertion, req.DeviceType, creds)
	if err != nil {
		return writeError(c, err)
	}

	resp := api.AuthorizeDeviceCodeResponse{Status: result.Status}
	if result.Status == serrors.StatusAuthorized {
		resp.SessionToken = result.SessionToken
		resp.User = &api.UserInfo{ID: result.UserID, Email: result.UserEmail}
		resp.Tier = string(result.Decision.Tier)
	}

	return c.JSON(http.StatusOK, resp)
}

// StoreTokensHandler vaults (or replaces) provider tokens for the calling user.
func (a *DeviceAuthAPI) StoreTokensHandler(c echo.Context) error {
	claims := sessionClaims(c)

	var req api.StoreTokensRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	if req.Provider == "" || req.Credentials.RefreshToken == "" {
		return badRequest(c, "provider and refresh_token are required")
	}

	slot := req.Credentials.AccountSlot
	if slot == "" {
		slot = "primary"
	}

	creds := services.ProviderCredentials{
		AccountSlot:  slot,
		AccessToken:  req.Credentials.AccessToken,
		RefreshToken: req.Credentials.RefreshToken,
		ExpiresAt:    req.Credentials.ExpiresAt,
		Scopes:       req.Credentials.Scopes,
		ClientKind:   domain.ClientKind(req.Credentials.ClientKind),
	}

	account, err := a.vault.Store(c.Request().Context(), claims.UserID, req.Provider, slot, creds, nil)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, api.StoreTokensResponse{
		Stored:  true,
		Account: toAPIAccount(account),
	})
}

// ValidTokenHandler returns a provider access token valid for at least the
// refresh buffer, refreshing it first when needed.
func (a *DeviceAuthAPI) ValidTokenHandler(c echo.Context) error {
	claims := sessionClaims(c)

	var req api.ValidTokenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	if req.Provider == "" {
		return badRequest(c, "provider is required")
	}
	if req.AccountSlot == "" {
		req.AccountSlot = "primary"
	}

	token, err := a.vault.GetValidToken(c.Request().Context(), claims.UserID, req.Provider, req.AccountSlot)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, api.ValidTokenResponse{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.ExpiresAt,
		Refreshed:   token.Refreshed,
	})
}

// ListAccountsHandler lists the calling user's vaulted accounts without
// exposing any token material.
func (a *DeviceAuthAPI) ListAccountsHandler(c echo.Context) error {
	claims := sessionClaims(c)

	accounts, err := a.vault.ListAccounts(c.Request().Context(), claims.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to list accounts")

		return serverError(c)
	}

	resp := api.ListAccountsResponse{Accounts: make([]api.Account, 0, len(accounts))}
	for i := range accounts {
		resp.Accounts = append(resp.Accounts, toAPIAccount(&accounts[i]))
	}

	return c.JSON(http.StatusOK, resp)
}

// RemoveAccountHandler deletes one vaulted account slot.
func (a *DeviceAuthAPI) RemoveAccountHandler(c echo.Context) error {
	claims := sessionClaims(c)

	var req api.RemoveAccountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	if req.Provider == "" {
		return badRequest(c, "provider is required")
	}
	if req.AccountSlot == "" {
		req.AccountSlot = "primary"
	}

	if err := a.vault.RemoveAccount(c.Request().Context(), claims.UserID, req.Provider, req.AccountSlot); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, api.RemoveAccountResponse{Removed: true})
}

// SessionRefreshHandler exchanges a valid session token for a fresh one with
// a full validity window, preserving the device and session identity.
func (a *DeviceAuthAPI) SessionRefreshHandler(c echo.Context) error {
	token, err := a.tokens.Refresh(c.Request().Context(), bearerToken(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, api.SessionRefreshResponse{SessionToken: token})
}

func toAPIAccount(acc *domain.Account) api.Account {
	return api.Account{
		Provider:    acc.Provider,
		AccountSlot: acc.AccountSlot,
		Email:       acc.Email,
		DisplayName: acc.DisplayName,
		Scopes:      acc.Scopes,
		ExpiresAt:   acc.ExpiresAt,
	}
}

func sessionClaims(c echo.Context) *cache.SessionClaims {
	claims, _ := c.Get(sessionClaimsKey).(*cache.SessionClaims)

	return claims
}
