package echo

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/hearthview/auth/api"
	serrors "github.com/hearthview/auth/errors"
)

const sessionClaimsKey = "session_claims"

// RequireSession validates the Bearer session token and stores the verified
// claims on the request context.
func (a *DeviceAuthAPI) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "missing_token"})
		}

		claims, err := a.tokens.Verify(c.Request().Context(), token)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid_token"})
		}

		c.Set(sessionClaimsKey, claims)

		return next(c)
	}
}

func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return parts[1]
}

func badRequest(c echo.Context, desc string) error {
	return c.JSON(http.StatusBadRequest, api.ErrorResponse{
		Error:       "invalid_request",
		Description: desc,
	})
}

func serverError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "server_error"})
}

// writeError maps service errors onto the HTTP surface. Access denials are
// 403 with the gate's reason, identity failures are 401, terminal refresh
// failures are 409 so clients know to re-authenticate, and transient ones
// are 502 so they retry.
func writeError(c echo.Context, err error) error {
	var denied *serrors.AccessDeniedError
	if errors.As(err, &denied) {
		return c.JSON(http.StatusForbidden, api.ErrorResponse{
			Error:  serrors.StatusAccessDenied,
			Reason: denied.Reason,
		})
	}

	var refreshErr *serrors.RefreshError
	if errors.As(err, &refreshErr) {
		status := http.StatusBadGateway
		if refreshErr.Terminal {
			status = http.StatusConflict
		}
		terminal := refreshErr.Terminal

		return c.JSON(status, api.ErrorResponse{
			Error:       "refresh_failed",
			Description: refreshErr.Error(),
			Terminal:    &terminal,
		})
	}

	switch {
	case errors.Is(err, serrors.ErrInvalidAssertion), errors.Is(err, serrors.ErrInvalidSessionToken):
		return c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid_token"})
	case errors.Is(err, serrors.ErrAccountNotFound):
		return c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "account_not_found"})
	case errors.Is(err, serrors.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "user_not_found"})
	case errors.Is(err, serrors.ErrProviderNotFound):
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "unknown_provider"})
	}

	log.Error().Err(err).Msg("Request failed")

	return serverError(c)
}
