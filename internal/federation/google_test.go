package federation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
)

func testGoogleProvider(userInfoURL, tokenURL string) *GoogleProvider {
	p := NewGoogleProvider(
		ClientCredentials{ClientID: "device-client", ClientSecret: "device-secret"},
		ClientCredentials{ClientID: "web-client", ClientSecret: "web-secret"},
	)
	if userInfoURL != "" {
		p.UserInfoURL = userInfoURL
	}
	if tokenURL != "" {
		p.Endpoint = oauth2.Endpoint{TokenURL: tokenURL}
	}
	return p
}

func TestGoogleVerifyAssertion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer good-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"sub": "109876",
			"name": "Test User",
			"picture": "https://example.com/p.png",
			"email": "user@example.com",
			"email_verified": true
		}`))
	}))
	defer srv.Close()

	p := testGoogleProvider(srv.URL, "")
	identity, err := p.VerifyAssertion(context.Background(), "good-token")
	require.NoError(t, err)

	assert.Equal(t, "109876", identity.Subject)
	assert.Equal(t, "user@example.com", identity.Email)
	assert.Equal(t, "Test User", identity.Name)
	assert.True(t, identity.EmailVerified)
}

func TestGoogleVerifyAssertionUnverifiedEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub": "109876", "email": "user@example.com", "email_verified": false}`))
	}))
	defer srv.Close()

	p := testGoogleProvider(srv.URL, "")
	_, err := p.VerifyAssertion(context.Background(), "token")
	assert.ErrorIs(t, err, serrors.ErrInvalidAssertion)
}

func TestGoogleVerifyAssertionRejectedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := testGoogleProvider(srv.URL, "")
	_, err := p.VerifyAssertion(context.Background(), "bad-token")
	assert.ErrorIs(t, err, serrors.ErrInvalidAssertion)
}

func TestGoogleVerifyAssertionMissingSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"email": "user@example.com", "email_verified": true}`))
	}))
	defer srv.Close()

	p := testGoogleProvider(srv.URL, "")
	_, err := p.VerifyAssertion(context.Background(), "token")
	assert.ErrorIs(t, err, serrors.ErrInvalidAssertion)
}

func TestGoogleRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "new-access",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	}))
	defer srv.Close()

	p := testGoogleProvider("", srv.URL)
	refreshed, err := p.Refresh(context.Background(), "old-refresh", domain.ClientKindWeb)
	require.NoError(t, err)

	assert.Equal(t, "new-access", refreshed.AccessToken)
	assert.Empty(t, refreshed.RefreshToken, "no rotation means no new grant")
	assert.False(t, refreshed.ExpiresAt.IsZero())
}

func TestGoogleRefreshSelectsClientByKind(t *testing.T) {
	var gotClientID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotClientID = r.Form.Get("client_id")
		if gotClientID == "" {
			// oauth2 may send client credentials via basic auth instead.
			gotClientID, _, _ = r.BasicAuth()
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "x", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer srv.Close()

	p := testGoogleProvider("", srv.URL)

	_, err := p.Refresh(context.Background(), "rt", domain.ClientKindDevice)
	require.NoError(t, err)
	assert.Equal(t, "device-client", gotClientID)

	_, err = p.Refresh(context.Background(), "rt", domain.ClientKindWeb)
	require.NoError(t, err)
	assert.Equal(t, "web-client", gotClientID)
}

func TestGoogleRefreshInvalidGrantIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant", "error_description": "Token has been revoked."}`))
	}))
	defer srv.Close()

	p := testGoogleProvider("", srv.URL)
	_, err := p.Refresh(context.Background(), "revoked", domain.ClientKindWeb)

	require.Error(t, err)
	assert.True(t, serrors.IsTerminalRefresh(err))
}

func TestGoogleRefreshServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := testGoogleProvider("", srv.URL)
	_, err := p.Refresh(context.Background(), "rt", domain.ClientKindWeb)

	require.Error(t, err)
	assert.True(t, serrors.IsRefreshError(err))
	assert.False(t, serrors.IsTerminalRefresh(err))
}

func TestGoogleRefreshWithoutClientIsTerminal(t *testing.T) {
	p := NewGoogleProvider(ClientCredentials{}, ClientCredentials{})

	_, err := p.Refresh(context.Background(), "rt", domain.ClientKindDevice)
	require.Error(t, err)
	assert.True(t, serrors.IsTerminalRefresh(err))
}

func TestRegistry(t *testing.T) {
	p := NewGoogleProvider(ClientCredentials{}, ClientCredentials{})
	r := NewRegistry(p)

	got, err := r.Get("google")
	require.NoError(t, err)
	assert.Same(t, p, got)

	_, err = r.Get("myspace")
	assert.ErrorIs(t, err, serrors.ErrProviderNotFound)
}
