package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	googleoauth2 "golang.org/x/oauth2/google"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
)

// GoogleUserInfoEndpoint is the OIDC userinfo endpoint used to verify
// identity assertions. Package variable so tests can point it elsewhere.
var GoogleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

// ClientCredentials is one OAuth client id/secret pair.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// GoogleProvider verifies Google identity assertions and performs
// refresh-token exchanges. It carries two client pairs: the device-flow pair
// and the interactive (web) pair, because Google binds refresh grants to the
// issuing client.
type GoogleProvider struct {
	Device ClientCredentials
	Web    ClientCredentials

	// Endpoint and UserInfoURL default to Google's well-known endpoints;
	// tests override them with an httptest server.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
	HTTPClient  *http.Client
}

func NewGoogleProvider(device, web ClientCredentials) *GoogleProvider {
	return &GoogleProvider{
		Device:      device,
		Web:         web,
		Endpoint:    googleoauth2.Endpoint,
		UserInfoURL: GoogleUserInfoEndpoint,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *GoogleProvider) Name() string { return "google" }

func (g *GoogleProvider) VerifyAssertion(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach userinfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: userinfo returned status %d", serrors.ErrInvalidAssertion, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("userinfo returned status %d: %s", resp.StatusCode, string(body))
	}

	var raw struct {
		Sub           string `json:"sub"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	if raw.Sub == "" || raw.Email == "" {
		return nil, fmt.Errorf("%w: userinfo response missing subject or email", serrors.ErrInvalidAssertion)
	}
	// An unverified email is never accepted as an identity.
	if !raw.EmailVerified {
		return nil, fmt.Errorf("%w: email %s is not verified", serrors.ErrInvalidAssertion, raw.Email)
	}

	return &Identity{
		Subject:       raw.Sub,
		Email:         raw.Email,
		EmailVerified: true,
		Name:          raw.Name,
		Picture:       raw.Picture,
	}, nil
}

func (g *GoogleProvider) Refresh(ctx context.Context, refreshToken string, kind domain.ClientKind) (*RefreshedToken, error) {
	cfg := g.config(kind)
	if cfg.ClientID == "" {
		return nil, serrors.NewRefreshError(true, fmt.Errorf("no %s client configured for google", kind))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.HTTPClient)
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		return nil, classifyRefreshError(err)
	}

	out := &RefreshedToken{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.Expiry,
	}
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		out.RefreshToken = tok.RefreshToken
	}
	return out, nil
}

func (g *GoogleProvider) config(kind domain.ClientKind) *oauth2.Config {
	creds := g.Web
	if kind == domain.ClientKindDevice {
		creds = g.Device
	}
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     g.Endpoint,
	}
}

// classifyRefreshError maps an oauth2 token exchange failure onto the refresh
// taxonomy. An invalid_grant style rejection means the grant is dead and the
// user must re-authenticate; anything else (network trouble, provider 5xx,
// timeouts) is transient.
func classifyRefreshError(err error) *serrors.RefreshError {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "unauthorized_client", "invalid_client":
			return serrors.NewRefreshError(true, err)
		}
		if re.Response != nil && re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 {
			return serrors.NewRefreshError(true, err)
		}
	}
	return serrors.NewRefreshError(false, err)
}
