package provider

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dgellow/forward-auth/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Google authenticates against Google OAuth.
// Note: Google reports `verified_email` instead of the OIDC standard
// `email_verified`.
type Google struct {
	cfg         config.ProviderConfig
	userInfoURL string
}

// googleUserInfoResponse represents Google's userinfo response
type googleUserInfoResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
}

// NewGoogle creates a Google provider from its config blob
func NewGoogle(cfg config.ProviderConfig) *Google {
	return &Google{
		cfg:         cfg,
		userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
	}
}

// Name returns the provider identifier
func (p *Google) Name() string {
	return "google"
}

// Validate checks required fields
func (p *Google) Validate() error {
	if p.cfg.ClientID == "" {
		return &ConfigError{Provider: p.Name(), Field: "clientId"}
	}
	if p.cfg.ClientSecret == "" {
		return &ConfigError{Provider: p.Name(), Field: "clientSecret"}
	}
	return nil
}

func (p *Google) oauthConfig(redirectURL string) oauth2.Config {
	scopes := p.cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	return oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: string(p.cfg.ClientSecret),
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}
}

// LoginURL builds the Google authorization URL
func (p *Google) LoginURL(redirectURL, state string) string {
	cfg := p.oauthConfig(redirectURL)
	return cfg.AuthCodeURL(state)
}

// TokenURL returns the token-exchange endpoint
func (p *Google) TokenURL() string {
	return google.Endpoint.TokenURL
}

// ExchangeCode exchanges an authorization code for tokens
func (p *Google) ExchangeCode(ctx context.Context, redirectURL, code string) (*oauth2.Token, error) {
	cfg := p.oauthConfig(redirectURL)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Op: "exchange code", Err: err}
	}
	return token, nil
}

// GetUser fetches the identity from Google's userinfo endpoint
func (p *Google) GetUser(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	cfg := p.oauthConfig("")
	client := cfg.Client(ctx, token)

	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Op: "get user info", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Provider: p.Name(), Op: "get user info", Err: statusError(resp.StatusCode)}
	}

	var user googleUserInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, &Error{Provider: p.Name(), Op: "decode user info", Err: err}
	}

	return &Identity{
		ID:       user.ID,
		Email:    user.Email,
		Verified: user.VerifiedEmail,
	}, nil
}
