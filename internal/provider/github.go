package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dgellow/forward-auth/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHub authenticates against GitHub OAuth. GitHub speaks OAuth 2.0, not
// OIDC, and has its own API for user info; the profile only shows verified
// emails, with a separate emails API as fallback.
type GitHub struct {
	cfg config.ProviderConfig

	// defaults to https://api.github.com, overridden in tests
	apiBaseURL string
}

// githubUserResponse represents GitHub's user API response
type githubUserResponse struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

// githubEmailResponse represents an email from GitHub's emails API
type githubEmailResponse struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// NewGitHub creates a GitHub provider from its config blob
func NewGitHub(cfg config.ProviderConfig) *GitHub {
	return &GitHub{
		cfg:        cfg,
		apiBaseURL: "https://api.github.com",
	}
}

// Name returns the provider identifier
func (p *GitHub) Name() string {
	return "github"
}

// Validate checks required fields
func (p *GitHub) Validate() error {
	if p.cfg.ClientID == "" {
		return &ConfigError{Provider: p.Name(), Field: "clientId"}
	}
	if p.cfg.ClientSecret == "" {
		return &ConfigError{Provider: p.Name(), Field: "clientSecret"}
	}
	return nil
}

func (p *GitHub) oauthConfig(redirectURL string) oauth2.Config {
	scopes := p.cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"user:email"}
	}
	return oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: string(p.cfg.ClientSecret),
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     github.Endpoint,
	}
}

// LoginURL builds the GitHub authorization URL
func (p *GitHub) LoginURL(redirectURL, state string) string {
	cfg := p.oauthConfig(redirectURL)
	return cfg.AuthCodeURL(state)
}

// TokenURL returns the token-exchange endpoint
func (p *GitHub) TokenURL() string {
	return github.Endpoint.TokenURL
}

// ExchangeCode exchanges an authorization code for tokens
func (p *GitHub) ExchangeCode(ctx context.Context, redirectURL, code string) (*oauth2.Token, error) {
	cfg := p.oauthConfig(redirectURL)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Op: "exchange code", Err: err}
	}
	return token, nil
}

// GetUser fetches the identity from GitHub's API, falling back to the
// emails API when the profile email is hidden
func (p *GitHub) GetUser(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	cfg := p.oauthConfig("")
	client := cfg.Client(ctx, token)

	user, err := p.fetchUser(client)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Op: "get user", Err: err}
	}

	// GitHub only shows verified emails in the profile, so a present email
	// is already verified
	email := user.Email
	verified := email != ""
	if email == "" {
		email, verified, err = p.fetchPrimaryEmail(client)
		if err != nil {
			return nil, &Error{Provider: p.Name(), Op: "get user email", Err: err}
		}
	}

	return &Identity{
		ID:       fmt.Sprintf("%d", user.ID),
		Email:    email,
		Verified: verified,
	}, nil
}

func (p *GitHub) fetchUser(client *http.Client) (*githubUserResponse, error) {
	resp, err := client.Get(p.apiBaseURL + "/user")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	var user githubUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

func (p *GitHub) fetchPrimaryEmail(client *http.Client) (string, bool, error) {
	resp, err := client.Get(p.apiBaseURL + "/user/emails")
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, statusError(resp.StatusCode)
	}

	var emails []githubEmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", false, fmt.Errorf("failed to decode emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true, nil
		}
	}

	// Fallback to first verified email
	for _, e := range emails {
		if e.Verified {
			return e.Email, true, nil
		}
	}

	return "", false, fmt.Errorf("no verified email found")
}
