package provider

import (
	"context"
	"fmt"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/dgellow/forward-auth/internal/config"
	"golang.org/x/oauth2"
)

// OIDC authenticates against any OIDC-compliant identity provider,
// resolving endpoints from the issuer's discovery document.
type OIDC struct {
	cfg config.ProviderConfig

	// populated by Validate via discovery
	oidcProvider *gooidc.Provider
}

// discoveryTimeout bounds the startup discovery fetch
const discoveryTimeout = 10 * time.Second

// NewOIDC creates a generic OIDC provider from its config blob
func NewOIDC(cfg config.ProviderConfig) *OIDC {
	return &OIDC{cfg: cfg}
}

// Name returns the provider identifier
func (p *OIDC) Name() string {
	return "oidc"
}

// Validate checks required fields and performs OIDC discovery once.
// Discovery failure is a startup failure, not a per-request one.
func (p *OIDC) Validate() error {
	if p.cfg.Issuer == "" {
		return &ConfigError{Provider: p.Name(), Field: "issuer"}
	}
	if p.cfg.ClientID == "" {
		return &ConfigError{Provider: p.Name(), Field: "clientId"}
	}
	if p.cfg.ClientSecret == "" {
		return &ConfigError{Provider: p.Name(), Field: "clientSecret"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()

	oidcProvider, err := gooidc.NewProvider(ctx, p.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("oidc: discovery failed for issuer %q: %w", p.cfg.Issuer, err)
	}
	p.oidcProvider = oidcProvider
	return nil
}

func (p *OIDC) oauthConfig(redirectURL string) oauth2.Config {
	scopes := p.cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "email", "profile"}
	}
	return oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: string(p.cfg.ClientSecret),
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     p.oidcProvider.Endpoint(),
	}
}

// LoginURL builds the authorization URL from the discovered endpoint
func (p *OIDC) LoginURL(redirectURL, state string) string {
	cfg := p.oauthConfig(redirectURL)
	return cfg.AuthCodeURL(state)
}

// TokenURL returns the discovered token-exchange endpoint
func (p *OIDC) TokenURL() string {
	return p.oidcProvider.Endpoint().TokenURL
}

// ExchangeCode exchanges an authorization code for tokens
func (p *OIDC) ExchangeCode(ctx context.Context, redirectURL, code string) (*oauth2.Token, error) {
	cfg := p.oauthConfig(redirectURL)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Op: "exchange code", Err: err}
	}
	return token, nil
}

// GetUser fetches the identity from the discovered userinfo endpoint
func (p *OIDC) GetUser(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	userInfo, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, &Error{Provider: p.Name(), Op: "get user info", Err: err}
	}

	return &Identity{
		ID:       userInfo.Subject,
		Email:    userInfo.Email,
		Verified: userInfo.EmailVerified,
	}, nil
}
