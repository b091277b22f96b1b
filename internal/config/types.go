package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// Duration wraps time.Duration so config files can use "10m"-style strings.
// It also satisfies encoding.TextUnmarshaler for environment overrides.
type Duration time.Duration

// UnmarshalJSON accepts a duration string such as "10m" or "30s"
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10m\": %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON renders the duration back as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ProviderConfig is the per-provider configuration blob. Which fields are
// required depends on the provider; each provider reports its first missing
// field at startup validation.
type ProviderConfig struct {
	// Base URL of the identity provider (home-assistant)
	URL string `json:"url" env:"URL"`

	// OIDC issuer URL used for discovery (oidc)
	Issuer string `json:"issuer" env:"ISSUER"`

	ClientID     string `json:"clientId" env:"CLIENT_ID"`
	ClientSecret Secret `json:"clientSecret" env:"CLIENT_SECRET"`

	// OAuth scopes to request; providers apply their own defaults when empty
	Scopes []string `json:"scopes" env:"SCOPES"`
}

// Providers holds the configuration blobs for every known provider.
// Only the active one (Config.Provider) is validated and constructed.
type Providers struct {
	HomeAssistant ProviderConfig `json:"home-assistant" envPrefix:"HOME_ASSISTANT_"`
	Google        ProviderConfig `json:"google" envPrefix:"GOOGLE_"`
	GitHub        ProviderConfig `json:"github" envPrefix:"GITHUB_"`
	OIDC          ProviderConfig `json:"oidc" envPrefix:"OIDC_"`
}

// Config is the complete service configuration
type Config struct {
	Addr string `json:"addr" env:"ADDR"`

	// HMAC key for session cookie signatures
	Secret Secret `json:"secret" env:"SECRET"`

	AuthCookieName string `json:"authCookieName" env:"AUTH_COOKIE_NAME"`
	CSRFCookieName string `json:"csrfCookieName" env:"CSRF_COOKIE_NAME"`

	// Name of the active identity provider
	Provider string `json:"provider" env:"PROVIDER"`

	// Session cookie lifetime from issuance
	Lifetime Duration `json:"lifetime" env:"LIFETIME"`

	// CSRF cookie lifetime; only needs to cover one login round trip
	CSRFLifetime Duration `json:"csrfLifetime" env:"CSRF_LIFETIME"`

	// Per-call timeout for provider code exchange and identity fetch
	ProviderTimeout Duration `json:"providerTimeout" env:"PROVIDER_TIMEOUT"`

	// Secure attribute on issued cookies. Explicit config rather than an
	// ambient dev-mode switch so production paths cannot be weakened by
	// the environment.
	CookieSecure *bool `json:"cookieSecure" env:"COOKIE_SECURE"`

	Whitelist []string `json:"userWhitelist" env:"WHITELIST"`
	Blacklist []string `json:"userBlacklist" env:"BLACKLIST"`

	Providers Providers `json:"providers" envPrefix:"PROVIDERS_"`
}

// Default values applied before the config file and environment are read.
func defaults() Config {
	secure := true
	return Config{
		Addr:            ":4181",
		AuthCookieName:  "_forward_auth",
		CSRFCookieName:  "_forward_auth_csrf",
		Lifetime:        Duration(10 * time.Minute),
		CSRFLifetime:    Duration(60 * time.Second),
		ProviderTimeout: Duration(5 * time.Second),
		CookieSecure:    &secure,
	}
}
