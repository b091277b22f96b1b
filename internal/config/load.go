package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/dgellow/forward-auth/internal/emailutil"
)

// EnvPrefix is prepended to every environment override, e.g. FORWARD_AUTH_SECRET.
const EnvPrefix = "FORWARD_AUTH_"

// Load builds the configuration in three layers: built-in defaults, the
// optional JSON config file, then FORWARD_AUTH_* environment overrides.
// Policy lists are normalized on load and immutable afterwards.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config JSON: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	for i, e := range cfg.Whitelist {
		cfg.Whitelist[i] = emailutil.Normalize(e)
	}
	for i, e := range cfg.Blacklist {
		cfg.Blacklist[i] = emailutil.Normalize(e)
	}

	if err := Validate(&cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the resolved configuration. Provider-specific fields are
// validated separately by the active provider at startup.
func Validate(cfg *Config) error {
	if cfg.Secret == "" {
		return fmt.Errorf("secret is required")
	}
	if cfg.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if cfg.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if cfg.AuthCookieName == "" || cfg.CSRFCookieName == "" {
		return fmt.Errorf("cookie names must not be empty")
	}
	if cfg.AuthCookieName == cfg.CSRFCookieName {
		return fmt.Errorf("authCookieName and csrfCookieName must differ")
	}
	if cfg.Lifetime.Std() <= 0 {
		return fmt.Errorf("lifetime must be positive")
	}
	if cfg.CSRFLifetime.Std() <= 0 {
		return fmt.Errorf("csrfLifetime must be positive")
	}
	if cfg.ProviderTimeout.Std() <= 0 {
		return fmt.Errorf("providerTimeout must be positive")
	}
	return nil
}

// Secure reports whether issued cookies carry the Secure attribute
func (c *Config) Secure() bool {
	return c.CookieSecure == nil || *c.CookieSecure
}

// ProviderConfigFor returns the configuration blob for a provider name.
// The second return is false for names this build does not know about.
func (c *Config) ProviderConfigFor(name string) (ProviderConfig, bool) {
	switch name {
	case "home-assistant":
		return c.Providers.HomeAssistant, true
	case "google":
		return c.Providers.Google, true
	case "github":
		return c.Providers.GitHub, true
	case "oidc":
		return c.Providers.OIDC, true
	default:
		return ProviderConfig{}, false
	}
}
