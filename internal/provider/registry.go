package provider

import (
	"sync"

	"github.com/dgellow/forward-auth/internal/config"
	"github.com/dgellow/forward-auth/internal/log"
)

// Registry lazily constructs and memoizes one provider instance per name.
// It is constructor-injected into the decision engine rather than living
// in package globals. Construction is idempotent, so the map is safe under
// the mutex for concurrent request-time lookups; validation runs once at
// construction, not per request.
type Registry struct {
	cfg config.Config

	mu        sync.Mutex
	providers map[string]Provider
}

// NewRegistry creates a registry over the loaded configuration
func NewRegistry(cfg config.Config) *Registry {
	return &Registry{
		cfg:       cfg,
		providers: make(map[string]Provider),
	}
}

// Get returns the memoized provider for name, constructing and validating
// it on first use. Unknown names fail with *UnknownProviderError; missing
// configuration fields fail with *ConfigError.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[name]; ok {
		return p, nil
	}

	p, err := r.build(name)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	log.LogInfoWithFields("provider", "Provider initialized", map[string]any{
		"provider": p.Name(),
		"tokenUrl": p.TokenURL(),
	})

	r.providers[name] = p
	return p, nil
}

// Preload constructs and validates the named provider so misconfiguration
// fails fast at startup instead of on the first login.
func (r *Registry) Preload(name string) error {
	_, err := r.Get(name)
	return err
}

func (r *Registry) build(name string) (Provider, error) {
	pc, ok := r.cfg.ProviderConfigFor(name)
	if !ok {
		return nil, &UnknownProviderError{Name: name}
	}

	switch name {
	case "home-assistant":
		return NewHomeAssistant(pc), nil
	case "google":
		return NewGoogle(pc), nil
	case "github":
		return NewGitHub(pc), nil
	case "oidc":
		return NewOIDC(pc), nil
	default:
		return nil, &UnknownProviderError{Name: name}
	}
}
