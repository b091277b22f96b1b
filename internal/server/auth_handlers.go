package server

import (
	"context"
	"net/http"
	"time"

	"github.com/dgellow/forward-auth/internal/config"
	"github.com/dgellow/forward-auth/internal/cookie"
	"github.com/dgellow/forward-auth/internal/csrf"
	"github.com/dgellow/forward-auth/internal/emailutil"
	jsonwriter "github.com/dgellow/forward-auth/internal/json"
	"github.com/dgellow/forward-auth/internal/log"
	"github.com/dgellow/forward-auth/internal/policy"
	"github.com/dgellow/forward-auth/internal/provider"
	"github.com/dgellow/forward-auth/internal/session"
)

// ProviderResolver resolves a provider name to a validated instance.
// Implemented by *provider.Registry; tests substitute fakes.
type ProviderResolver interface {
	Get(name string) (provider.Provider, error)
}

// AuthHandlers implements the two request flows: the edge check the
// reverse proxy consults on every request, and the provider callback that
// completes a login. Handlers are stateless across requests; the only
// shared state is the provider registry's memoization.
type AuthHandlers struct {
	cfg      config.Config
	codec    session.Codec
	registry ProviderResolver
	policy   *policy.Evaluator

	// injected clock for tests
	now func() time.Time
}

// NewAuthHandlers creates auth handlers with dependency injection
func NewAuthHandlers(cfg config.Config, registry ProviderResolver, evaluator *policy.Evaluator) *AuthHandlers {
	return &AuthHandlers{
		cfg:      cfg,
		codec:    session.NewCodec([]byte(cfg.Secret), cfg.Lifetime.Std()),
		registry: registry,
		policy:   evaluator,
		now:      time.Now,
	}
}

// CheckHandler handles the edge check (GET /). A valid session cookie
// yields an allow/deny decision; anything else silently restarts the login
// flow with a redirect to the provider.
func (h *AuthHandlers) CheckHandler(w http.ResponseWriter, r *http.Request) {
	domain := cookie.Domain(r.Host)
	now := h.now()

	if value, err := cookie.Get(r, h.cfg.AuthCookieName); err == nil {
		email, verr := h.codec.Validate(value, domain, now)
		if verr == nil {
			h.decide(w, email)
			return
		}

		// Session cookie problems are never surfaced to the caller;
		// re-authentication is silent
		log.LogDebugWithFields("auth", "Auth cookie rejected, restarting login", map[string]any{
			"reason": verr.Error(),
		})
	}

	h.redirectToLogin(w, r, domain)
}

// decide gates a validated email through the allow/deny policy
func (h *AuthHandlers) decide(w http.ResponseWriter, email string) {
	if !h.policy.Decide(email) {
		log.LogWarnWithFields("auth", "Access denied by policy", map[string]any{
			"domain": emailutil.ExtractDomain(email),
		})
		jsonwriter.WriteForbidden(w, "Access denied")
		return
	}

	w.Header().Set(HeaderForwardedUser, email)
	w.WriteHeader(http.StatusOK)
}

// redirectToLogin mints a nonce, issues the CSRF cookie and sends the
// browser to the provider's authorization endpoint
func (h *AuthHandlers) redirectToLogin(w http.ResponseWriter, r *http.Request, domain string) {
	p, err := h.registry.Get(h.cfg.Provider)
	if err != nil {
		log.LogError("Failed to resolve provider %q: %v", h.cfg.Provider, err)
		jsonwriter.WriteInternalServerError(w, "Provider unavailable")
		return
	}

	nonce, err := csrf.Nonce()
	if err != nil {
		log.LogError("Failed to generate nonce: %v", err)
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}

	cookie.Set(w, h.cfg.CSRFCookieName, nonce, domain,
		h.now().Add(h.cfg.CSRFLifetime.Std()), h.cfg.Secure())

	state := csrf.EncodeState(nonce, p.Name(), returnURL(r))
	loginURL := p.LoginURL(redirectURL(r), state)

	log.LogDebugWithFields("auth", "Redirecting to provider login", map[string]any{
		"provider": p.Name(),
	})
	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// CallbackHandler handles the provider callback (GET /callback?code=&state=)
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	domain := cookie.Domain(r.Host)

	csrfValue, err := cookie.Get(r, h.cfg.CSRFCookieName)
	if err != nil {
		// Soft fail: a missing CSRF cookie (expired, cleared, direct hit)
		// restarts the flow rather than erroring at the user
		log.LogWarn("Missing CSRF cookie on callback, restarting flow")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	state := r.URL.Query().Get("state")
	if err := csrf.Validate(csrfValue, state); err != nil {
		log.LogWarnWithFields("auth", "CSRF validation failed", map[string]any{
			"reason": err.Error(),
		})
		jsonwriter.WriteUnauthorized(w, "CSRF validation failed")
		return
	}

	// The nonce is single-use: clear the cookie before anything else
	cookie.Clear(w, h.cfg.CSRFCookieName, domain, h.cfg.Secure())

	providerName, err := csrf.ProviderName(state)
	if err != nil {
		jsonwriter.WriteUnauthorized(w, "Malformed state")
		return
	}
	returnTo, err := csrf.ReturnURL(state)
	if err != nil {
		jsonwriter.WriteUnauthorized(w, "Malformed state")
		return
	}
	if returnTo == "" {
		returnTo = "/"
	}

	p, err := h.registry.Get(providerName)
	if err != nil {
		log.LogError("Failed to resolve provider %q from state: %v", providerName, err)
		jsonwriter.WriteServiceUnavailable(w, "Provider unavailable")
		return
	}

	timeout := h.cfg.ProviderTimeout.Std()
	code := r.URL.Query().Get("code")

	exchangeCtx, cancelExchange := context.WithTimeout(r.Context(), timeout)
	defer cancelExchange()
	token, err := p.ExchangeCode(exchangeCtx, redirectURL(r), code)
	if err != nil {
		log.LogErrorWithFields("auth", "Code exchange failed", map[string]any{
			"provider": p.Name(),
			"error":    err.Error(),
		})
		jsonwriter.WriteServiceUnavailable(w, "Code exchange failed")
		return
	}

	userCtx, cancelUser := context.WithTimeout(r.Context(), timeout)
	defer cancelUser()
	user, err := p.GetUser(userCtx, token)
	if err != nil {
		log.LogErrorWithFields("auth", "Identity lookup failed", map[string]any{
			"provider": p.Name(),
			"error":    err.Error(),
		})
		jsonwriter.WriteServiceUnavailable(w, "Identity lookup failed")
		return
	}

	value, expires := h.codec.Issue(domain, user.Email, h.now())
	cookie.Set(w, h.cfg.AuthCookieName, value, domain, expires, h.cfg.Secure())

	log.LogInfoWithFields("auth", "Login completed", map[string]any{
		"provider": p.Name(),
		"domain":   emailutil.ExtractDomain(user.Email),
	})
	http.Redirect(w, r, returnTo, http.StatusTemporaryRedirect)
}
