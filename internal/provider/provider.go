// Package provider abstracts the identity providers a deployment can
// delegate login to. Exactly one provider is active per deployment; the
// registry constructs it lazily and memoizes it for the process lifetime.
package provider

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// Identity is what a provider knows about the user after the code
// exchange. Only Email is consumed downstream.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

// Provider abstracts identity provider operations.
type Provider interface {
	// Name returns the stable lowercase identifier used in the state
	// parameter and as the registry key. Never contains a colon.
	Name() string

	// Validate checks the provider's configuration and reports the first
	// missing required field. Called once at startup, not per request.
	Validate() error

	// LoginURL builds the provider's authorization endpoint URL with
	// client_id, redirect_uri and state query parameters.
	LoginURL(redirectURL, state string) string

	// TokenURL returns the token-exchange endpoint.
	TokenURL() string

	// ExchangeCode redeems an authorization code for tokens. Any failure,
	// including a timeout, surfaces as *Error.
	ExchangeCode(ctx context.Context, redirectURL, code string) (*oauth2.Token, error)

	// GetUser fetches the authenticated identity. Any failure surfaces
	// as *Error.
	GetUser(ctx context.Context, token *oauth2.Token) (*Identity, error)
}

// ConfigError is fatal at startup: a required provider field is missing
type ConfigError struct {
	Provider string
	Field    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %s requires a %q option", e.Provider, e.Field)
}

// UnknownProviderError is fatal at startup: the configured provider name
// is not one this build knows about
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Name)
}

// Error is the provider failure class: network errors, non-success
// responses and timeouts during code exchange or identity lookup. It maps
// to a 503 at the edge and is never retried automatically.
type Error struct {
	Provider string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func statusError(code int) error {
	return fmt.Errorf("unexpected status %d", code)
}
