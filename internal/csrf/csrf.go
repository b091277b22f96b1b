// Package csrf correlates a login redirect with its later callback.
//
// A fresh nonce is stored both in a short-lived cookie (bound to the
// browser) and in the state parameter echoed back by the identity provider.
// Equality of the two proves the callback belongs to the session that
// started the login, defeating login-CSRF.
package csrf

import (
	"errors"
	"strings"

	"github.com/dgellow/forward-auth/internal/crypto"
)

var (
	// ErrMalformedState: state has fewer than the three nonce:provider:url fields
	ErrMalformedState = errors.New("state: malformed")
	// ErrInvalidState: state too short to contain a nonce and two separators
	ErrInvalidState = errors.New("csrf: invalid state")
	// ErrInvalidCookie: CSRF cookie value is not a 32-char nonce
	ErrInvalidCookie = errors.New("csrf: invalid cookie")
	// ErrMismatch: state was not minted for this browser's nonce
	ErrMismatch = errors.New("csrf: cookie does not match state")
)

// MinStateLength is a 32-char nonce plus two colons; the return URL itself
// may be empty.
const MinStateLength = crypto.NonceLength + 2

// Nonce mints a fresh single-use login nonce
func Nonce() (string, error) {
	return crypto.GenerateNonce()
}

// EncodeState packs nonce, provider name and return URL into the opaque
// state parameter. Provider names are a fixed internal set and contain no
// colon by construction; the return URL may contain colons freely.
func EncodeState(nonce, providerName, returnURL string) string {
	return nonce + ":" + providerName + ":" + returnURL
}

// ProviderName decodes the provider name from a state parameter
func ProviderName(state string) (string, error) {
	fields := strings.Split(state, ":")
	if len(fields) < 3 {
		return "", ErrMalformedState
	}
	return fields[1], nil
}

// ReturnURL decodes the post-login return URL from a state parameter,
// rejoining any colons the URL itself contains
func ReturnURL(state string) (string, error) {
	fields := strings.Split(state, ":")
	if len(fields) < 3 {
		return "", ErrMalformedState
	}
	return strings.Join(fields[2:], ":"), nil
}

// Validate checks the browser's CSRF cookie against the state echoed back
// by the provider. The state must begin with the cookie's nonce.
func Validate(cookieValue, state string) error {
	if len(cookieValue) != crypto.NonceLength {
		return ErrInvalidCookie
	}
	if len(state) < MinStateLength {
		return ErrInvalidState
	}
	if !strings.HasPrefix(state, cookieValue) {
		return ErrMismatch
	}
	return nil
}
