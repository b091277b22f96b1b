// Package session signs and verifies the long-lived auth cookie.
//
// The wire format is mac|expiryMillis|email where
// mac = hex(HMAC-SHA256(secret, domain + email + expiryMillis)).
// The design is stateless: there is no server-side session store and no
// revocation list, sessions die by expiry alone.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgellow/forward-auth/internal/crypto"
)

// Validation failures. All three are recoverable: callers silently restart
// the login flow instead of surfacing them to the user.
var (
	ErrInvalidFormat    = errors.New("auth cookie: invalid format")
	ErrInvalidSignature = errors.New("auth cookie: invalid signature")
	ErrExpired          = errors.New("auth cookie: expired")
)

// Codec mints and validates auth cookie values
type Codec struct {
	secret   []byte
	lifetime time.Duration
}

// NewCodec creates a codec signing with secret, issuing cookies that live
// for lifetime from issuance
func NewCodec(secret []byte, lifetime time.Duration) Codec {
	return Codec{
		secret:   secret,
		lifetime: lifetime,
	}
}

// Issue mints a cookie value asserting email for the given cookie domain.
// The returned expiry is also used as the cookie's Expires attribute.
func (c Codec) Issue(domain, email string, now time.Time) (string, time.Time) {
	expires := now.Add(c.lifetime)
	expiryMillis := expires.UnixMilli()
	mac := c.Signature(domain, email, expiryMillis)
	return fmt.Sprintf("%s|%d|%s", mac, expiryMillis, email), expires
}

// Signature computes the cookie MAC. Deterministic and pure; used both to
// mint and to verify.
func (c Codec) Signature(domain, email string, expiryMillis int64) string {
	data := domain + email + strconv.FormatInt(expiryMillis, 10)
	return crypto.SignData(data, c.secret)
}

// Validate checks a cookie value against the request's cookie domain and
// returns the embedded email. The MAC comparison is constant time.
func (c Codec) Validate(value, domain string, now time.Time) (string, error) {
	parts := strings.Split(value, "|")
	if len(parts) != 3 {
		return "", ErrInvalidFormat
	}
	mac, expiryStr, email := parts[0], parts[1], parts[2]

	expiryMillis, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", ErrInvalidFormat
	}

	if !crypto.ValidateSignedData(domain+email+expiryStr, mac, c.secret) {
		return "", ErrInvalidSignature
	}

	if now.UnixMilli() > expiryMillis {
		return "", ErrExpired
	}

	return email, nil
}

// Email extracts the email field without verifying anything. Callers must
// not trust the result before a successful Validate.
func Email(value string) string {
	parts := strings.Split(value, "|")
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}
