// Package cookie issues and clears the auth and CSRF cookies with
// consistent scoping and security attributes.
package cookie

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/forward-auth/internal/log"
)

// Domain derives the cookie scope from a request host header by stripping
// any port. This is deliberately naive: no multi-label public-suffix
// handling, which is acceptable for a single-deployment sidecar. Changing
// this would silently change cookie scoping semantics.
func Domain(host string) string {
	domain, _, _ := strings.Cut(host, ":")
	return domain
}

// Set sets an httpOnly cookie scoped to the given domain
func Set(w http.ResponseWriter, name, value, domain string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})

	log.LogTraceWithFields("cookie", "Cookie set", map[string]any{
		"name":    name,
		"domain":  domain,
		"expires": expires.UTC().Format(time.RFC3339),
		"secure":  secure,
	})
}

// Clear removes a cookie: empty value, expiry in the past
func Clear(w http.ResponseWriter, name, domain string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})

	log.LogTraceWithFields("cookie", "Cookie cleared", map[string]any{
		"name":   name,
		"domain": domain,
	})
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}
