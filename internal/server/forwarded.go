package server

import (
	"fmt"
	"net/http"
)

// Headers consumed and produced at the proxy boundary
const (
	HeaderForwardedProto = "X-Forwarded-Proto"
	HeaderForwardedHost  = "X-Forwarded-Host"
	HeaderForwardedURI   = "X-Forwarded-Uri"
	HeaderForwardedUser  = "X-Forwarded-User"
)

// redirectBase reconstructs the externally visible scheme://host from the
// forwarded headers
func redirectBase(r *http.Request) string {
	proto := r.Header.Get(HeaderForwardedProto)
	host := r.Header.Get(HeaderForwardedHost)
	return fmt.Sprintf("%s://%s", proto, host)
}

// redirectURL is the callback URL the provider sends the browser back to
func redirectURL(r *http.Request) string {
	return redirectBase(r) + "/callback"
}

// returnURL is the URL the caller originally requested, restored after a
// successful login
func returnURL(r *http.Request) string {
	return redirectBase(r) + r.Header.Get(HeaderForwardedURI)
}

// NewForwardedHeaderMiddleware defaults the X-Forwarded-* headers so
// requests that did not come through the reverse proxy still resolve to a
// usable callback URL.
func NewForwardedHeaderMiddleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(HeaderForwardedProto) == "" {
				r.Header.Set(HeaderForwardedProto, "http")
			}
			if r.Header.Get(HeaderForwardedHost) == "" {
				r.Header.Set(HeaderForwardedHost, r.Host)
			}
			if r.Header.Get(HeaderForwardedURI) == "" {
				r.Header.Set(HeaderForwardedURI, "/")
			}
			next.ServeHTTP(w, r)
		})
	}
}
