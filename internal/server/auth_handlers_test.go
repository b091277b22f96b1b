package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dgellow/forward-auth/internal/config"
	"github.com/dgellow/forward-auth/internal/crypto"
	"github.com/dgellow/forward-auth/internal/csrf"
	"github.com/dgellow/forward-auth/internal/policy"
	"github.com/dgellow/forward-auth/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeProvider satisfies provider.Provider without any network traffic
type fakeProvider struct {
	name        string
	identity    *provider.Identity
	exchangeErr error
	userErr     error

	gotRedirectURL string
	gotCode        string
}

func (p *fakeProvider) Name() string    { return p.name }
func (p *fakeProvider) Validate() error { return nil }

func (p *fakeProvider) LoginURL(redirectURL, state string) string {
	return "https://idp.example.com/login?redirect_uri=" + url.QueryEscape(redirectURL) +
		"&state=" + url.QueryEscape(state)
}

func (p *fakeProvider) TokenURL() string {
	return "https://idp.example.com/token"
}

func (p *fakeProvider) ExchangeCode(ctx context.Context, redirectURL, code string) (*oauth2.Token, error) {
	p.gotRedirectURL = redirectURL
	p.gotCode = code
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &oauth2.Token{AccessToken: "fake-token"}, nil
}

func (p *fakeProvider) GetUser(ctx context.Context, token *oauth2.Token) (*provider.Identity, error) {
	if p.userErr != nil {
		return nil, p.userErr
	}
	return p.identity, nil
}

// fakeResolver substitutes the provider registry
type fakeResolver struct {
	providers map[string]provider.Provider
}

func (r *fakeResolver) Get(name string) (provider.Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, &provider.UnknownProviderError{Name: name}
	}
	return p, nil
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testHandlers(t *testing.T, p provider.Provider, allow, deny []string) *AuthHandlers {
	t.Helper()

	insecure := false
	cfg := config.Config{
		Secret:          "test-hmac-secret",
		Provider:        "fake",
		AuthCookieName:  "_forward_auth",
		CSRFCookieName:  "_forward_auth_csrf",
		Lifetime:        config.Duration(10 * time.Minute),
		CSRFLifetime:    config.Duration(60 * time.Second),
		ProviderTimeout: config.Duration(5 * time.Second),
		CookieSecure:    &insecure,
	}

	resolver := &fakeResolver{providers: map[string]provider.Provider{}}
	if p != nil {
		resolver.providers[p.Name()] = p
	}

	h := NewAuthHandlers(cfg, resolver, policy.New(allow, deny))
	h.now = func() time.Time { return fixedNow }
	return h
}

func checkRequest(cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "http://auth.example.com/", nil)
	r.Host = "app.example.com"
	r.Header.Set(HeaderForwardedProto, "https")
	r.Header.Set(HeaderForwardedHost, "app.example.com")
	r.Header.Set(HeaderForwardedURI, "/dashboard")
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func authCookie(t *testing.T, h *AuthHandlers, email string) *http.Cookie {
	t.Helper()
	value, _ := h.codec.Issue("app.example.com", email, fixedNow)
	return &http.Cookie{Name: "_forward_auth", Value: value}
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestCheck_NoCookieRedirectsToLogin(t *testing.T) {
	p := &fakeProvider{name: "fake"}
	h := testHandlers(t, p, nil, nil)

	rec := httptest.NewRecorder()
	h.CheckHandler(rec, checkRequest())

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	// CSRF cookie carries the freshly minted nonce
	csrfCookie := findCookie(t, rec, "_forward_auth_csrf")
	assert.Len(t, csrfCookie.Value, crypto.NonceLength)
	assert.Equal(t, "app.example.com", csrfCookie.Domain)
	assert.WithinDuration(t, fixedNow.Add(time.Minute), csrfCookie.Expires, time.Second)

	// Redirect goes to the provider with state = nonce:provider:returnURL
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", loc.Host)

	state := loc.Query().Get("state")
	assert.True(t, strings.HasPrefix(state, csrfCookie.Value+":"), "state must start with the nonce")
	assert.Equal(t, "https://app.example.com/dashboard", func() string {
		u, err := csrf.ReturnURL(state)
		require.NoError(t, err)
		return u
	}())

	assert.Equal(t, "https://app.example.com/callback", loc.Query().Get("redirect_uri"))
}

func TestCheck_ValidCookieAllowed(t *testing.T) {
	h := testHandlers(t, &fakeProvider{name: "fake"}, nil, nil)

	rec := httptest.NewRecorder()
	h.CheckHandler(rec, checkRequest(authCookie(t, h, "user@example.com")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user@example.com", rec.Header().Get(HeaderForwardedUser))
}

func TestCheck_ValidCookieDenied(t *testing.T) {
	h := testHandlers(t, &fakeProvider{name: "fake"},
		[]string{"admin@example.com"}, nil)

	rec := httptest.NewRecorder()
	h.CheckHandler(rec, checkRequest(authCookie(t, h, "user@example.com")))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderForwardedUser))
}

func TestCheck_ExpiredCookieSilentlyRestartsLogin(t *testing.T) {
	h := testHandlers(t, &fakeProvider{name: "fake"}, nil, nil)

	value, _ := h.codec.Issue("app.example.com", "user@example.com",
		fixedNow.Add(-time.Hour))

	rec := httptest.NewRecorder()
	h.CheckHandler(rec, checkRequest(&http.Cookie{Name: "_forward_auth", Value: value}))

	// Expiry is never surfaced to the caller
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
}

func TestCheck_TamperedCookieSilentlyRestartsLogin(t *testing.T) {
	h := testHandlers(t, &fakeProvider{name: "fake"}, nil, nil)

	c := authCookie(t, h, "user@example.com")
	c.Value = strings.Replace(c.Value, "user@", "admin@", 1)

	rec := httptest.NewRecorder()
	h.CheckHandler(rec, checkRequest(c))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderForwardedUser))
}

func TestCheck_ProviderResolutionFailure(t *testing.T) {
	h := testHandlers(t, nil, nil, nil) // no provider registered

	rec := httptest.NewRecorder()
	h.CheckHandler(rec, checkRequest())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func callbackRequest(state, code string, cookies ...*http.Cookie) *http.Request {
	target := "http://auth.example.com/callback?state=" + url.QueryEscape(state) +
		"&code=" + url.QueryEscape(code)
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.Host = "app.example.com"
	r.Header.Set(HeaderForwardedProto, "https")
	r.Header.Set(HeaderForwardedHost, "app.example.com")
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func testNonce(t *testing.T) string {
	t.Helper()
	nonce, err := csrf.Nonce()
	require.NoError(t, err)
	return nonce
}

func TestCallback_Success(t *testing.T) {
	p := &fakeProvider{
		name:     "fake",
		identity: &provider.Identity{ID: "1", Email: "user@example.com", Verified: true},
	}
	h := testHandlers(t, p, nil, nil)

	nonce := testNonce(t)
	state := csrf.EncodeState(nonce, "fake", "https://app.example.com/dashboard")

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, callbackRequest(state, "auth-code",
		&http.Cookie{Name: "_forward_auth_csrf", Value: nonce}))

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://app.example.com/dashboard", rec.Header().Get("Location"))

	assert.Equal(t, "auth-code", p.gotCode)
	assert.Equal(t, "https://app.example.com/callback", p.gotRedirectURL)

	// Session cookie round-trips through the codec
	auth := findCookie(t, rec, "_forward_auth")
	email, err := h.codec.Validate(auth.Value, "app.example.com", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", email)
	assert.WithinDuration(t, fixedNow.Add(10*time.Minute), auth.Expires, time.Second)

	// The nonce is single-use
	cleared := findCookie(t, rec, "_forward_auth_csrf")
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
}

func TestCallback_ReturnURLWithPortAndQuery(t *testing.T) {
	p := &fakeProvider{
		name:     "fake",
		identity: &provider.Identity{Email: "user@example.com"},
	}
	h := testHandlers(t, p, nil, nil)

	nonce := testNonce(t)
	returnTo := "https://app.example.com:8443/deep/path?a=b"
	state := csrf.EncodeState(nonce, "fake", returnTo)

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, callbackRequest(state, "auth-code",
		&http.Cookie{Name: "_forward_auth_csrf", Value: nonce}))

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, returnTo, rec.Header().Get("Location"))
}

func TestCallback_MissingCSRFCookieRestartsFlow(t *testing.T) {
	h := testHandlers(t, &fakeProvider{name: "fake"}, nil, nil)

	state := csrf.EncodeState(testNonce(t), "fake", "https://app.example.com/")

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, callbackRequest(state, "auth-code"))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestCallback_CSRFMismatch(t *testing.T) {
	h := testHandlers(t, &fakeProvider{name: "fake"}, nil, nil)

	state := csrf.EncodeState(testNonce(t), "fake", "https://app.example.com/")

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, callbackRequest(state, "auth-code",
		&http.Cookie{Name: "_forward_auth_csrf", Value: testNonce(t)}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallback_MalformedCSRFCookie(t *testing.T) {
	h := testHandlers(t, &fakeProvider{name: "fake"}, nil, nil)

	state := csrf.EncodeState(testNonce(t), "fake", "https://app.example.com/")

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, callbackRequest(state, "auth-code",
		&http.Cookie{Name: "_forward_auth_csrf", Value: "short"}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallback_UnknownProviderInState(t *testing.T) {
	h := testHandlers(t, &fakeProvider{name: "fake"}, nil, nil)

	nonce := testNonce(t)
	state := csrf.EncodeState(nonce, "not-registered", "https://app.example.com/")

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, callbackRequest(state, "auth-code",
		&http.Cookie{Name: "_forward_auth_csrf", Value: nonce}))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCallback_ExchangeFailure(t *testing.T) {
	p := &fakeProvider{
		name:        "fake",
		exchangeErr: &provider.Error{Provider: "fake", Op: "exchange code", Err: errors.New("upstream down")},
	}
	h := testHandlers(t, p, nil, nil)

	nonce := testNonce(t)
	state := csrf.EncodeState(nonce, "fake", "https://app.example.com/")

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, callbackRequest(state, "auth-code",
		&http.Cookie{Name: "_forward_auth_csrf", Value: nonce}))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCallback_IdentityLookupFailure(t *testing.T) {
	p := &fakeProvider{
		name:    "fake",
		userErr: &provider.Error{Provider: "fake", Op: "get user", Err: errors.New("upstream down")},
	}
	h := testHandlers(t, p, nil, nil)

	nonce := testNonce(t)
	state := csrf.EncodeState(nonce, "fake", "https://app.example.com/")

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, callbackRequest(state, "auth-code",
		&http.Cookie{Name: "_forward_auth_csrf", Value: nonce}))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCallback_EmptyReturnURLDefaultsToRoot(t *testing.T) {
	p := &fakeProvider{
		name:     "fake",
		identity: &provider.Identity{Email: "user@example.com"},
	}
	h := testHandlers(t, p, nil, nil)

	nonce := testNonce(t)
	state := csrf.EncodeState(nonce, "fake", "")

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, callbackRequest(state, "auth-code",
		&http.Cookie{Name: "_forward_auth_csrf", Value: nonce}))

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}
