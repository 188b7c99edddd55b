package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/campusmesh/campusauth"
	"github.com/campusmesh/campusauth/httpapi"
	"github.com/campusmesh/campusauth/session"
	"github.com/campusmesh/campusauth/token"
)

type apiProvider struct {
	mu    sync.Mutex
	users map[string]*campusauth.Identity
}

func (p *apiProvider) FindByID(_ context.Context, id string) (*campusauth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return nil, campusauth.ErrIdentityNotFound
	}
	cp := *u
	return &cp, nil
}

func (p *apiProvider) FindByUsername(_ context.Context, username string) (*campusauth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, campusauth.ErrIdentityNotFound
}

func (p *apiProvider) SetMFASecret(_ context.Context, id, secret string) error {
	return p.update(id, func(u *campusauth.Identity) { u.MFASecret = secret })
}

func (p *apiProvider) EnableMFA(_ context.Context, id string) error {
	return p.update(id, func(u *campusauth.Identity) { u.MFAEnabled = true })
}

func (p *apiProvider) ClearMFA(_ context.Context, id string) error {
	return p.update(id, func(u *campusauth.Identity) {
		u.MFAEnabled = false
		u.MFASecret = ""
	})
}

func (p *apiProvider) update(id string, fn func(*campusauth.Identity)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return campusauth.ErrIdentityNotFound
	}
	fn(u)
	return nil
}

func apiConfig() campusauth.Config {
	cfg := campusauth.DefaultConfig()
	cfg.Token.AccessSecret = []byte("api-access-secret-0123456789abcdef")
	cfg.Token.RefreshSecret = []byte("api-refresh-secret-0123456789abcdef")
	cfg.Token.Issuer = "campusmesh-test"
	cfg.TOTP.Issuer = "CampusMesh Test"
	cfg.Audit.Enabled = false
	return cfg
}

var (
	apiHashOnce sync.Once
	apiHash     string
)

func apiPasswordHash() string {
	apiHashOnce.Do(func() {
		h, err := campusauth.HashPassword(apiConfig(), "orchard-gate")
		if err != nil {
			panic(err)
		}
		apiHash = h
	})
	return apiHash
}

func newAPIServer(t *testing.T, cfg campusauth.Config) *httpapi.Server {
	t.Helper()

	provider := &apiProvider{users: map[string]*campusauth.Identity{
		"id-omar": {
			ID:           "id-omar",
			Username:     "omar",
			Email:        "omar@campus.test",
			Role:         campusauth.RoleStaff,
			PasswordHash: apiPasswordHash(),
		},
	}}

	engine, err := campusauth.New().
		WithConfig(cfg).
		WithSessionStore(session.NewMemoryStore(cfg.Session.TTL)).
		WithIdentityProvider(provider).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv := httpapi.NewServer(engine, nil, httpapi.Options{})
	srv.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		res := campusauth.AuthResultFromContext(r.Context())
		fmt.Fprintf(w, "hello %s", res.IdentityID)
	})
	return srv
}

// client drives the server the way a cookie-keeping browser would.
type client struct {
	t       *testing.T
	srv     *httpapi.Server
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, srv *httpapi.Server) *client {
	return &client{t: t, srv: srv, cookies: map[string]*http.Cookie{}}
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	rec := httptest.NewRecorder()
	c.srv.ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *client) login(username, password string) *httptest.ResponseRecorder {
	return c.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestLoginSetsCookiesAndMeWorks(t *testing.T) {
	srv := newAPIServer(t, apiConfig())
	c := newClient(t, srv)

	rec := c.login("omar", "orchard-gate")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, c.cookies[campusauth.AccessTokenCookie])
	require.NotNil(t, c.cookies[campusauth.RefreshTokenCookie])

	rec = c.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	user := body["user"].(map[string]any)
	require.Equal(t, "omar", user["username"])
	require.Equal(t, "staff", user["role"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := newAPIServer(t, apiConfig())
	c := newClient(t, srv)

	rec := c.login("omar", "wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_credentials", decode(t, rec)["kind"])
	require.Empty(t, c.cookies)
}

func TestGateProtectsAppRoutes(t *testing.T) {
	srv := newAPIServer(t, apiConfig())
	c := newClient(t, srv)

	rec := c.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	c.login("omar", "orchard-gate")
	rec = c.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello id-omar", rec.Body.String())
}

// staleAccessToken signs an access token for id-omar from an issue clock a
// day in the past, so it is expired without any test sleeping. Sleeping
// across a sub-second TTL is nondeterministic because JWT timestamps
// truncate to whole seconds.
func staleAccessToken(t *testing.T, cfg campusauth.Config) string {
	t.Helper()
	backdated, err := token.NewManager(token.Config{
		AccessSecret:  cfg.Token.AccessSecret,
		RefreshSecret: cfg.Token.RefreshSecret,
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		Issuer:        cfg.Token.Issuer,
		Now:           func() time.Time { return time.Now().Add(-24 * time.Hour) },
	})
	require.NoError(t, err)
	tok, err := backdated.Issue(token.KindAccess, "id-omar", string(campusauth.RoleStaff), "omar@campus.test")
	require.NoError(t, err)
	return tok
}

func TestRefreshEndpointRotatesExpiredAccess(t *testing.T) {
	cfg := apiConfig()
	srv := newAPIServer(t, cfg)
	c := newClient(t, srv)

	c.login("omar", "orchard-gate")
	stale := staleAccessToken(t, cfg)
	c.cookies[campusauth.AccessTokenCookie].Value = stale

	// The gate never rotates at the edge. It bounces the request but must
	// leave the refresh cookie alone so the client can recover.
	rec := c.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.NotNil(t, c.cookies[campusauth.RefreshTokenCookie])

	rec = c.do(http.MethodPost, "/api/auth/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEqual(t, stale, c.cookies[campusauth.AccessTokenCookie].Value)

	principal := decode(t, rec)["principal"].(map[string]any)
	require.Equal(t, "id-omar", principal["id"])

	// The fresh access cookie opens the protected route again.
	rec = c.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshWithTamperedAccessPurgesCookies(t *testing.T) {
	srv := newAPIServer(t, apiConfig())
	c := newClient(t, srv)

	c.login("omar", "orchard-gate")
	c.cookies[campusauth.AccessTokenCookie].Value += "x"

	rec := c.do(http.MethodPost, "/api/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_invalid", decode(t, rec)["kind"])
	require.Empty(t, c.cookies)
}

func TestLogoutClearsCookiesAndRevokesSession(t *testing.T) {
	srv := newAPIServer(t, apiConfig())
	c := newClient(t, srv)

	c.login("omar", "orchard-gate")
	refresh := c.cookies[campusauth.RefreshTokenCookie]

	rec := c.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, c.cookies)

	// The revoked session must not resurrect through the refresh endpoint.
	c.cookies[campusauth.RefreshTokenCookie] = refresh
	rec = c.do(http.MethodPost, "/api/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionEndpoints(t *testing.T) {
	srv := newAPIServer(t, apiConfig())
	first := newClient(t, srv)
	second := newClient(t, srv)

	first.login("omar", "orchard-gate")
	second.login("omar", "orchard-gate")

	rec := first.do(http.MethodGet, "/api/auth/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decode(t, rec)["sessions"].([]any)
	require.Len(t, sessions, 2)

	victim := sessions[0].(map[string]any)["id"].(string)
	rec = first.do(http.MethodDelete, "/api/auth/sessions/"+victim, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = first.do(http.MethodGet, "/api/auth/sessions", nil)
	require.Len(t, decode(t, rec)["sessions"].([]any), 1)

	rec = first.do(http.MethodDelete, "/api/auth/sessions/no-such-record", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTwoFactorEndpointLifecycle(t *testing.T) {
	srv := newAPIServer(t, apiConfig())
	c := newClient(t, srv)

	c.login("omar", "orchard-gate")

	rec := c.do(http.MethodPost, "/api/auth/2fa/setup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	secret := decode(t, rec)["secret"].(string)
	require.NotEmpty(t, secret)

	rec = c.do(http.MethodPost, "/api/auth/2fa/verify", map[string]string{"code": "000000"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	rec = c.do(http.MethodPost, "/api/auth/2fa/verify", map[string]string{"code": code})
	require.Equal(t, http.StatusOK, rec.Code)

	// With MFA on, a fresh login defers tokens until the step-up.
	fresh := newClient(t, srv)
	rec = fresh.login("omar", "orchard-gate")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, true, body["mfaRequired"])
	require.Empty(t, fresh.cookies)

	code, err = totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	rec = fresh.do(http.MethodPost, "/api/auth/mfa/verify", map[string]string{
		"identityId": body["identityId"].(string),
		"code":       code,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, fresh.cookies[campusauth.AccessTokenCookie])

	rec = fresh.do(http.MethodPost, "/api/auth/2fa/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
