package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusmesh/campusauth"
	"github.com/campusmesh/campusauth/middleware"
	"github.com/campusmesh/campusauth/session"
)

type gateProvider struct {
	mu    sync.Mutex
	users map[string]*campusauth.Identity
}

func (p *gateProvider) FindByID(_ context.Context, id string) (*campusauth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, campusauth.ErrIdentityNotFound
}

func (p *gateProvider) FindByUsername(_ context.Context, username string) (*campusauth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[username]
	if !ok {
		return nil, campusauth.ErrIdentityNotFound
	}
	cp := *u
	return &cp, nil
}

func (p *gateProvider) SetMFASecret(_ context.Context, id, secret string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.users {
		if u.ID == id {
			u.MFASecret = secret
			return nil
		}
	}
	return campusauth.ErrIdentityNotFound
}

func (p *gateProvider) EnableMFA(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.users {
		if u.ID == id {
			u.MFAEnabled = true
			return nil
		}
	}
	return campusauth.ErrIdentityNotFound
}

func (p *gateProvider) ClearMFA(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.users {
		if u.ID == id {
			u.MFAEnabled = false
			u.MFASecret = ""
			return nil
		}
	}
	return campusauth.ErrIdentityNotFound
}

func gateTestConfig() campusauth.Config {
	cfg := campusauth.DefaultConfig()
	cfg.Token.AccessSecret = []byte("gate-access-secret-0123456789abcdef")
	cfg.Token.RefreshSecret = []byte("gate-refresh-secret-0123456789abcdef")
	cfg.Token.Issuer = "campusmesh-test"
	cfg.TOTP.Issuer = "CampusMesh Test"
	cfg.Audit.Enabled = false
	return cfg
}

func newGateEngine(t *testing.T) *campusauth.Engine {
	t.Helper()

	provider := &gateProvider{users: map[string]*campusauth.Identity{
		"head":  {ID: "id-head", Username: "head", Email: "head@campus.test", Role: campusauth.RoleAdministrator, PasswordHash: hashFor(t, "head-pass")},
		"pupil": {ID: "id-pupil", Username: "pupil", Email: "pupil@campus.test", Role: campusauth.RoleStudent, PasswordHash: hashFor(t, "pupil-pass")},
	}}

	engine, err := campusauth.New().
		WithConfig(gateTestConfig()).
		WithSessionStore(session.NewMemoryStore(time.Hour)).
		WithIdentityProvider(provider).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

var (
	hashOnce  sync.Once
	hashCache map[string]string
)

// hashFor runs argon2id once per password and caches the result so the test
// suite does not pay the KDF cost on every engine construction.
func hashFor(t *testing.T, plain string) string {
	t.Helper()
	hashOnce.Do(func() {
		hashCache = map[string]string{}
		cfg := gateTestConfig()
		for _, p := range []string{"head-pass", "pupil-pass"} {
			h, err := campusauth.HashPassword(cfg, p)
			if err != nil {
				panic(err)
			}
			hashCache[p] = h
		}
	})
	h, ok := hashCache[plain]
	require.True(t, ok, "no cached hash for %q", plain)
	return h
}

func loginCookie(t *testing.T, engine *campusauth.Engine, username, pass string) *http.Cookie {
	t.Helper()
	res, err := engine.Login(context.Background(), username, pass)
	require.NoError(t, err)
	require.False(t, res.MFARequired)
	return &http.Cookie{Name: campusauth.AccessTokenCookie, Value: res.AccessToken}
}

func gateHandler(engine *campusauth.Engine) http.Handler {
	var inner http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-User", r.Header.Get("X-User-Id"))
		w.WriteHeader(http.StatusOK)
	}
	return middleware.Gate(engine, middleware.DefaultGateConfig(), nil)(inner)
}

func TestGatePublicPathsPassWithoutCredentials(t *testing.T) {
	engine := newGateEngine(t)
	h := gateHandler(engine)

	for _, path := range []string{"/healthz", "/static/app.css", "/api/auth/login"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestGateUnauthenticatedBrowserRedirectsToLogin(t *testing.T) {
	engine := newGateEngine(t)
	h := gateHandler(engine)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestGateUnauthenticatedAPIGets401(t *testing.T) {
	engine := newGateEngine(t)
	h := gateHandler(engine)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/grades", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "unauthorized")
}

func TestGateValidTokenInjectsPrincipal(t *testing.T) {
	engine := newGateEngine(t)
	h := gateHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	// Spoofed identity headers must not survive the gate.
	req.Header.Set("X-User-Id", "id-forged")
	req.AddCookie(loginCookie(t, engine, "pupil", "pupil-pass"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "id-pupil", rec.Header().Get("X-Seen-User"))
}

func TestGateTamperedTokenPurgesCookies(t *testing.T) {
	engine := newGateEngine(t)
	h := gateHandler(engine)

	cookie := loginCookie(t, engine, "pupil", "pupil-pass")
	cookie.Value += "x"

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)

	purged := 0
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 && (c.Name == campusauth.AccessTokenCookie || c.Name == campusauth.RefreshTokenCookie) {
			purged++
		}
	}
	require.Equal(t, 2, purged)
}

func TestGateTamperedTokenOnLoginPagePurgesCookies(t *testing.T) {
	engine := newGateEngine(t)
	h := gateHandler(engine)

	cookie := loginCookie(t, engine, "pupil", "pupil-pass")
	cookie.Value += "x"

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(cookie)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// The login form still renders, but the broken credentials go with it.
	require.Equal(t, http.StatusOK, rec.Code)

	purged := 0
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 && (c.Name == campusauth.AccessTokenCookie || c.Name == campusauth.RefreshTokenCookie) {
			purged++
		}
	}
	require.Equal(t, 2, purged)
}

func TestGateMissingTokenLeavesCookiesAlone(t *testing.T) {
	engine := newGateEngine(t)
	h := gateHandler(engine)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	require.Empty(t, rec.Result().Cookies())
}

func TestGateAuthedUserBouncedOffLoginPage(t *testing.T) {
	engine := newGateEngine(t)
	h := gateHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(loginCookie(t, engine, "pupil", "pupil-pass"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
}

func TestGateAnonymousUserSeesLoginPage(t *testing.T) {
	engine := newGateEngine(t)
	h := gateHandler(engine)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGateAdminPrefixRedirectsUnprivileged(t *testing.T) {
	engine := newGateEngine(t)
	h := gateHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req.AddCookie(loginCookie(t, engine, "pupil", "pupil-pass"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
}

func TestGateAdminPrefixAdmitsPrivileged(t *testing.T) {
	engine := newGateEngine(t)
	h := gateHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req.AddCookie(loginCookie(t, engine, "head", "head-pass"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "id-head", rec.Header().Get("X-Seen-User"))
}
