package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/campusmesh/campusauth"
	"github.com/campusmesh/campusauth/permission"
)

// GateConfig describes how request paths are classified.
type GateConfig struct {
	// PublicPrefixes pass through untouched, no credential check at all.
	PublicPrefixes []string
	// AuthEntryPaths are pages like the login form that an already
	// authenticated user is bounced away from.
	AuthEntryPaths []string
	// AdminPrefix guards the privileged area. Non-privileged principals are
	// redirected to LandingPath, never shown an error page.
	AdminPrefix string
	// LoginPath receives unauthenticated browser requests.
	LoginPath string
	// LandingPath receives authenticated users leaving auth entry pages or
	// bouncing off the admin area.
	LandingPath string
	// APIPrefix marks paths that get JSON status codes instead of redirects.
	APIPrefix string
}

// DefaultGateConfig matches the default route layout of cmd/campusauth.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		PublicPrefixes: []string{"/static/", "/healthz", "/metrics", "/api/auth/"},
		AuthEntryPaths: []string{"/login", "/register"},
		AdminPrefix:    "/admin",
		LoginPath:      "/login",
		LandingPath:    "/",
		APIPrefix:      "/api/",
	}
}

// Gate returns the edge middleware. Every request is classified and either
// forwarded with the verified principal in its context, redirected, or
// rejected. Verification is stateless; an expired access token is treated
// exactly like a missing one and the client is expected to hit the refresh
// endpoint. Invalid cookies are cleared on the way out so a broken client
// cannot loop.
func Gate(engine *campusauth.Engine, cfg GateConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := engine.Metrics()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path

			if hasAnyPrefix(path, cfg.PublicPrefixes) {
				metrics.GateDecision("public")
				next.ServeHTTP(w, r)
				return
			}

			res, err := engine.VerifyAccess(accessCookie(r))

			if isAuthEntry(path, cfg.AuthEntryPaths) {
				if err == nil {
					// Already signed in; the login form is not for them.
					metrics.GateDecision("entry_redirect")
					http.Redirect(w, r, cfg.LandingPath, http.StatusSeeOther)
					return
				}
				if terminalReject(err) {
					purgeCookies(w)
				}
				metrics.GateDecision("entry")
				next.ServeHTTP(w, r)
				return
			}

			if err != nil {
				// An expired access token is the routine case and the refresh
				// cookie may still revive it at the refresh endpoint; only
				// credentials that can never verify again are purged.
				if terminalReject(err) {
					purgeCookies(w)
				}
				metrics.GateDecision("denied")
				logger.Debug("gate denied request",
					zap.String("path", path),
					zap.Error(err),
				)
				if strings.HasPrefix(path, cfg.APIPrefix) {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
					return
				}
				http.Redirect(w, r, cfg.LoginPath, http.StatusSeeOther)
				return
			}

			if cfg.AdminPrefix != "" && strings.HasPrefix(path, cfg.AdminPrefix) &&
				!permission.IsPrivileged(string(res.Role)) {
				metrics.GateDecision("admin_bounce")
				http.Redirect(w, r, cfg.LandingPath, http.StatusSeeOther)
				return
			}

			metrics.GateDecision("allowed")

			// Downstream handlers and reverse-proxied services read the
			// principal from these headers; strip any client-supplied values
			// first.
			r.Header.Set("X-User-Id", res.IdentityID)
			r.Header.Set("X-User-Role", string(res.Role))
			r.Header.Set("X-User-Email", res.Email)

			ctx := campusauth.WithAuthResult(r.Context(), res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// terminalReject reports whether a verification failure means the cookies
// can never verify again. Expiry is excluded: the refresh endpoint may still
// revive an expired access token.
func terminalReject(err error) bool {
	return campusauth.ShouldPurgeCookies(err) && !errors.Is(err, campusauth.ErrTokenExpired)
}

func accessCookie(r *http.Request) string {
	c, err := r.Cookie(campusauth.AccessTokenCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func purgeCookies(w http.ResponseWriter) {
	for _, name := range []string{campusauth.AccessTokenCookie, campusauth.RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func isAuthEntry(path string, entries []string) bool {
	for _, e := range entries {
		if path == e {
			return true
		}
	}
	return false
}
