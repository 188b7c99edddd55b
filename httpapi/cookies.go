package httpapi

import (
	"net"
	"net/http"
	"strings"

	"github.com/campusmesh/campusauth"
)

func (s *Server) setAuthCookies(w http.ResponseWriter, access, refresh string) {
	s.setAccessCookie(w, access)
	http.SetCookie(w, &http.Cookie{
		Name:     campusauth.RefreshTokenCookie,
		Value:    refresh,
		Path:     "/",
		MaxAge:   int(s.engine.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) setAccessCookie(w http.ResponseWriter, access string) {
	http.SetCookie(w, &http.Cookie{
		Name:     campusauth.AccessTokenCookie,
		Value:    access,
		Path:     "/",
		MaxAge:   int(s.engine.AccessTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{campusauth.AccessTokenCookie, campusauth.RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// clientIP resolves the caller address, honoring the first hop recorded by a
// trusted reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
