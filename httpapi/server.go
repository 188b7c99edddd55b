// Package httpapi mounts the authentication engine behind an HTTP surface:
// the /api/auth/ endpoint family plus the edge gate wrapped around
// everything else the application router serves.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/campusmesh/campusauth"
	"github.com/campusmesh/campusauth/middleware"
)

// Options tunes the HTTP surface.
type Options struct {
	// CookieSecure marks credential cookies Secure; leave it off only for
	// local plain-HTTP development.
	CookieSecure bool
	// Gate overrides the route classification of the edge gate.
	Gate *middleware.GateConfig
}

// Server wires the auth endpoints and the edge gate onto one router. App
// handlers mounted via Handle sit behind the gate.
type Server struct {
	engine  *campusauth.Engine
	logger  *zap.Logger
	router  *mux.Router
	handler http.Handler
	secure  bool
}

func NewServer(engine *campusauth.Engine, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gateCfg := middleware.DefaultGateConfig()
	if opts.Gate != nil {
		gateCfg = *opts.Gate
	}

	s := &Server{
		engine: engine,
		logger: logger,
		router: mux.NewRouter(),
		secure: opts.CookieSecure,
	}
	s.routes()
	s.handler = middleware.Gate(engine, gateCfg, logger)(s.router)
	return s
}

func (s *Server) routes() {
	auth := s.router.PathPrefix("/api/auth").Subrouter()

	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/mfa/verify", s.handleMFAVerify).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	auth.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	auth.HandleFunc("/2fa/setup", s.handleTOTPSetup).Methods(http.MethodPost)
	auth.HandleFunc("/2fa/verify", s.handleTOTPVerify).Methods(http.MethodPost)
	auth.HandleFunc("/2fa/disable", s.handleTOTPDisable).Methods(http.MethodPost)

	auth.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	auth.HandleFunc("/sessions/{id}", s.handleSessionDelete).Methods(http.MethodDelete)

	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
}

// Handle mounts an application handler behind the edge gate.
func (s *Server) Handle(path string, handler http.Handler) {
	s.router.PathPrefix(path).Handler(handler)
}

// HandleFunc mounts an application handler func behind the edge gate.
func (s *Server) HandleFunc(path string, handler func(http.ResponseWriter, *http.Request)) {
	s.router.PathPrefix(path).HandlerFunc(handler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := campusauth.WithClientIP(r.Context(), clientIP(r))
	ctx = campusauth.WithUserAgent(ctx, r.UserAgent())
	s.handler.ServeHTTP(w, r.WithContext(ctx))
}
