package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/campusmesh/campusauth"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}

// writeError maps engine sentinels onto HTTP statuses. Unknown errors are
// logged and reported as a bare 500 so internals never leak to clients.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		s.writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	s.writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, campusauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, campusauth.ErrNoCredential):
		return http.StatusUnauthorized, "no_credential"
	case errors.Is(err, campusauth.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired"
	case errors.Is(err, campusauth.ErrTokenSignatureInvalid):
		return http.StatusUnauthorized, "token_invalid"
	case errors.Is(err, campusauth.ErrTokenMalformed):
		return http.StatusUnauthorized, "token_invalid"
	case errors.Is(err, campusauth.ErrSessionNotFound):
		return http.StatusUnauthorized, "session_revoked"
	case errors.Is(err, campusauth.ErrMFAChallengeExpired):
		return http.StatusUnauthorized, "mfa_challenge_expired"
	case errors.Is(err, campusauth.ErrMFAAttemptsExceeded):
		return http.StatusUnauthorized, "mfa_attempts_exceeded"
	case errors.Is(err, campusauth.ErrMFACodeInvalid):
		return http.StatusBadRequest, "mfa_code_invalid"
	case errors.Is(err, campusauth.ErrMFANotConfigured):
		return http.StatusBadRequest, "mfa_not_configured"
	case errors.Is(err, campusauth.ErrMFAAlreadyEnabled):
		return http.StatusConflict, "mfa_already_enabled"
	case errors.Is(err, campusauth.ErrIdentityNotFound):
		return http.StatusNotFound, "identity_not_found"
	case errors.Is(err, campusauth.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, ""
	}
}
