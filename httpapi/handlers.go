package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campusmesh/campusauth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type mfaVerifyRequest struct {
	IdentityID string `json:"identityId"`
	Code       string `json:"code"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type principalBody struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "username and password required", Kind: "bad_request"})
		return
	}

	res, err := s.engine.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if res.MFARequired {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"mfaRequired": true,
			"identityId":  res.IdentityID,
		})
		return
	}

	s.setAuthCookies(w, res.AccessToken, res.RefreshToken)
	s.writeJSON(w, http.StatusOK, map[string]any{"user": res.Identity})
}

func (s *Server) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IdentityID == "" || req.Code == "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "identityId and code required", Kind: "bad_request"})
		return
	}

	res, err := s.engine.CompleteMFALogin(r.Context(), req.IdentityID, req.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.setAuthCookies(w, res.AccessToken, res.RefreshToken)
	s.writeJSON(w, http.StatusOK, map[string]any{"user": res.Identity})
}

// handleRefresh resolves the cookie pair, rotating the access token if it
// has expired against a live session. Terminal rejections clear both
// cookies so stale clients stop retrying.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.authenticate(w, r)
	if err != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"principal": principalFrom(res)})
}

// handleMe reports the authenticated principal, transparently rotating an
// expired access token the same way handleRefresh does.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	res, err := s.authenticate(w, r)
	if err != nil {
		return
	}

	id, err := s.engine.Identity(r.Context(), res.IdentityID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user": id.Safe()})
}

// authenticate runs the one-shot credential resolution for rotation-capable
// endpoints and writes the failure response itself when the caller should
// stop.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*campusauth.AuthResult, error) {
	access := cookieValue(r, campusauth.AccessTokenCookie)
	refresh := cookieValue(r, campusauth.RefreshTokenCookie)

	res, err := s.engine.Authenticate(r.Context(), access, refresh)
	if err != nil {
		if campusauth.ShouldPurgeCookies(err) {
			s.clearAuthCookies(w)
		}
		s.writeError(w, err)
		return nil, err
	}
	if res.Rotated {
		s.setAccessCookie(w, res.AccessToken)
	}
	return res, nil
}

// requirePrincipal gates the account-management endpoints. It verifies the
// access cookie statelessly; an expired token gets a 401 and the client is
// expected to hit /api/auth/refresh first.
func (s *Server) requirePrincipal(w http.ResponseWriter, r *http.Request) (*campusauth.AuthResult, bool) {
	res, err := s.engine.VerifyAccess(cookieValue(r, campusauth.AccessTokenCookie))
	if err != nil {
		if campusauth.ShouldPurgeCookies(err) && !errors.Is(err, campusauth.ErrTokenExpired) {
			s.clearAuthCookies(w)
		}
		s.writeError(w, err)
		return nil, false
	}
	return res, true
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	access := cookieValue(r, campusauth.AccessTokenCookie)
	refresh := cookieValue(r, campusauth.RefreshTokenCookie)

	err := s.engine.Logout(r.Context(), access, refresh)
	// Cookies are cleared no matter what; a client asking to log out must
	// not keep credentials because its access token was already dead.
	s.clearAuthCookies(w)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"loggedOut": true, "note": "session already inactive"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"loggedOut": true})
}

func (s *Server) handleTOTPSetup(w http.ResponseWriter, r *http.Request) {
	res, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	enr, err := s.engine.BeginTOTPEnrollment(r.Context(), res.IdentityID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"secret": enr.Secret,
		"uri":    enr.URI,
		"qr":     enr.PNG,
	})
}

func (s *Server) handleTOTPVerify(w http.ResponseWriter, r *http.Request) {
	res, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "code required", Kind: "bad_request"})
		return
	}

	if err := s.engine.ConfirmTOTPEnrollment(r.Context(), res.IdentityID, req.Code); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"enabled": true})
}

func (s *Server) handleTOTPDisable(w http.ResponseWriter, r *http.Request) {
	res, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := s.engine.DisableTOTP(r.Context(), res.IdentityID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	res, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	infos, err := s.engine.Sessions(r.Context(), res.IdentityID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	res, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	recordID := mux.Vars(r)["id"]
	if err := s.engine.TerminateSession(r.Context(), res.IdentityID, recordID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"revoked": recordID})
}

func principalFrom(res *campusauth.AuthResult) principalBody {
	return principalBody{
		ID:    res.IdentityID,
		Role:  string(res.Role),
		Email: res.Email,
	}
}
