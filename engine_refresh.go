package campusauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/campusmesh/campusauth/internal/flows"
	"github.com/campusmesh/campusauth/session"
	"github.com/campusmesh/campusauth/token"
)

// Authenticate resolves the caller's credentials for one request. It is the
// only place refresh rotation happens.
//
//   - A live access token authenticates statelessly; no store is touched.
//   - An expired access token triggers exactly one rotation attempt against
//     the refresh token and the session record store.
//   - A tampered or malformed access token is rejected outright; the refresh
//     credential is never consulted for it.
//
// On success Rotated tells the caller whether a replacement access token in
// AccessToken must be delivered to the client. Failures surface as sentinel
// errors; ShouldPurgeCookies reports whether the client's credential cookies
// should be cleared for a given failure.
func (e *Engine) Authenticate(ctx context.Context, accessToken, refreshToken string) (*AuthResult, error) {
	res := flows.RunRotation(ctx, accessToken, refreshToken, flows.RotationDeps{
		VerifyAccess: func(raw string) (*token.Claims, error) {
			return e.tokens.Verify(token.KindAccess, raw)
		},
		VerifyRefresh: func(raw string) (*token.Claims, error) {
			return e.tokens.Verify(token.KindRefresh, raw)
		},
		UnverifiedAccess: e.tokens.UnverifiedClaims,
		IssueAccess: func(uid, role, email string) (string, error) {
			return e.tokens.Issue(token.KindAccess, uid, role, email)
		},

		FindByRefreshValue:    e.sessions.FindByRefreshValue,
		FindLatestForIdentity: e.sessions.FindLatestForIdentity,
		DeleteSession:         e.sessions.Delete,
		DeleteAllForIdentity:  e.sessions.DeleteAllForIdentity,
		SessionNotFound:       session.ErrNotFound,

		Now: time.Now,
	})

	switch res.Outcome {
	case flows.OutcomeAuthenticated:
		e.metrics.rotation("fast_path")
		return authResultFromClaims(res.Claims, "", false), nil

	case flows.OutcomeRotated:
		e.metrics.rotation("rotated")
		e.emit(ctx, EventTokenRotated, res.Claims.UID, sessionID(res.Session), true, nil, nil)
		return authResultFromClaims(res.Claims, res.AccessToken, true), nil

	case flows.OutcomeUnauthenticated:
		e.metrics.rotation("no_credential")
		return nil, ErrNoCredential

	default:
		err := e.rejectionError(res)
		e.metrics.rotation(rotationOutcomeLabel(res.Failure))
		e.emit(ctx, EventTokenRejected, rejectedIdentity(res), sessionID(res.Session), false, err, map[string]string{
			"reason": rotationOutcomeLabel(res.Failure),
		})
		if res.Err != nil {
			e.logger.Debug("credential rejected", zap.Error(res.Err))
		}
		return nil, err
	}
}

// VerifyAccess checks a raw access token without any rotation or store
// access. The edge gate uses it on every protected request.
func (e *Engine) VerifyAccess(accessToken string) (*AuthResult, error) {
	if accessToken == "" {
		return nil, ErrNoCredential
	}
	claims, err := e.tokens.Verify(token.KindAccess, accessToken)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return authResultFromClaims(claims, "", false), nil
}

func (e *Engine) rejectionError(res flows.RotationResult) error {
	switch res.Failure {
	case flows.RotationFailureAccessTampered:
		return classifyTokenError(res.Err)
	case flows.RotationFailureNoRefresh:
		return ErrTokenExpired
	case flows.RotationFailureRefreshInvalid:
		return classifyTokenError(res.Err)
	case flows.RotationFailureSessionNotFound:
		return ErrSessionNotFound
	default:
		if res.Err != nil {
			return res.Err
		}
		return ErrTokenExpired
	}
}

// classifyTokenError maps codec failure classes onto the package sentinels.
func classifyTokenError(err error) error {
	switch token.Classify(err) {
	case token.FailureExpired:
		return ErrTokenExpired
	case token.FailureSignature:
		return ErrTokenSignatureInvalid
	case token.FailureMalformed:
		return ErrTokenMalformed
	default:
		return ErrTokenMalformed
	}
}

// ShouldPurgeCookies reports whether a failure from Authenticate or
// VerifyAccess warrants clearing the client's credential cookies. Absent
// credentials leave nothing to purge; every other rejection means the
// cookies the client holds can never authenticate again.
func ShouldPurgeCookies(err error) bool {
	return err != nil && !errors.Is(err, ErrNoCredential)
}

func rotationOutcomeLabel(kind flows.RotationFailureKind) string {
	switch kind {
	case flows.RotationFailureAccessTampered:
		return "access_tampered"
	case flows.RotationFailureNoRefresh:
		return "no_refresh"
	case flows.RotationFailureRefreshInvalid:
		return "refresh_invalid"
	case flows.RotationFailureSessionNotFound:
		return "session_not_found"
	case flows.RotationFailureIssueAccess:
		return "issue_failed"
	default:
		return "rejected"
	}
}

func rejectedIdentity(res flows.RotationResult) string {
	if res.Claims != nil {
		return res.Claims.UID
	}
	if res.Session != nil {
		return res.Session.IdentityID
	}
	return ""
}

func authResultFromClaims(claims *token.Claims, newAccess string, rotated bool) *AuthResult {
	return &AuthResult{
		IdentityID:  claims.UID,
		Role:        Role(claims.Role),
		Email:       claims.Email,
		AccessToken: newAccess,
		Rotated:     rotated,
	}
}
