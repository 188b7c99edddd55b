package flows

import (
	"context"
	"errors"
	"time"

	"github.com/campusmesh/campusauth/session"
	"github.com/campusmesh/campusauth/token"
)

// RotationOutcome is the terminal state of one pass through the rotation
// procedure. A request is passed through, recovered via exactly one rotation,
// or rejected; the procedure never loops.
type RotationOutcome int

const (
	// OutcomeUnauthenticated: no access token was presented; no refresh is
	// attempted because there is no identity hint to act on.
	OutcomeUnauthenticated RotationOutcome = iota
	// OutcomeAuthenticated: the access token verified; stateless fast path,
	// zero store I/O.
	OutcomeAuthenticated
	// OutcomeRotated: the access token was expired, the refresh credential
	// and its session record checked out, and a new access token was minted.
	OutcomeRotated
	// OutcomeRejected: terminal failure; both credential cookies must be
	// purged before responding.
	OutcomeRejected
)

// RotationFailureKind records why a pass rejected, for auditing and metrics.
type RotationFailureKind int

const (
	RotationFailureNone RotationFailureKind = iota
	RotationFailureNoAccessToken
	// RotationFailureAccessTampered covers signature-invalid, malformed and
	// unclassifiable access tokens. A corrupted access token must never
	// trigger trust escalation via refresh, so the refresh credential is not
	// consulted at all.
	RotationFailureAccessTampered
	RotationFailureNoRefresh
	RotationFailureRefreshInvalid
	RotationFailureSessionNotFound
	RotationFailureIssueAccess
)

// RotationResult carries the outcome plus whatever the next layer needs: the
// resolved claims on success, the minted access token on rotation, and the
// cookie-purge signal on rejection.
type RotationResult struct {
	Outcome      RotationOutcome
	Failure      RotationFailureKind
	Err          error
	Claims       *token.Claims
	Session      *session.Record
	AccessToken  string
	PurgeCookies bool
}

// RotationDeps captures rotation dependencies. VerifyAccess and VerifyRefresh
// must return codec-classified errors; store lookups must report missing
// records via SessionNotFound.
type RotationDeps struct {
	VerifyAccess     func(string) (*token.Claims, error)
	VerifyRefresh    func(string) (*token.Claims, error)
	UnverifiedAccess func(string) (*token.Claims, error)
	IssueAccess      func(uid, role, email string) (string, error)

	FindByRefreshValue    func(context.Context, string) (*session.Record, error)
	FindLatestForIdentity func(context.Context, string) (*session.Record, error)
	DeleteSession         func(context.Context, string) error
	DeleteAllForIdentity  func(context.Context, string) error
	SessionNotFound       error

	Now func() time.Time
}

// RunRotation executes the refresh-rotation decision procedure for one
// request. accessToken and refreshToken are the raw cookie values, either of
// which may be empty. The steps are strictly sequential and the procedure is
// one-shot: at most one rotation attempt, no recursion.
func RunRotation(ctx context.Context, accessToken, refreshToken string, deps RotationDeps) RotationResult {
	if accessToken == "" {
		return RotationResult{
			Outcome: OutcomeUnauthenticated,
			Failure: RotationFailureNoAccessToken,
		}
	}

	claims, err := deps.VerifyAccess(accessToken)
	if err == nil {
		// Stateless fast path: signature and expiry hold, no store access.
		return RotationResult{
			Outcome: OutcomeAuthenticated,
			Claims:  claims,
		}
	}

	if token.Classify(err) != token.FailureExpired {
		// Signature-invalid, malformed, or unclassifiable. Terminal: the
		// refresh credential is never consulted.
		return RotationResult{
			Outcome:      OutcomeRejected,
			Failure:      RotationFailureAccessTampered,
			Err:          err,
			PurgeCookies: true,
		}
	}

	if refreshToken != "" {
		return rotateByRefreshValue(ctx, refreshToken, deps)
	}
	return rotateByIdentityFallback(ctx, accessToken, deps)
}

// rotateByRefreshValue is the canonical path: the session record is resolved
// by the refresh token's own value.
func rotateByRefreshValue(ctx context.Context, refreshToken string, deps RotationDeps) RotationResult {
	rec, lookupErr := deps.FindByRefreshValue(ctx, refreshToken)
	if lookupErr != nil && !errors.Is(lookupErr, deps.SessionNotFound) {
		return RotationResult{
			Outcome:      OutcomeRejected,
			Failure:      RotationFailureSessionNotFound,
			Err:          lookupErr,
			PurgeCookies: true,
		}
	}

	refreshClaims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		// Dead or forged refresh credential: fail closed, removing whatever
		// record it pointed at so it cannot be presented again.
		if rec != nil {
			_ = deps.DeleteSession(ctx, rec.ID)
		}
		return RotationResult{
			Outcome:      OutcomeRejected,
			Failure:      RotationFailureRefreshInvalid,
			Err:          err,
			Session:      rec,
			PurgeCookies: true,
		}
	}

	if rec == nil {
		// Cryptographically valid refresh token with no live record: revoked
		// by logout or supersession. Clear out any orphaned rows for the
		// identity while rejecting.
		if deps.DeleteAllForIdentity != nil && refreshClaims.UID != "" {
			_ = deps.DeleteAllForIdentity(ctx, refreshClaims.UID)
		}
		return RotationResult{
			Outcome:      OutcomeRejected,
			Failure:      RotationFailureSessionNotFound,
			Err:          lookupErr,
			PurgeCookies: true,
		}
	}

	if rec.Expired(deps.Now()) || rec.IdentityID != refreshClaims.UID {
		_ = deps.DeleteSession(ctx, rec.ID)
		return RotationResult{
			Outcome:      OutcomeRejected,
			Failure:      RotationFailureSessionNotFound,
			Session:      rec,
			PurgeCookies: true,
		}
	}

	return mint(refreshClaims, rec, deps)
}

// rotateByIdentityFallback handles the no-refresh-cookie case: the expired
// access token's payload (signature already checked before the expiry claim
// rejected it) supplies the identity id, and the identity's most recent live
// session stands in for the missing cookie.
func rotateByIdentityFallback(ctx context.Context, accessToken string, deps RotationDeps) RotationResult {
	hint, err := deps.UnverifiedAccess(accessToken)
	if err != nil || hint.UID == "" {
		return RotationResult{
			Outcome:      OutcomeRejected,
			Failure:      RotationFailureNoRefresh,
			Err:          err,
			PurgeCookies: true,
		}
	}

	rec, err := deps.FindLatestForIdentity(ctx, hint.UID)
	if err != nil {
		return RotationResult{
			Outcome:      OutcomeRejected,
			Failure:      RotationFailureNoRefresh,
			Err:          err,
			PurgeCookies: true,
		}
	}
	if rec.Expired(deps.Now()) {
		_ = deps.DeleteSession(ctx, rec.ID)
		return RotationResult{
			Outcome:      OutcomeRejected,
			Failure:      RotationFailureSessionNotFound,
			Session:      rec,
			PurgeCookies: true,
		}
	}

	return mint(hint, rec, deps)
}

// mint issues a fresh access token and leaves the refresh credential and its
// record untouched: sessions are reused across rotations until natural
// expiry, which keeps concurrent same-browser rotations race-free.
func mint(claims *token.Claims, rec *session.Record, deps RotationDeps) RotationResult {
	access, err := deps.IssueAccess(claims.UID, claims.Role, claims.Email)
	if err != nil {
		return RotationResult{
			Outcome:      OutcomeRejected,
			Failure:      RotationFailureIssueAccess,
			Err:          err,
			Session:      rec,
			PurgeCookies: true,
		}
	}
	return RotationResult{
		Outcome:     OutcomeRotated,
		Claims:      claims,
		Session:     rec,
		AccessToken: access,
	}
}
