package flows

import (
	"context"
	"errors"

	"github.com/campusmesh/campusauth/session"
	"github.com/campusmesh/campusauth/token"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	VerifyAccess         func(string) (*token.Claims, error)
	FindByRefreshValue   func(context.Context, string) (*session.Record, error)
	DeleteSession        func(context.Context, string) error
	DeleteAllForIdentity func(context.Context, string) error
	SessionNotFound      error
}

// LogoutResult reports which identity was logged out, when resolvable.
type LogoutResult struct {
	IdentityID string
	Err        error
}

// RunLogout revokes the session behind the presented refresh cookie. Without
// a refresh cookie it falls back to revoking every session of the identity
// named by the access token, which is the safer interpretation of "log me
// out" when the specific device session cannot be pinpointed.
func RunLogout(ctx context.Context, accessToken, refreshToken string, deps LogoutDeps) LogoutResult {
	claims, err := deps.VerifyAccess(accessToken)
	if err != nil {
		return LogoutResult{Err: err}
	}

	if refreshToken != "" {
		rec, err := deps.FindByRefreshValue(ctx, refreshToken)
		if err == nil {
			return LogoutResult{IdentityID: claims.UID, Err: deps.DeleteSession(ctx, rec.ID)}
		}
		if !errors.Is(err, deps.SessionNotFound) {
			return LogoutResult{IdentityID: claims.UID, Err: err}
		}
		// Already revoked; logging out twice is fine.
		return LogoutResult{IdentityID: claims.UID}
	}

	return LogoutResult{IdentityID: claims.UID, Err: deps.DeleteAllForIdentity(ctx, claims.UID)}
}
