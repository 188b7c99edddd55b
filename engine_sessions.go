package campusauth

import (
	"context"
	"fmt"

	"github.com/campusmesh/campusauth/internal/flows"
	"github.com/campusmesh/campusauth/session"
	"github.com/campusmesh/campusauth/token"
)

// Sessions lists the identity's live session records. Refresh hashes never
// leave the store layer.
func (e *Engine) Sessions(ctx context.Context, identityID string) ([]SessionInfo, error) {
	records, err := e.sessions.ListForIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, SessionInfo{
			ID:        rec.ID,
			IP:        rec.IP,
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
		})
	}
	return out, nil
}

// TerminateSession revokes one session record owned by identityID. Revoking
// a record that belongs to someone else is reported as ErrForbidden without
// leaking whether the record exists.
func (e *Engine) TerminateSession(ctx context.Context, identityID, recordID string) error {
	records, err := e.sessions.ListForIdentity(ctx, identityID)
	if err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}

	for _, rec := range records {
		if rec.ID == recordID {
			if err := e.sessions.Delete(ctx, recordID); err != nil {
				return fmt.Errorf("terminate session: %w", err)
			}
			e.metrics.sessionRevoked()
			e.emit(ctx, EventSessionRevoked, identityID, recordID, true, nil, nil)
			return nil
		}
	}
	return ErrForbidden
}

// Logout revokes the session behind the presented refresh cookie. A missing
// or already-revoked record is still a successful logout. Without a refresh
// cookie every session of the identity is revoked instead, since the
// specific device session cannot be pinpointed.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	res := flows.RunLogout(ctx, accessToken, refreshToken, flows.LogoutDeps{
		VerifyAccess: func(raw string) (*token.Claims, error) {
			return e.tokens.Verify(token.KindAccess, raw)
		},
		FindByRefreshValue:   e.sessions.FindByRefreshValue,
		DeleteSession:        e.sessions.Delete,
		DeleteAllForIdentity: e.sessions.DeleteAllForIdentity,
		SessionNotFound:      session.ErrNotFound,
	})

	if res.IdentityID == "" {
		// The access token did not verify. The client is effectively logged
		// out already; the caller clears cookies regardless.
		return classifyTokenError(res.Err)
	}
	if res.Err != nil {
		return fmt.Errorf("logout: %w", res.Err)
	}

	e.metrics.sessionRevoked()
	e.emit(ctx, EventLogout, res.IdentityID, "", true, nil, nil)
	return nil
}

// LogoutAll revokes every session record of the identity.
func (e *Engine) LogoutAll(ctx context.Context, identityID string) error {
	if err := e.sessions.DeleteAllForIdentity(ctx, identityID); err != nil {
		return fmt.Errorf("logout all: %w", err)
	}
	e.metrics.sessionRevoked()
	e.emit(ctx, EventLogoutAll, identityID, "", true, nil, nil)
	return nil
}
