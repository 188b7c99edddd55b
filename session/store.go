package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups when no live record matches. Expired
// records report ErrNotFound as well.
var ErrNotFound = errors.New("session record not found")

// Store is the single source of truth for refresh-token liveness. A refresh
// token that verifies cryptographically but has no live record here must be
// rejected by callers.
//
// Delete is idempotent: deleting an already-deleted record is not an error.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create persists a new record for identityID keyed by the hash of
	// refreshValue. ip is the client address at creation time.
	Create(ctx context.Context, identityID, refreshValue, ip string) (*Record, error)

	// FindByRefreshValue resolves the unique live record the given refresh
	// token value authorizes.
	FindByRefreshValue(ctx context.Context, refreshValue string) (*Record, error)

	// FindLatestForIdentity returns the most recently created live record for
	// an identity. Fallback lookup only; value-keyed lookup is canonical.
	FindLatestForIdentity(ctx context.Context, identityID string) (*Record, error)

	// ListForIdentity returns all live records for an identity, newest first.
	ListForIdentity(ctx context.Context, identityID string) ([]*Record, error)

	Delete(ctx context.Context, id string) error
	DeleteAllForIdentity(ctx context.Context, identityID string) error
}
