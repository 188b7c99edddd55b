package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Record is the server-persisted proof that one refresh token is still live.
// It stores a hash of the refresh token value, never the value itself; the
// hash is the canonical lookup key for rotation. Once written, RefreshHash is
// never mutated in place; revocation deletes the record.
type Record struct {
	ID          string
	IdentityID  string
	RefreshHash string
	IP          string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the record is past its own expiry. Stores treat
// expired records as absent even before garbage collection removes them.
func (r *Record) Expired(now time.Time) bool {
	return r == nil || !r.ExpiresAt.After(now)
}

// HashRefreshValue derives the storage key for a refresh token value.
func HashRefreshValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
