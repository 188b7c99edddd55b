package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the table PostgresStore operates on. Deployments apply it through
// their migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS auth_sessions (
    id           UUID PRIMARY KEY,
    identity_id  TEXT        NOT NULL,
    refresh_hash TEXT        NOT NULL UNIQUE,
    ip           TEXT        NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS auth_sessions_identity_idx ON auth_sessions (identity_id, created_at DESC);
`

// PostgresStore persists session records in the auth_sessions table. Expired
// rows are treated as absent on every read; a periodic external sweep may
// remove them, but correctness does not depend on it.
type PostgresStore struct {
	db  *pgxpool.Pool
	ttl time.Duration
	now func() time.Time
}

func NewPostgresStore(db *pgxpool.Pool, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl, now: time.Now}
}

const sessionColumns = "id, identity_id, refresh_hash, ip, created_at, expires_at"

func (s *PostgresStore) Create(ctx context.Context, identityID, refreshValue, ip string) (*Record, error) {
	now := s.now()
	rec := &Record{
		ID:          uuid.NewString(),
		IdentityID:  identityID,
		RefreshHash: HashRefreshValue(refreshValue),
		IP:          ip,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	query := `
		INSERT INTO auth_sessions (id, identity_id, refresh_hash, ip, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.Exec(ctx, query,
		rec.ID, rec.IdentityID, rec.RefreshHash, rec.IP, rec.CreatedAt, rec.ExpiresAt,
	); err != nil {
		return nil, fmt.Errorf("session: create record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindByRefreshValue(ctx context.Context, refreshValue string) (*Record, error) {
	query := `SELECT ` + sessionColumns + ` FROM auth_sessions WHERE refresh_hash = $1 AND expires_at > $2`
	return s.scanOne(s.db.QueryRow(ctx, query, HashRefreshValue(refreshValue), s.now()))
}

func (s *PostgresStore) FindLatestForIdentity(ctx context.Context, identityID string) (*Record, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM auth_sessions
		WHERE identity_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1`
	return s.scanOne(s.db.QueryRow(ctx, query, identityID, s.now()))
}

func (s *PostgresStore) ListForIdentity(ctx context.Context, identityID string) ([]*Record, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM auth_sessions
		WHERE identity_id = $1 AND expires_at > $2
		ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, identityID, s.now())
	if err != nil {
		return nil, fmt.Errorf("session: list records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.ID, &rec.IdentityID, &rec.RefreshHash, &rec.IP, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
			return nil, fmt.Errorf("session: scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterate records: %w", err)
	}
	return out, nil
}

// Delete removes a record by id. Deleting a missing record is not an error.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("session: delete record: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAllForIdentity(ctx context.Context, identityID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM auth_sessions WHERE identity_id = $1`, identityID); err != nil {
		return fmt.Errorf("session: delete identity records: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanOne(row pgx.Row) (*Record, error) {
	rec := &Record{}
	err := row.Scan(&rec.ID, &rec.IdentityID, &rec.RefreshHash, &rec.IP, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: scan record: %w", err)
	}
	return rec, nil
}

var _ Store = (*PostgresStore)(nil)
