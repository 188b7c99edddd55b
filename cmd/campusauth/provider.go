package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusmesh/campusauth"
)

// identitySchema creates the identity table the service owns. Session
// records have their own schema in the session package.
const identitySchema = `
CREATE TABLE IF NOT EXISTS identities (
	id            UUID PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL,
	role          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	mfa_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
	mfa_secret    TEXT NOT NULL DEFAULT ''
);
`

// pgIdentityProvider backs campusauth.IdentityProvider with Postgres.
type pgIdentityProvider struct {
	db *pgxpool.Pool
}

func newPGIdentityProvider(db *pgxpool.Pool) *pgIdentityProvider {
	return &pgIdentityProvider{db: db}
}

const identityColumns = `id, username, email, role, password_hash, mfa_enabled, mfa_secret`

func (p *pgIdentityProvider) FindByID(ctx context.Context, id string) (*campusauth.Identity, error) {
	row := p.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentity(row)
}

func (p *pgIdentityProvider) FindByUsername(ctx context.Context, username string) (*campusauth.Identity, error) {
	row := p.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE username = $1`, username)
	return scanIdentity(row)
}

func (p *pgIdentityProvider) SetMFASecret(ctx context.Context, id, secret string) error {
	return p.exec(ctx, `UPDATE identities SET mfa_secret = $2 WHERE id = $1`, id, secret)
}

func (p *pgIdentityProvider) EnableMFA(ctx context.Context, id string) error {
	return p.exec(ctx, `UPDATE identities SET mfa_enabled = TRUE WHERE id = $1`, id)
}

func (p *pgIdentityProvider) ClearMFA(ctx context.Context, id string) error {
	return p.exec(ctx, `UPDATE identities SET mfa_enabled = FALSE, mfa_secret = '' WHERE id = $1`, id)
}

func (p *pgIdentityProvider) exec(ctx context.Context, query string, args ...any) error {
	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return campusauth.ErrIdentityNotFound
	}
	return nil
}

func scanIdentity(row pgx.Row) (*campusauth.Identity, error) {
	var id campusauth.Identity
	err := row.Scan(&id.ID, &id.Username, &id.Email, &id.Role, &id.PasswordHash, &id.MFAEnabled, &id.MFASecret)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, campusauth.ErrIdentityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// seedAdmin inserts the bootstrap administrator when the table has no
// privileged account yet. It is a no-op on every later start.
func seedAdmin(ctx context.Context, db *pgxpool.Pool, cfg *appConfig, engineCfg campusauth.Config) error {
	if cfg.Seed.AdminUsername == "" || cfg.Seed.AdminPassword == "" {
		return nil
	}

	var count int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM identities WHERE role = $1`, string(campusauth.RoleAdministrator)).Scan(&count); err != nil {
		return fmt.Errorf("count administrators: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := campusauth.HashPassword(engineCfg, cfg.Seed.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	_, err = db.Exec(ctx,
		`INSERT INTO identities (id, username, email, role, password_hash) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), cfg.Seed.AdminUsername, cfg.Seed.AdminEmail, string(campusauth.RoleAdministrator), hash,
	)
	if err != nil {
		return fmt.Errorf("insert seed administrator: %w", err)
	}
	return nil
}
