package campusauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/campusmesh/campusauth/password"
	"github.com/campusmesh/campusauth/token"
)

// Config carries every tunable of the engine. Build it once during startup
// and treat it as immutable afterwards.
type Config struct {
	Token     TokenConfig
	Session   SessionConfig
	TOTP      TOTPConfig
	Password  PasswordConfig
	Challenge ChallengeConfig
	Audit     AuditConfig
}

// TokenConfig shapes the credential codec. Access and refresh secrets must
// differ so a token minted for one kind can never verify as the other.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Leeway absorbs clock skew during expiry checks. Accepted range is 0
	// to 2 minutes; Validate rejects anything outside it.
	Leeway time.Duration
}

// SessionConfig shapes the server-side session record store.
type SessionConfig struct {
	// TTL bounds the lifetime of a session record. It should match the
	// refresh token TTL; a record outliving its token is unreachable and a
	// record dying first invalidates a still-signed token early.
	TTL time.Duration
	// RedisPrefix namespaces session keys when the Redis store is used.
	RedisPrefix string
}

// TOTPConfig shapes two-factor enrollment and verification.
type TOTPConfig struct {
	// Issuer is the label shown in authenticator apps.
	Issuer string
}

// ChallengeConfig bounds the window between a correct password and the
// TOTP code that completes an MFA login.
type ChallengeConfig struct {
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
}

// PasswordConfig carries argon2id parameters.
type PasswordConfig struct {
	Memory      uint32 // in KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig controls the async audit pipeline.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull trades completeness for latency: a full buffer drops the
	// event instead of blocking the request path.
	DropIfFull bool
}

// DefaultConfig returns a config with safe defaults for everything except
// the token secrets and issuer names, which have no sensible defaults and
// must be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Session: SessionConfig{
			TTL:         7 * 24 * time.Hour,
			RedisPrefix: "campusauth:sess",
		},
		Challenge: ChallengeConfig{
			TTL:         5 * time.Minute,
			MaxAttempts: 5,
			RedisPrefix: "campusauth:mfa",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

// Validate rejects configs the engine cannot run with. Codec-level checks
// (secret length, TTL ordering) are delegated to the token package.
func (c Config) Validate() error {
	if _, err := token.NewManager(c.tokenConfig()); err != nil {
		return fmt.Errorf("token config: %w", err)
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Session.TTL < c.Token.RefreshTTL {
		return errors.New("session TTL must cover the refresh token TTL")
	}
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP issuer required")
	}
	if c.Challenge.TTL <= 0 {
		return errors.New("MFA challenge TTL must be positive")
	}
	if c.Challenge.MaxAttempts <= 0 {
		return errors.New("MFA challenge attempt budget must be positive")
	}
	return nil
}

func (c Config) tokenConfig() token.Config {
	return token.Config{
		AccessSecret:  cloneBytes(c.Token.AccessSecret),
		RefreshSecret: cloneBytes(c.Token.RefreshSecret),
		AccessTTL:     c.Token.AccessTTL,
		RefreshTTL:    c.Token.RefreshTTL,
		Issuer:        c.Token.Issuer,
		Leeway:        c.Token.Leeway,
	}
}

func (c Config) passwordConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}

func cloneConfig(c Config) Config {
	out := c
	out.Token.AccessSecret = cloneBytes(c.Token.AccessSecret)
	out.Token.RefreshSecret = cloneBytes(c.Token.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
