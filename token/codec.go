package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind selects which credential a Manager operation applies to. Access and
// refresh tokens are signed with independent secrets, so a token issued for
// one kind always fails signature verification when presented as the other.
type Kind int

const (
	// KindAccess is the short-lived, stateless credential.
	KindAccess Kind = iota
	// KindRefresh is the long-lived credential whose authority additionally
	// requires a live session record.
	KindRefresh
)

// FailureKind classifies why verification rejected a token. Every downstream
// authentication decision branches on this classification.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureExpired: correctly signed but past its expiry claim.
	FailureExpired
	// FailureSignature: tampered, signed with the wrong key, or a cross-kind replay.
	FailureSignature
	// FailureMalformed: not a decodable token at all.
	FailureMalformed
	// FailureUnknown: anything verification rejected for another reason.
	FailureUnknown
)

// VerifyError is the classified failure returned by [Manager.Verify].
type VerifyError struct {
	Kind FailureKind
	Err  error
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token verification failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("token verification failed (%s)", e.Kind)
}

func (e *VerifyError) Unwrap() error { return e.Err }

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureExpired:
		return "expired"
	case FailureSignature:
		return "signature_invalid"
	case FailureMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Classify extracts the failure kind from an error returned by
// [Manager.Verify]. Non-verification errors classify as FailureUnknown.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return FailureUnknown
}

// Claims is the signed payload carried by both token kinds.
type Claims struct {
	UID   string `json:"uid"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Config holds the signing material and lifetimes for both token kinds.
// Secrets are injected explicitly so tests can run with per-case keys;
// nothing in this package reads ambient state.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Leeway widens expiry checks to absorb clock skew between issuer and
	// verifier. Accepted range is 0 to 2 minutes; NewManager rejects
	// anything outside it.
	Leeway time.Duration
	// Now supplies issue timestamps. Nil means time.Now. Tests back-date it
	// to mint tokens that are already expired.
	Now func() time.Time
}

// Manager signs and verifies access and refresh tokens. It performs pure
// cryptographic work only; it never touches a store.
type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: both access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("token: refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: leeway must be between 0 and 2 minutes")
	}
	return &Manager{config: cfg}, nil
}

// Issue signs a token of the given kind for the principal described by uid,
// role and email.
func (m *Manager) Issue(kind Kind, uid, role, email string) (string, error) {
	if m == nil {
		return "", errors.New("token: manager not initialized")
	}

	now := m.now()
	claims := Claims{
		UID:   uid,
		Role:  role,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl(kind))),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.secret(kind))
}

// Verify checks a token of the given kind and returns its claims, or a
// *VerifyError carrying the failure classification. Claims are never
// returned alongside a failure.
func (m *Manager) Verify(kind Kind, tokenStr string) (*Claims, error) {
	if m == nil {
		return nil, &VerifyError{Kind: FailureUnknown, Err: errors.New("token: manager not initialized")}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.secret(kind), nil
	})
	if err != nil {
		return nil, &VerifyError{Kind: classifyParseError(err), Err: err}
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, &VerifyError{Kind: FailureUnknown, Err: jwt.ErrTokenInvalidClaims}
	}
	return claims, nil
}

// UnverifiedClaims decodes a token's payload without checking its signature
// or expiry. It exists for one purpose: recovering the identity hint from an
// access token that already failed verification as expired (the signature was
// checked before the expiry claim rejected it). Callers must never authorize
// anything from the result alone.
func (m *Manager) UnverifiedClaims(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, &VerifyError{Kind: FailureMalformed, Err: err}
	}
	return claims, nil
}

func (m *Manager) now() time.Time {
	if m.config.Now != nil {
		return m.config.Now()
	}
	return time.Now()
}

func (m *Manager) ttl(kind Kind) time.Duration {
	if kind == KindRefresh {
		return m.config.RefreshTTL
	}
	return m.config.AccessTTL
}

func (m *Manager) secret(kind Kind) []byte {
	if kind == KindRefresh {
		return m.config.RefreshSecret
	}
	return m.config.AccessSecret
}

func classifyParseError(err error) FailureKind {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return FailureMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return FailureExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return FailureSignature
	default:
		return FailureUnknown
	}
}
