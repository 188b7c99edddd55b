package campusauth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campusmesh/campusauth/internal/flows"
	"github.com/campusmesh/campusauth/internal/stores"
	"github.com/campusmesh/campusauth/password"
	"github.com/campusmesh/campusauth/session"
	"github.com/campusmesh/campusauth/token"
	"github.com/campusmesh/campusauth/totp"
)

// Engine is the authentication core. It owns the token codec, the session
// record store, the MFA machinery, and the audit pipeline; identity records
// themselves live behind the injected IdentityProvider. All methods are safe
// for concurrent use.
type Engine struct {
	config     Config
	tokens     *token.Manager
	sessions   session.Store
	challenges stores.ChallengeStore
	totp       *totp.Manager
	hasher     password.Hasher
	identities IdentityProvider
	audit      *auditDispatcher
	metrics    *Metrics
	logger     *zap.Logger
}

// Close flushes the audit pipeline. Call it during shutdown.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Metrics exposes the engine's collectors so the middleware can record gate
// decisions on the same instance. May be nil.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

func (e *Engine) emit(ctx context.Context, eventType, identityID, sessionID string, success bool, err error, meta map[string]string) {
	if e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:  time.Now(),
		EventType:  eventType,
		IdentityID: identityID,
		SessionID:  sessionID,
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   meta,
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		event.Metadata["user_agent"] = ua
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.audit.Emit(ctx, event)
}

// Identity fetches the identity record behind a verified principal.
func (e *Engine) Identity(ctx context.Context, identityID string) (*Identity, error) {
	return e.identities.FindByID(ctx, identityID)
}

// AccessTTL reports the configured access token lifetime. HTTP layers use
// it to bound cookie ages.
func (e *Engine) AccessTTL() time.Duration {
	return e.config.Token.AccessTTL
}

// RefreshTTL reports the configured refresh token lifetime.
func (e *Engine) RefreshTTL() time.Duration {
	return e.config.Token.RefreshTTL
}

// HashPassword encodes a plaintext password with the argon2id parameters of
// cfg. Applications use it when provisioning identities so stored hashes
// verify under the same engine config.
func HashPassword(cfg Config, plain string) (string, error) {
	hasher, err := password.NewArgon2(cfg.passwordConfig())
	if err != nil {
		return "", err
	}
	return hasher.Hash(plain)
}

// issuePair mints the access and refresh token for a principal.
func (e *Engine) issuePair(uid, role, email string) (access, refresh string, err error) {
	access, err = e.tokens.Issue(token.KindAccess, uid, role, email)
	if err != nil {
		return "", "", err
	}
	refresh, err = e.tokens.Issue(token.KindRefresh, uid, role, email)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// findFlowIdentity adapts the provider lookup to the flow-local record shape.
func (e *Engine) findFlowIdentity(ctx context.Context, lookup func(context.Context) (*Identity, error)) (*flows.IdentityRecord, error) {
	id, err := lookup(ctx)
	if err != nil {
		return nil, err
	}
	return &flows.IdentityRecord{
		ID:           id.ID,
		Username:     id.Username,
		Email:        id.Email,
		Role:         string(id.Role),
		PasswordHash: id.PasswordHash,
		MFAEnabled:   id.MFAEnabled,
		MFASecret:    id.MFASecret,
	}, nil
}

func safeFromFlow(id *flows.IdentityRecord) SafeIdentity {
	return SafeIdentity{
		ID:         id.ID,
		Username:   id.Username,
		Email:      id.Email,
		Role:       Role(id.Role),
		MFAEnabled: id.MFAEnabled,
	}
}
