package campusauth

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campusmesh/campusauth/internal/stores"
	"github.com/campusmesh/campusauth/password"
	"github.com/campusmesh/campusauth/session"
	"github.com/campusmesh/campusauth/token"
	"github.com/campusmesh/campusauth/totp"
)

// Builder assembles an Engine. Configure it with the With* methods and call
// Build once; a builder is single-use.
type Builder struct {
	config Config

	redis          *redis.Client
	sessionStore   session.Store
	challengeStore stores.ChallengeStore

	identities IdentityProvider
	auditSink  AuditSink
	logger     *zap.Logger
	metrics    *Metrics

	built bool
}

// New returns a builder preloaded with DefaultConfig. Token secrets and
// issuer names still have to be supplied via WithConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis selects Redis-backed session and MFA challenge stores. An
// explicit WithSessionStore or WithChallengeStore takes precedence.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithSessionStore supplies an explicit session store, for Postgres-backed
// deployments or in-memory tests.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

func (b *Builder) WithChallengeStore(store stores.ChallengeStore) *Builder {
	b.challengeStore = store
	return b
}

func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identities = p
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics wires Prometheus collectors. Without it the engine records
// nothing.
func (b *Builder) WithMetrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

// Build validates the configuration, wires the stores, and returns a ready
// engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.identities == nil {
		return nil, errors.New("identity provider required")
	}

	sessionStore := b.sessionStore
	if sessionStore == nil {
		if b.redis == nil {
			return nil, errors.New("session store required: pass WithRedis or WithSessionStore")
		}
		sessionStore = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.TTL)
	}

	challengeStore := b.challengeStore
	if challengeStore == nil {
		if b.redis != nil {
			challengeStore = stores.NewRedisChallengeStore(
				b.redis,
				cfg.Challenge.RedisPrefix,
				cfg.Challenge.TTL,
				cfg.Challenge.MaxAttempts,
			)
		} else {
			challengeStore = stores.NewMemoryChallengeStore(cfg.Challenge.TTL, cfg.Challenge.MaxAttempts)
		}
	}

	tokens, err := token.NewManager(cfg.tokenConfig())
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:     cfg,
		tokens:     tokens,
		sessions:   sessionStore,
		challenges: challengeStore,
		totp:       totp.NewManager(cfg.TOTP.Issuer),
		hasher:     hasher,
		identities: b.identities,
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:    b.metrics,
		logger:     logger,
	}

	b.built = true
	return engine, nil
}
