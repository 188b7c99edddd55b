// Package stores holds internal persistence helpers that back the flows but
// are not part of the public surface. Currently: the pending MFA login
// challenge registered between a successful first factor and the TOTP
// step-up.
package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrChallengeNotFound: no pending challenge, or it already expired.
	ErrChallengeNotFound = errors.New("mfa challenge not found")
	// ErrChallengeAttemptsExceeded: the attempt budget ran out; the
	// challenge is consumed and the user must log in again.
	ErrChallengeAttemptsExceeded = errors.New("mfa challenge attempts exceeded")
)

// ChallengeStore tracks pending step-up challenges keyed by identity id.
// Begin overwrites any prior pending challenge for the same identity.
type ChallengeStore interface {
	Begin(ctx context.Context, identityID string) error
	// Check confirms a live challenge exists with budget remaining.
	Check(ctx context.Context, identityID string) error
	// Fail charges one failed attempt; exceeding the budget consumes the
	// challenge and returns ErrChallengeAttemptsExceeded.
	Fail(ctx context.Context, identityID string) error
	Clear(ctx context.Context, identityID string) error
}

// RedisChallengeStore keeps challenges in Redis so step-up survives process
// restarts and works across replicas.
type RedisChallengeStore struct {
	rdb         redis.UniversalClient
	prefix      string
	ttl         time.Duration
	maxAttempts int
}

func NewRedisChallengeStore(rdb redis.UniversalClient, prefix string, ttl time.Duration, maxAttempts int) *RedisChallengeStore {
	if prefix == "" {
		prefix = "ca"
	}
	return &RedisChallengeStore{rdb: rdb, prefix: prefix, ttl: ttl, maxAttempts: maxAttempts}
}

func (s *RedisChallengeStore) key(identityID string) string {
	return s.prefix + ":mfa:" + identityID
}

func (s *RedisChallengeStore) Begin(ctx context.Context, identityID string) error {
	if err := s.rdb.Set(ctx, s.key(identityID), "0", s.ttl).Err(); err != nil {
		return fmt.Errorf("mfa challenge: begin: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) Check(ctx context.Context, identityID string) error {
	val, err := s.rdb.Get(ctx, s.key(identityID)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrChallengeNotFound
	}
	if err != nil {
		return fmt.Errorf("mfa challenge: check: %w", err)
	}
	attempts, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("mfa challenge: corrupt attempt counter: %w", err)
	}
	if attempts >= s.maxAttempts {
		_ = s.rdb.Del(ctx, s.key(identityID)).Err()
		return ErrChallengeAttemptsExceeded
	}
	return nil
}

func (s *RedisChallengeStore) Fail(ctx context.Context, identityID string) error {
	key := s.key(identityID)

	// INCR resurrects a key that expired between Check and Fail, and the
	// resurrected key has no TTL. EXPIRE NX caps such a stray counter to
	// the challenge window while leaving a live challenge's deadline alone.
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mfa challenge: fail: %w", err)
	}

	if incr.Val() >= int64(s.maxAttempts) {
		_ = s.rdb.Del(ctx, key).Err()
		return ErrChallengeAttemptsExceeded
	}
	return nil
}

func (s *RedisChallengeStore) Clear(ctx context.Context, identityID string) error {
	if err := s.rdb.Del(ctx, s.key(identityID)).Err(); err != nil {
		return fmt.Errorf("mfa challenge: clear: %w", err)
	}
	return nil
}

var _ ChallengeStore = (*RedisChallengeStore)(nil)

type memoryChallenge struct {
	attempts  int
	expiresAt time.Time
}

// MemoryChallengeStore is the in-process fallback for tests and single-node
// setups without Redis.
type MemoryChallengeStore struct {
	mu          sync.Mutex
	ttl         time.Duration
	maxAttempts int
	pending     map[string]*memoryChallenge
	now         func() time.Time
}

func NewMemoryChallengeStore(ttl time.Duration, maxAttempts int) *MemoryChallengeStore {
	return &MemoryChallengeStore{
		ttl:         ttl,
		maxAttempts: maxAttempts,
		pending:     make(map[string]*memoryChallenge),
		now:         time.Now,
	}
}

func (s *MemoryChallengeStore) Begin(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[identityID] = &memoryChallenge{expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryChallengeStore) Check(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.pending[identityID]
	if !ok || s.now().After(ch.expiresAt) {
		delete(s.pending, identityID)
		return ErrChallengeNotFound
	}
	if ch.attempts >= s.maxAttempts {
		delete(s.pending, identityID)
		return ErrChallengeAttemptsExceeded
	}
	return nil
}

func (s *MemoryChallengeStore) Fail(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.pending[identityID]
	if !ok || s.now().After(ch.expiresAt) {
		delete(s.pending, identityID)
		return ErrChallengeNotFound
	}
	ch.attempts++
	if ch.attempts >= s.maxAttempts {
		delete(s.pending, identityID)
		return ErrChallengeAttemptsExceeded
	}
	return nil
}

func (s *MemoryChallengeStore) Clear(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, identityID)
	return nil
}

var _ ChallengeStore = (*MemoryChallengeStore)(nil)
