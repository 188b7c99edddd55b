package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps session records in Redis. Layout:
//
//	{prefix}:rec:{id}   HASH   uid, rh, ip, ca, ea   (TTL = session lifetime)
//	{prefix}:rh:{hash}  STRING record id              (TTL = session lifetime)
//	{prefix}:uid:{uid}  SET    record ids             (members cleaned lazily)
//
// The value-keyed index makes FindByRefreshValue a single GET+HGETALL, which
// is the rotation hot path.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ca"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *RedisStore) recKey(id string) string    { return s.prefix + ":rec:" + id }
func (s *RedisStore) hashKey(h string) string    { return s.prefix + ":rh:" + h }
func (s *RedisStore) identityKey(u string) string { return s.prefix + ":uid:" + u }

func (s *RedisStore) Create(ctx context.Context, identityID, refreshValue, ip string) (*Record, error) {
	now := s.now()
	rec := &Record{
		ID:          uuid.NewString(),
		IdentityID:  identityID,
		RefreshHash: HashRefreshValue(refreshValue),
		IP:          ip,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.recKey(rec.ID), map[string]interface{}{
		"uid": rec.IdentityID,
		"rh":  rec.RefreshHash,
		"ip":  rec.IP,
		"ca":  rec.CreatedAt.Unix(),
		"ea":  rec.ExpiresAt.Unix(),
	})
	pipe.Expire(ctx, s.recKey(rec.ID), s.ttl)
	pipe.Set(ctx, s.hashKey(rec.RefreshHash), rec.ID, s.ttl)
	pipe.SAdd(ctx, s.identityKey(identityID), rec.ID)
	pipe.Expire(ctx, s.identityKey(identityID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("session: create record: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) FindByRefreshValue(ctx context.Context, refreshValue string) (*Record, error) {
	hash := HashRefreshValue(refreshValue)
	id, err := s.rdb.Get(ctx, s.hashKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: refresh index lookup: %w", err)
	}
	return s.get(ctx, id)
}

func (s *RedisStore) FindLatestForIdentity(ctx context.Context, identityID string) (*Record, error) {
	recs, err := s.ListForIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (s *RedisStore) ListForIdentity(ctx context.Context, identityID string) ([]*Record, error) {
	ids, err := s.rdb.SMembers(ctx, s.identityKey(identityID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session: identity index lookup: %w", err)
	}

	var out []*Record
	for _, id := range ids {
		rec, err := s.get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Record expired out from under its index entry.
			_ = s.rdb.SRem(ctx, s.identityKey(identityID), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	rec, err := s.get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.recKey(id))
	pipe.Del(ctx, s.hashKey(rec.RefreshHash))
	pipe.SRem(ctx, s.identityKey(rec.IdentityID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: delete record: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteAllForIdentity(ctx context.Context, identityID string) error {
	ids, err := s.rdb.SMembers(ctx, s.identityKey(identityID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: identity index lookup: %w", err)
	}
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return s.rdb.Del(ctx, s.identityKey(identityID)).Err()
}

func (s *RedisStore) get(ctx context.Context, id string) (*Record, error) {
	fields, err := s.rdb.HGetAll(ctx, s.recKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: record fetch: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	ca, err := strconv.ParseInt(fields["ca"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("session: corrupt record %s: %w", id, err)
	}
	ea, err := strconv.ParseInt(fields["ea"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("session: corrupt record %s: %w", id, err)
	}

	rec := &Record{
		ID:          id,
		IdentityID:  fields["uid"],
		RefreshHash: fields["rh"],
		IP:          fields["ip"],
		CreatedAt:   time.Unix(ca, 0),
		ExpiresAt:   time.Unix(ea, 0),
	}
	if rec.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

var _ Store = (*RedisStore)(nil)
