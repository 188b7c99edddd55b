package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-process Store. It exists for tests and
// single-node development setups; nothing about it survives a restart.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*Record
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, identityID, refreshValue, ip string) (*Record, error) {
	now := s.now()
	rec := &Record{
		ID:          uuid.NewString(),
		IdentityID:  identityID,
		RefreshHash: HashRefreshValue(refreshValue),
		IP:          ip,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec

	clone := *rec
	return &clone, nil
}

func (s *MemoryStore) FindByRefreshValue(_ context.Context, refreshValue string) (*Record, error) {
	hash := HashRefreshValue(refreshValue)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.RefreshHash != hash {
			continue
		}
		if rec.Expired(now) {
			delete(s.records, rec.ID)
			return nil, ErrNotFound
		}
		clone := *rec
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindLatestForIdentity(_ context.Context, identityID string) (*Record, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Record
	for _, rec := range s.records {
		if rec.IdentityID != identityID || rec.Expired(now) {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (s *MemoryStore) ListForIdentity(_ context.Context, identityID string) ([]*Record, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, rec := range s.records {
		if rec.IdentityID != identityID || rec.Expired(now) {
			continue
		}
		clone := *rec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) DeleteAllForIdentity(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if rec.IdentityID == identityID {
			delete(s.records, id)
		}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
