package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreCreateAndFindByRefreshValue(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	rec, err := store.Create(ctx, "u-1", "refresh-value-1", "10.0.0.1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.RefreshHash != HashRefreshValue("refresh-value-1") {
		t.Fatal("record must store the hash of the refresh value, not the value")
	}

	got, err := store.FindByRefreshValue(ctx, "refresh-value-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != rec.ID || got.IdentityID != "u-1" || got.IP != "10.0.0.1" {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := store.FindByRefreshValue(ctx, "some-other-value"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreExpiryHonoredAtRead(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	if _, err := store.Create(ctx, "u-1", "rv", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := store.FindByRefreshValue(ctx, "rv"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record must read as absent, got %v", err)
	}
	if _, err := store.FindLatestForIdentity(ctx, "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record must read as absent, got %v", err)
	}
}

func TestMemoryStoreLatestForIdentity(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }
	if _, err := store.Create(ctx, "u-1", "older", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	store.now = func() time.Time { return base.Add(time.Minute) }
	newer, err := store.Create(ctx, "u-1", "newer", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.FindLatestForIdentity(ctx, "u-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.ID != newer.ID {
		t.Fatalf("expected newest record %s, got %s", newer.ID, got.ID)
	}

	all, err := store.ListForIdentity(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != newer.ID {
		t.Fatalf("expected newest-first listing, got %+v", all)
	}
}

func TestMemoryStoreDeleteIdempotent(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	rec, err := store.Create(ctx, "u-1", "rv", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("second delete must not error: %v", err)
	}
	if _, err := store.FindByRefreshValue(ctx, "rv"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreDeleteAllForIdentity(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	for _, rv := range []string{"a", "b", "c"} {
		if _, err := store.Create(ctx, "u-1", rv, ""); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := store.Create(ctx, "u-2", "d", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.DeleteAllForIdentity(ctx, "u-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if recs, _ := store.ListForIdentity(ctx, "u-1"); len(recs) != 0 {
		t.Fatalf("expected no records for u-1, got %d", len(recs))
	}
	if recs, _ := store.ListForIdentity(ctx, "u-2"); len(recs) != 1 {
		t.Fatalf("u-2 records must survive, got %d", len(recs))
	}
}
