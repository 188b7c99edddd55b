package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisChallengeTest(t *testing.T) (*RedisChallengeStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisChallengeStore(rdb, "ca", 5*time.Minute, 3), mr
}

func testChallengeLifecycle(t *testing.T, store ChallengeStore) {
	t.Helper()
	ctx := context.Background()

	if err := store.Check(ctx, "u-1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound before Begin, got %v", err)
	}

	if err := store.Begin(ctx, "u-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := store.Check(ctx, "u-1"); err != nil {
		t.Fatalf("check after begin: %v", err)
	}

	// Two failures stay within the budget of three.
	for i := 0; i < 2; i++ {
		if err := store.Fail(ctx, "u-1"); err != nil {
			t.Fatalf("fail %d: %v", i, err)
		}
	}
	if err := store.Check(ctx, "u-1"); err != nil {
		t.Fatalf("check after two failures: %v", err)
	}

	// Third failure exhausts the challenge.
	if err := store.Fail(ctx, "u-1"); !errors.Is(err, ErrChallengeAttemptsExceeded) {
		t.Fatalf("expected ErrChallengeAttemptsExceeded, got %v", err)
	}
	if err := store.Check(ctx, "u-1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("exhausted challenge must be consumed, got %v", err)
	}
}

func TestRedisChallengeLifecycle(t *testing.T) {
	store, _ := newRedisChallengeTest(t)
	testChallengeLifecycle(t, store)
}

func TestMemoryChallengeLifecycle(t *testing.T) {
	testChallengeLifecycle(t, NewMemoryChallengeStore(5*time.Minute, 3))
}

func TestRedisChallengeExpires(t *testing.T) {
	store, mr := newRedisChallengeTest(t)
	ctx := context.Background()

	if err := store.Begin(ctx, "u-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	mr.FastForward(6 * time.Minute)
	if err := store.Check(ctx, "u-1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRedisChallengeFailAfterExpiryLeavesNoStrayCounter(t *testing.T) {
	store, mr := newRedisChallengeTest(t)
	ctx := context.Background()

	if err := store.Begin(ctx, "u-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	mr.FastForward(6 * time.Minute)

	// Fail lands on an expired key; INCR recreates it, and without a TTL
	// the counter would linger forever and even let Check pass again.
	if err := store.Fail(ctx, "u-1"); err != nil {
		t.Fatalf("fail on expired challenge: %v", err)
	}
	if got := mr.TTL("ca:mfa:u-1"); got <= 0 {
		t.Fatalf("recreated counter must carry the challenge TTL, got %v", got)
	}
	mr.FastForward(6 * time.Minute)
	if err := store.Check(ctx, "u-1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("stray counter must expire, got %v", err)
	}
}

func TestMemoryChallengeExpires(t *testing.T) {
	store := NewMemoryChallengeStore(5*time.Minute, 3)
	ctx := context.Background()

	if err := store.Begin(ctx, "u-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	store.now = func() time.Time { return time.Now().Add(6 * time.Minute) }
	if err := store.Check(ctx, "u-1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestChallengeClearAndRestart(t *testing.T) {
	store := NewMemoryChallengeStore(5*time.Minute, 3)
	ctx := context.Background()

	if err := store.Begin(ctx, "u-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := store.Clear(ctx, "u-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Check(ctx, "u-1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("cleared challenge must be gone, got %v", err)
	}

	// A fresh Begin resets the attempt budget.
	if err := store.Begin(ctx, "u-1"); err != nil {
		t.Fatalf("re-begin: %v", err)
	}
	if err := store.Fail(ctx, "u-1"); err != nil {
		t.Fatalf("fail after re-begin: %v", err)
	}
	if err := store.Begin(ctx, "u-1"); err != nil {
		t.Fatalf("overwrite begin: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Fail(ctx, "u-1"); err != nil {
			t.Fatalf("budget must be reset by Begin, fail %d: %v", i, err)
		}
	}
}
