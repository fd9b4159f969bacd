package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"citizen-economy-go/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupTestRedis(t *testing.T, expiration time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, expiration), mr
}

func TestRedis_SerializesSameKey(t *testing.T) {
	r, _ := setupTestRedis(t, 5*time.Second)
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := r.Acquire(ctx, RiskKey("u1"))
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most 1 holder, saw %d", maxInside)
	}
}

func TestRedis_RetriesExhaustedIsConflict(t *testing.T) {
	r, _ := setupTestRedis(t, 100*time.Millisecond)
	ctx := context.Background()

	release, err := r.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	_, err = r.Acquire(ctx, "k")
	if !errors.Is(err, ErrLockFailed) {
		t.Fatalf("expected ErrLockFailed, got %v", err)
	}
	if !errors.Is(err, store.ErrConflict) || store.Kind(err) != "conflict" {
		t.Errorf("expected a conflict error, got kind %q (%v)", store.Kind(err), err)
	}
}

func TestRedis_ReleaseOnlyDeletesOwnValue(t *testing.T) {
	r, mr := setupTestRedis(t, time.Second)
	ctx := context.Background()

	release, err := r.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// The lock expired and another holder took it over.
	if err := mr.Set(r.prefix+"k", "successor"); err != nil {
		t.Fatalf("failed to seed successor: %v", err)
	}
	release()

	got, err := mr.Get(r.prefix + "k")
	if err != nil || got != "successor" {
		t.Errorf("expected successor lock to survive, got %q (%v)", got, err)
	}

	mr.Del(r.prefix + "k")
	release, err = r.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("Acquire after takeover failed: %v", err)
	}
	release()
	if mr.Exists(r.prefix + "k") {
		t.Error("expected own lock to be deleted on release")
	}
}

func TestRedis_ContextCancelled(t *testing.T) {
	r, _ := setupTestRedis(t, 5*time.Second)
	release, err := r.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := r.Acquire(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
