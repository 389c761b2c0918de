package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryNegotiationLocker_SerializesSameRFP(t *testing.T) {
	locker := NewMemoryNegotiationLocker()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithNegotiationLock(ctx, locker, "r1", time.Minute, func(context.Context) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("with lock: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive critical section, saw %d concurrent holders", maxSeen)
	}
}

func TestMemoryNegotiationLocker_DifferentRFPsDoNotBlock(t *testing.T) {
	locker := NewMemoryNegotiationLocker()
	ctx := context.Background()
	first, err := locker.Acquire(ctx, "r1", time.Minute)
	if err != nil {
		t.Fatalf("acquire r1: %v", err)
	}
	defer first.Unlock(ctx)

	acquireCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	second, err := locker.Acquire(acquireCtx, "r2", time.Minute)
	if err != nil {
		t.Fatalf("acquire r2: %v", err)
	}
	_ = second.Unlock(ctx)
}

func TestMemoryNegotiationLocker_WaiterHonorsContext(t *testing.T) {
	locker := NewMemoryNegotiationLocker()
	ctx := context.Background()
	held, err := locker.Acquire(ctx, "r1", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer held.Unlock(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(waitCtx, "r1", time.Minute); err == nil {
		t.Fatalf("expected context deadline while lock is held")
	}
}

func TestMemoryNegotiationLocker_ExpiredHolderIsReplaced(t *testing.T) {
	locker := NewMemoryNegotiationLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	locker.Now = func() time.Time { return now }
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "r1", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	now = now.Add(2 * time.Second)
	fresh, err := locker.Acquire(ctx, "r1", time.Second)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	_ = stale.Unlock(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(waitCtx, "r1", time.Second); err == nil {
		t.Fatalf("expected stale unlock not to release the fresh holder")
	}
	_ = fresh.Unlock(ctx)
}

func TestMemoryNegotiationLocker_TokensAreScopedToLocker(t *testing.T) {
	ctx := context.Background()
	for _, locker := range []*MemoryNegotiationLocker{NewMemoryNegotiationLocker(), NewMemoryNegotiationLocker()} {
		first, err := locker.Acquire(ctx, "r1", time.Second)
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		second, err := locker.Acquire(ctx, "r2", time.Second)
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if got := first.(*negotiationLockHandle).token; got != 1 {
			t.Fatalf("expected first token 1, got %d", got)
		}
		if got := second.(*negotiationLockHandle).token; got != 2 {
			t.Fatalf("expected second token 2, got %d", got)
		}
		_ = first.Unlock(ctx)
		_ = second.Unlock(ctx)
	}
}
