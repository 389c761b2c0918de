package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultNegotiationLockTTL = 30 * time.Second

// MemoryNegotiationLocker is a blocking keyed lock. A holder that outlives its TTL
// loses the lock to the next waiter.
type MemoryNegotiationLocker struct {
	mu        sync.Mutex
	locks     map[string]*negotiationLock
	lastToken uint64
	Now       func() time.Time
}

type negotiationLock struct {
	token    uint64
	until    time.Time
	released chan struct{}
}

func NewMemoryNegotiationLocker() *MemoryNegotiationLocker {
	return &MemoryNegotiationLocker{
		locks: map[string]*negotiationLock{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryNegotiationLocker) Acquire(ctx context.Context, rfpID string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: negotiation locker is not configured")
	}
	rfpID = strings.TrimSpace(rfpID)
	if rfpID == "" {
		return nil, fmt.Errorf("core: rfp id is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = defaultNegotiationLockTTL
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		l.mu.Lock()
		now := l.now()
		held, ok := l.locks[rfpID]
		if !ok || !now.Before(held.until) {
			if ok {
				close(held.released)
			}
			l.lastToken++
			lock := &negotiationLock{
				token:    l.lastToken,
				until:    now.Add(ttl),
				released: make(chan struct{}),
			}
			l.locks[rfpID] = lock
			l.mu.Unlock()
			return &negotiationLockHandle{locker: l, rfpID: rfpID, token: lock.token}, nil
		}
		released := held.released
		wait := held.until.Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-released:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (l *MemoryNegotiationLocker) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

type negotiationLockHandle struct {
	locker *MemoryNegotiationLocker
	rfpID  string
	token  uint64
	once   sync.Once
}

func (h *negotiationLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		defer h.locker.mu.Unlock()
		held, ok := h.locker.locks[h.rfpID]
		if !ok || held.token != h.token {
			return
		}
		delete(h.locker.locks, h.rfpID)
		close(held.released)
	})
	return nil
}

// NopNegotiationLocker never blocks; use it when another layer already serializes access.
type NopNegotiationLocker struct{}

func (NopNegotiationLocker) Acquire(context.Context, string, time.Duration) (LockHandle, error) {
	return nopLockHandle{}, nil
}

type nopLockHandle struct{}

func (nopLockHandle) Unlock(context.Context) error { return nil }

// WithNegotiationLock runs fn while holding the RFP lock.
func WithNegotiationLock(
	ctx context.Context,
	locker NegotiationLocker,
	rfpID string,
	ttl time.Duration,
	fn func(ctx context.Context) error,
) error {
	if locker == nil {
		return fn(ctx)
	}
	handle, err := locker.Acquire(ctx, rfpID, ttl)
	if err != nil {
		return fmt.Errorf("core: acquire negotiation lock: %w", err)
	}
	defer func() {
		_ = handle.Unlock(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

var (
	_ NegotiationLocker = (*MemoryNegotiationLocker)(nil)
	_ NegotiationLocker = NopNegotiationLocker{}
)
