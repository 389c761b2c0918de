package rfp_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-rfp"
	"github.com/goliatone/go-rfp/core"
	"github.com/goliatone/go-rfp/inbound"
)

const testContext = `{"productId":"KYC","subProductId":"LC"}`

// memoryBus routes protocol messages by recipient id and keeps internal
// notifications apart so tests can inspect both.
type memoryBus struct {
	mu            sync.Mutex
	queue         []core.BusMessage
	notifications []core.BusMessage
	down          map[string]bool
}

func newMemoryBus() *memoryBus {
	return &memoryBus{down: map[string]bool{}}
}

func (b *memoryBus) Publish(_ context.Context, message core.BusMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if strings.HasPrefix(message.Key, "INTERNAL.") {
		b.notifications = append(b.notifications, message)
		return nil
	}
	if b.down[message.Key] {
		return errors.New("bus: route unavailable")
	}
	message.Body = append([]byte(nil), message.Body...)
	b.queue = append(b.queue, message)
	return nil
}

func (b *memoryBus) setDown(key string, down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down[key] = down
}

func (b *memoryBus) pending() []core.BusMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.BusMessage(nil), b.queue...)
}

func (b *memoryBus) notificationKeys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.notifications))
	for _, message := range b.notifications {
		keys = append(keys, message.Key)
	}
	return keys
}

type delivered struct {
	message core.BusMessage
	outcome inbound.Outcome
}

// drain hands every queued message to the addressed engine until the bus is empty.
func (b *memoryBus) drain(t *testing.T, engines map[string]*rfp.Service) []delivered {
	t.Helper()
	var out []delivered
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return out
		}
		message := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		engine, ok := engines[message.Key]
		if !ok {
			t.Fatalf("no engine for routing key %q", message.Key)
		}
		outcome := engine.Inbound().Handle(context.Background(), message.Body)
		out = append(out, delivered{message: message, outcome: outcome})
	}
}
