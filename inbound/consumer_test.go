package inbound

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-rfp/core"
)

type memoryDelivery struct {
	body    []byte
	settled chan string
}

func (d *memoryDelivery) Body() []byte { return d.body }

func (d *memoryDelivery) Ack(context.Context) error {
	d.settled <- "ack"
	return nil
}

func (d *memoryDelivery) Reject(context.Context, error) error {
	d.settled <- "reject"
	return nil
}

func (d *memoryDelivery) Requeue(context.Context, error) error {
	d.settled <- "requeue"
	return nil
}

type channelSource struct {
	deliveries chan core.Delivery
}

func (s *channelSource) Next(ctx context.Context) (core.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case delivery, ok := <-s.deliveries:
		if !ok {
			return nil, core.ErrDeliverySourceClosed
		}
		return delivery, nil
	}
}

func TestConsumer_SettlesEachDeliveryByOutcome(t *testing.T) {
	store := core.NewMemoryStore()
	pipeline, _ := newTestPipeline(t, "bank1", store, nil)
	source := &channelSource{deliveries: make(chan core.Delivery, 3)}
	settled := make(chan string, 3)
	body := encodeMessage(t, "req-1", core.ActionTypeRequest, "requester", "bank1", "")
	source.deliveries <- &memoryDelivery{body: body, settled: settled}
	source.deliveries <- &memoryDelivery{body: []byte(`{}`), settled: settled}
	close(source.deliveries)

	consumer := NewConsumer(source, pipeline, 1, nil)
	if err := consumer.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	close(settled)
	counts := map[string]int{}
	for outcome := range settled {
		counts[outcome]++
	}
	if counts["ack"] != 1 || counts["reject"] != 1 {
		t.Fatalf("unexpected settlements %+v", counts)
	}
}

type blockingNotifier struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (n *blockingNotifier) Publish(context.Context, core.BusMessage) error {
	n.once.Do(func() { close(n.started) })
	<-n.release
	return nil
}

func TestConsumer_ShutdownWaitsForInFlightHandlers(t *testing.T) {
	store := core.NewMemoryStore()
	notifier := &blockingNotifier{started: make(chan struct{}), release: make(chan struct{})}
	pipeline, err := NewPipeline(PipelineConfig{
		CompanyID: "bank1",
		Namespace: "RFP",
		Store:     store,
		Notifier:  notifier,
	}, DefaultRoles(store, "bank1")...)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	source := &channelSource{deliveries: make(chan core.Delivery, 1)}
	settled := make(chan string, 1)
	source.deliveries <- &memoryDelivery{
		body:    encodeMessage(t, "req-1", core.ActionTypeRequest, "requester", "bank1", ""),
		settled: settled,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewConsumer(source, pipeline, 4, nil).Run(ctx)
	}()

	<-notifier.started
	cancel()
	select {
	case <-done:
		t.Fatalf("expected run to wait for the in-flight handler")
	case <-time.After(20 * time.Millisecond):
	}
	close(notifier.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not return after handler finished")
	}
	if got := <-settled; got != "ack" {
		t.Fatalf("expected in-flight handler to ack after shutdown, got %s", got)
	}
}

type emptySource struct {
	mu    sync.Mutex
	pulls int
}

func (s *emptySource) Next(context.Context) (core.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulls++
	return nil, nil
}

func TestConsumer_BacksOffWhenSourceHasNothing(t *testing.T) {
	store := core.NewMemoryStore()
	pipeline, err := NewPipeline(PipelineConfig{
		CompanyID: "bank1",
		Namespace: "RFP",
		Store:     store,
		Notifier:  &captureNotifier{},
	}, DefaultRoles(store, "bank1")...)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	source := &emptySource{}
	consumer := NewConsumer(source, pipeline, 2, nil)
	consumer.retryDelay = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := consumer.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	source.mu.Lock()
	pulls := source.pulls
	source.mu.Unlock()
	if pulls == 0 || pulls > 10 {
		t.Fatalf("expected a handful of spaced pulls, got %d", pulls)
	}
}
