package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-rfp/core"
)

func TestMessageMappingRoundTrip(t *testing.T) {
	original := core.BusMessage{
		Key:         "bank2",
		MessageType: "KOMGO.RFP.Request",
		MessageID:   "act-1",
		Body:        []byte(`{"version":1}`),
	}
	converted := ToExecutionMessage(original)
	if converted.JobID != JobIDBusMessage || converted.IdempotencyKey != "act-1" {
		t.Fatalf("unexpected execution message %+v", converted)
	}
	roundTrip, err := FromExecutionMessage(converted)
	if err != nil {
		t.Fatalf("from execution message: %v", err)
	}
	if roundTrip.Key != original.Key || roundTrip.MessageType != original.MessageType || roundTrip.MessageID != original.MessageID {
		t.Fatalf("expected round trip, got %+v", roundTrip)
	}
	if string(roundTrip.Body) != `{"version":1}` {
		t.Fatalf("expected body to survive mapping, got %s", roundTrip.Body)
	}

	if _, err := FromExecutionMessage(&job.ExecutionMessage{JobID: "other"}); err == nil {
		t.Fatalf("expected foreign job id to fail")
	}
}

func TestPublisherEnqueuesAndSourceDequeues(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	publisher := NewPublisher(enqueuer)

	if err := publisher.Publish(ctx, core.BusMessage{Key: "bank2", MessageType: "KOMGO.RFP.Request", MessageID: "act-1", Body: []byte("{}")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.Parameters["routing_key"] != "bank2" {
		t.Fatalf("expected mapped go-job message, got %+v", enqueuer.last)
	}
	if err := publisher.Publish(ctx, core.BusMessage{MessageID: "act-2"}); !core.IsPermanent(err) {
		t.Fatalf("expected missing routing key to be permanent, got %v", err)
	}

	raw := &stubQueueDelivery{msg: enqueuer.last}
	source := NewDeliverySource(&stubQueueDequeuer{deliveries: []queue.Delivery{raw}}, DefaultRetryPolicy())
	delivery, err := source.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(delivery.Body()) != "{}" {
		t.Fatalf("unexpected body %q", delivery.Body())
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !raw.acked {
		t.Fatalf("expected ack on underlying delivery")
	}
}

func TestDeliveryRejectDeadLetters(t *testing.T) {
	ctx := context.Background()
	raw := &stubQueueDelivery{msg: ToExecutionMessage(core.BusMessage{Key: "bank1", MessageID: "act-1", Body: []byte("x")})}
	source := NewDeliverySource(&stubQueueDequeuer{deliveries: []queue.Delivery{raw}}, RetryPolicy{})
	delivery, err := source.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := delivery.Reject(ctx, errors.New("malformed envelope")); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !raw.nackOpts.DeadLetter || raw.nackOpts.Requeue {
		t.Fatalf("expected dead letter without requeue, got %+v", raw.nackOpts)
	}
	if raw.nackOpts.Reason != "malformed envelope" {
		t.Fatalf("expected reason to be forwarded, got %q", raw.nackOpts.Reason)
	}
}

func TestDeliveryRequeueBackoffAndMaxAttempts(t *testing.T) {
	ctx := context.Background()
	msg := ToExecutionMessage(core.BusMessage{Key: "bank1", MessageID: "act-1", Body: []byte("x")})
	deliveries := []queue.Delivery{
		&stubQueueDelivery{msg: msg},
		&stubQueueDelivery{msg: msg},
		&stubQueueDelivery{msg: msg},
	}
	source := NewDeliverySource(&stubQueueDequeuer{deliveries: deliveries}, RetryPolicy{
		MaxAttempts:     3,
		RequeueDelay:    time.Second,
		MaxDelay:        10 * time.Second,
		DeadLetterOnMax: true,
	})

	for attempt := 1; attempt <= 3; attempt++ {
		delivery, err := source.Next(ctx)
		if err != nil {
			t.Fatalf("next attempt %d: %v", attempt, err)
		}
		if err := delivery.Requeue(ctx, errors.New("store unavailable")); err != nil {
			t.Fatalf("requeue attempt %d: %v", attempt, err)
		}
	}

	first := deliveries[0].(*stubQueueDelivery).nackOpts
	if !first.Requeue || first.Delay != time.Second {
		t.Fatalf("expected first requeue after 1s, got %+v", first)
	}
	second := deliveries[1].(*stubQueueDelivery).nackOpts
	if !second.Requeue || second.Delay != 2*time.Second {
		t.Fatalf("expected doubled delay, got %+v", second)
	}
	last := deliveries[2].(*stubQueueDelivery).nackOpts
	if last.Requeue || !last.DeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %+v", last)
	}
}

func TestDeliverySourceClose(t *testing.T) {
	source := NewDeliverySource(&stubQueueDequeuer{err: errors.New("queue stopped")}, RetryPolicy{})
	if _, err := source.Next(context.Background()); err == nil || errors.Is(err, core.ErrDeliverySourceClosed) {
		t.Fatalf("expected raw dequeue error before close, got %v", err)
	}
	source.Close()
	if _, err := source.Next(context.Background()); !errors.Is(err, core.ErrDeliverySourceClosed) {
		t.Fatalf("expected closed source, got %v", err)
	}
}

func TestWorkerHookRecordsMetrics(t *testing.T) {
	metrics := &core.MemoryMetricsRecorder{}
	hook := NewWorkerHook(core.NewObserver(nil, metrics))
	event := worker.Event{
		Message:  ToExecutionMessage(core.BusMessage{Key: "bank1", MessageType: "KOMGO.RFP.Response", MessageID: "act-9", Body: []byte("{}")}),
		Attempt:  2,
		Err:      errors.New("retry"),
		Duration: 25 * time.Millisecond,
	}
	hook.OnRetry(context.Background(), event)
	hook.OnSuccess(context.Background(), event)

	if got := metrics.Counter("rfp.bus_worker.total", map[string]string{"status": "retry"}); got != 1 {
		t.Fatalf("expected one retry counter, got %d", got)
	}
	if got := metrics.Counter("rfp.bus_worker.total", map[string]string{"status": "success"}); got != 1 {
		t.Fatalf("expected one success counter, got %d", got)
	}
	fields := workerFields(event)
	if fields["message_id"] != "act-9" || fields["error"] != "retry" {
		t.Fatalf("unexpected worker fields %+v", fields)
	}
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	deliveries []queue.Delivery
	err        error
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.deliveries) == 0 {
		return nil, errors.New("queue empty")
	}
	next := s.deliveries[0]
	s.deliveries = s.deliveries[1:]
	return next, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}
