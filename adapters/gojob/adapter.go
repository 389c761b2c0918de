package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-rfp/core"
)

const (
	JobIDBusMessage = "rfp.bus.message"

	paramRoutingKey  = "routing_key"
	paramMessageType = "message_type"
	paramBody        = "body"
)

// RetryPolicy bounds how often a transient failure is requeued before it is dead-lettered.
type RetryPolicy struct {
	MaxAttempts     int
	RequeueDelay    time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     10,
		RequeueDelay:    time.Second,
		MaxDelay:        time.Minute,
		DeadLetterOnMax: true,
	}
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// backoff doubles the requeue delay per attempt up to MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.RequeueDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// ToExecutionMessage wraps a bus message into a go-job execution message.
func ToExecutionMessage(msg core.BusMessage) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDBusMessage,
		ScriptPath: strings.TrimSpace(msg.MessageType),
		Parameters: map[string]any{
			paramRoutingKey:  strings.TrimSpace(msg.Key),
			paramMessageType: strings.TrimSpace(msg.MessageType),
			paramBody:        string(msg.Body),
		},
		IdempotencyKey: strings.TrimSpace(msg.MessageID),
	}
}

// FromExecutionMessage recovers the bus message carried by a go-job execution message.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.BusMessage, error) {
	if msg == nil {
		return core.BusMessage{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDBusMessage {
		return core.BusMessage{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	out := core.BusMessage{
		Key:         stringParam(msg.Parameters, paramRoutingKey),
		MessageType: stringParam(msg.Parameters, paramMessageType),
		MessageID:   strings.TrimSpace(msg.IdempotencyKey),
	}
	if out.MessageType == "" {
		out.MessageType = strings.TrimSpace(msg.ScriptPath)
	}
	switch body := msg.Parameters[paramBody].(type) {
	case string:
		out.Body = []byte(body)
	case []byte:
		out.Body = append([]byte(nil), body...)
	default:
		return core.BusMessage{}, fmt.Errorf("gojob: execution message has no body")
	}
	return out, nil
}

// Publisher publishes bus messages through a go-job enqueuer.
type Publisher struct {
	enqueuer queue.Enqueuer
}

func NewPublisher(enqueuer queue.Enqueuer) *Publisher {
	return &Publisher{enqueuer: enqueuer}
}

func (p *Publisher) Publish(ctx context.Context, msg core.BusMessage) error {
	if p == nil || p.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(msg.Key) == "" {
		return core.BadInputError("gojob: routing key is required", map[string]any{"message_id": msg.MessageID})
	}
	return p.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

// DeliverySource pulls inbound deliveries from a go-job dequeuer. Attempts are
// counted per message id for the lifetime of the source.
type DeliverySource struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy

	mu       sync.Mutex
	attempts map[string]int
	closed   bool
}

func NewDeliverySource(dequeuer queue.Dequeuer, policy RetryPolicy) *DeliverySource {
	return &DeliverySource{
		dequeuer: dequeuer,
		policy:   policy,
		attempts: map[string]int{},
	}
}

func (s *DeliverySource) Next(ctx context.Context) (core.Delivery, error) {
	if s == nil || s.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	if s.isClosed() {
		return nil, core.ErrDeliverySourceClosed
	}
	delivery, err := s.dequeuer.Dequeue(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if s.isClosed() {
			return nil, core.ErrDeliverySourceClosed
		}
		return nil, err
	}
	return s.wrap(delivery), nil
}

// Close stops the source; the next pull reports core.ErrDeliverySourceClosed.
func (s *DeliverySource) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *DeliverySource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *DeliverySource) wrap(delivery queue.Delivery) *Delivery {
	out := &Delivery{delivery: delivery, source: s}
	msg, err := FromExecutionMessage(delivery.Message())
	if err != nil {
		out.decodeErr = err
		return out
	}
	out.message = msg
	out.attempt = s.recordAttempt(msg.MessageID)
	return out
}

func (s *DeliverySource) recordAttempt(messageID string) int {
	if messageID == "" {
		return 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[messageID]++
	return s.attempts[messageID]
}

func (s *DeliverySource) forget(messageID string) {
	if messageID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, messageID)
}

// Delivery maps engine settlement onto go-job ack and nack.
type Delivery struct {
	delivery  queue.Delivery
	source    *DeliverySource
	message   core.BusMessage
	attempt   int
	decodeErr error
}

// Body returns nil for executions that do not carry a bus message; the
// pipeline rejects those as malformed.
func (d *Delivery) Body() []byte {
	if d == nil || d.decodeErr != nil {
		return nil
	}
	return d.message.Body
}

func (d *Delivery) Message() core.BusMessage {
	if d == nil {
		return core.BusMessage{}
	}
	return d.message
}

func (d *Delivery) Attempt() int {
	if d == nil {
		return 0
	}
	return d.attempt
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	d.settled()
	return d.delivery.Ack(ctx)
}

func (d *Delivery) Reject(ctx context.Context, reason error) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	d.settled()
	return d.delivery.Nack(ctx, queue.NackOptions{
		DeadLetter: true,
		Reason:     reasonText(reason),
	})
}

func (d *Delivery) Requeue(ctx context.Context, reason error) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	policy := RetryPolicy{}
	if d.source != nil {
		policy = d.source.policy
	}
	opts := policy.NormalizeAttempt(queue.NackOptions{
		Delay:   policy.backoff(d.attempt),
		Requeue: true,
		Reason:  reasonText(reason),
	}, d.attempt)
	if !opts.Requeue {
		d.settled()
	}
	return d.delivery.Nack(ctx, opts)
}

func (d *Delivery) settled() {
	if d.source != nil {
		d.source.forget(d.message.MessageID)
	}
}

// WorkerHook reports go-job worker lifecycle events through the engine observer.
type WorkerHook struct {
	observer *core.Observer
}

func NewWorkerHook(observer *core.Observer) *WorkerHook {
	return &WorkerHook{observer: observer}
}

func (h *WorkerHook) OnStart(ctx context.Context, event worker.Event) {
	h.observer.Debug(ctx, "bus worker started message", workerFields(event))
}

func (h *WorkerHook) OnSuccess(ctx context.Context, event worker.Event) {
	fields := workerFields(event)
	h.observer.IncCounter(ctx, "rfp.bus_worker.total", 1, map[string]string{"status": "success"})
	h.observer.ObserveHistogram(ctx, "rfp.bus_worker.duration_ms", float64(event.Duration.Milliseconds()), map[string]string{"status": "success"})
	h.observer.Debug(ctx, "bus worker finished message", fields)
}

func (h *WorkerHook) OnFailure(ctx context.Context, event worker.Event) {
	h.observer.IncCounter(ctx, "rfp.bus_worker.total", 1, map[string]string{"status": "failure"})
	h.observer.Error(ctx, "bus worker failed message", workerFields(event))
}

func (h *WorkerHook) OnRetry(ctx context.Context, event worker.Event) {
	h.observer.IncCounter(ctx, "rfp.bus_worker.total", 1, map[string]string{"status": "retry"})
	h.observer.Warn(ctx, "bus worker retrying message", workerFields(event))
}

func workerFields(event worker.Event) map[string]any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := map[string]any{
		"attempt":     event.Attempt,
		"delay_ms":    event.Delay.Milliseconds(),
		"duration_ms": event.Duration.Milliseconds(),
	}
	if message != nil {
		fields["job_id"] = message.JobID
		fields["message_type"] = message.ScriptPath
		fields["message_id"] = message.IdempotencyKey
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	return fields
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

func reasonText(reason error) string {
	if reason == nil {
		return ""
	}
	return strings.TrimSpace(reason.Error())
}

var (
	_ core.Publisher      = (*Publisher)(nil)
	_ core.DeliverySource = (*DeliverySource)(nil)
	_ core.Delivery       = (*Delivery)(nil)
	_ worker.Hook         = (*WorkerHook)(nil)
)
