package outbound

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-rfp/core"
)

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialRetryPolicy doubles from Initial and caps at Max.
type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 5 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

type SleepFunc func(ctx context.Context, delay time.Duration) error

func contextSleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryingPublisher retries a bus publish up to MaxAttempts.
type RetryingPublisher struct {
	Publisher   core.Publisher
	MaxAttempts int
	Policy      RetryPolicy
	Sleep       SleepFunc
	Observer    *core.Observer
}

func NewRetryingPublisher(publisher core.Publisher, cfg core.PublisherConfig) *RetryingPublisher {
	return &RetryingPublisher{
		Publisher:   publisher,
		MaxAttempts: cfg.MaxAttempts,
		Policy: ExponentialRetryPolicy{
			Initial: cfg.InitialBackoff,
			Max:     cfg.MaxBackoff,
		},
		Sleep: contextSleep,
	}
}

func (p *RetryingPublisher) Publish(ctx context.Context, message core.BusMessage) error {
	if p == nil || p.Publisher == nil {
		return fmt.Errorf("outbound: publisher is not configured")
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	policy := p.Policy
	if policy == nil {
		policy = ExponentialRetryPolicy{}
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = contextSleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = p.Publisher.Publish(ctx, message)
		if lastErr == nil {
			return nil
		}
		fields := map[string]any{
			"key":          message.Key,
			"message_type": message.MessageType,
			"message_id":   message.MessageID,
			"attempt":      attempt,
			"max_attempts": attempts,
			"error":        lastErr.Error(),
		}
		if attempt == attempts {
			p.Observer.Warn(ctx, "publish attempts exhausted", fields)
			break
		}
		delay := policy.NextDelay(attempt)
		fields["retry_in_ms"] = delay.Milliseconds()
		p.Observer.Warn(ctx, "publish failed, retrying", fields)
		if err := sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}
	return core.DeliveryError(lastErr, "outbound: publish failed", map[string]any{
		"key":          message.Key,
		"message_type": message.MessageType,
		"message_id":   message.MessageID,
	})
}

var _ core.Publisher = (*RetryingPublisher)(nil)
