package inbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-rfp/core"
)

const defaultPullRetryDelay = 250 * time.Millisecond

// Consumer pulls deliveries and runs each through the pipeline on its own goroutine.
type Consumer struct {
	source      core.DeliverySource
	pipeline    *Pipeline
	maxInFlight int
	retryDelay  time.Duration
	observer    *core.Observer
}

func NewConsumer(source core.DeliverySource, pipeline *Pipeline, maxInFlight int, observer *core.Observer) *Consumer {
	return &Consumer{
		source:      source,
		pipeline:    pipeline,
		maxInFlight: maxInFlight,
		retryDelay:  defaultPullRetryDelay,
		observer:    observer,
	}
}

// Run pulls until ctx ends or the source closes, then waits for in-flight
// handlers. Handlers are not canceled by shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil || c.source == nil || c.pipeline == nil {
		return fmt.Errorf("inbound: consumer is not configured")
	}
	var slots chan struct{}
	if c.maxInFlight > 0 {
		slots = make(chan struct{}, c.maxInFlight)
	}
	handlerCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if slots != nil {
			select {
			case <-ctx.Done():
				return nil
			case slots <- struct{}{}:
			}
		}
		delivery, err := c.source.Next(ctx)
		if err != nil {
			release(slots)
			if ctx.Err() != nil || errors.Is(err, core.ErrDeliverySourceClosed) {
				return nil
			}
			c.observer.Warn(ctx, "delivery pull failed", map[string]any{"error": err.Error()})
			if !c.wait(ctx) {
				return nil
			}
			continue
		}
		if delivery == nil {
			release(slots)
			if !c.wait(ctx) {
				return nil
			}
			continue
		}
		wg.Add(1)
		go func(delivery core.Delivery) {
			defer wg.Done()
			defer release(slots)
			c.process(handlerCtx, delivery)
		}(delivery)
	}
}

func (c *Consumer) process(ctx context.Context, delivery core.Delivery) {
	outcome := c.pipeline.Handle(ctx, delivery.Body())
	var err error
	switch outcome.Disposition {
	case DispositionAck:
		err = delivery.Ack(ctx)
	case DispositionReject:
		err = delivery.Reject(ctx, outcome.Err)
	default:
		err = delivery.Requeue(ctx, outcome.Err)
	}
	if err != nil {
		c.observer.Error(ctx, "delivery settlement failed", map[string]any{
			"disposition": string(outcome.Disposition),
			"error":       err.Error(),
		})
	}
}

func (c *Consumer) wait(ctx context.Context) bool {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func release(slots chan struct{}) {
	if slots != nil {
		<-slots
	}
}
