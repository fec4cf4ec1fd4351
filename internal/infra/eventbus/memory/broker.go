// Package memory provides an in-memory implementation of the event bus.
// It offers a lightweight, non-persistent broker suitable for testing and
// development environments where durability is not required.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/ahrav/netscout/internal/domain/events"
)

var _ events.EventBus = (*EventBus)(nil)

// EventBus is an in-process implementation of events.EventBus. Each publish
// delivers asynchronously on its own goroutine, and a handler that errors
// without acking is redelivered with backoff. This mirrors the at-least-once
// contract of the Kafka bus closely enough that the full pipeline can run
// against it in one process.
type EventBus struct {
	mu       sync.RWMutex
	closed   bool
	handlers map[events.EventType][]*subscription

	wg sync.WaitGroup
}

// subscription wraps a handler so it can be removed by identity when its
// subscribing context is canceled. Function values are not comparable, so
// the pointer to this wrapper serves as the removal token.
type subscription struct {
	handler events.HandlerFunc
}

// NewEventBus creates an empty in-memory event bus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[events.EventType][]*subscription)}
}

// Publish delivers the envelope to every handler subscribed to its type.
// Delivery happens on separate goroutines after Publish returns; handler
// errors surface through redelivery, not through this return value.
func (b *EventBus) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}
	if pParams.Key != "" {
		event.Key = pParams.Key
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New("event bus is closed")
	}
	subs := make([]*subscription, len(b.handlers[event.Type]))
	copy(subs, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.wg.Add(1)
		go b.deliver(event, sub.handler)
	}
	return nil
}

// deliver invokes the handler until it acks successfully, gives up after the
// backoff policy is exhausted, or the bus closes. A handler that returns an
// error after acking is treated as consumed; un-acked errors redeliver.
func (b *EventBus) deliver(event events.EventEnvelope, handler events.HandlerFunc) {
	defer b.wg.Done()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second

	attempt := func() error {
		var acked bool
		ack := func(err error) {
			if err == nil {
				acked = true
			}
		}
		if err := handler(context.Background(), event, ack); err != nil && !acked {
			// Events published before Close still get their first attempt;
			// only redelivery stops once the bus is closed.
			b.mu.RLock()
			closed := b.closed
			b.mu.RUnlock()
			if closed {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	_ = backoff.Retry(attempt, policy)
}

// Subscribe registers a handler for the given event types. The handler is
// removed when ctx is canceled.
func (b *EventBus) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("event bus is closed")
	}
	sub := &subscription{handler: handler}
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], sub)
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		// Identity-based removal: other subscriptions may have come and
		// gone since registration, so positions are meaningless.
		for _, et := range eventTypes {
			list := b.handlers[et]
			for i, s := range list {
				if s == sub {
					b.handlers[et] = append(list[:i], list[i+1:]...)
					break
				}
			}
		}
	}()

	return nil
}

// Close marks the bus closed, drops all subscriptions, and waits for
// in-flight deliveries to settle.
func (b *EventBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.handlers = make(map[events.EventType][]*subscription)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
