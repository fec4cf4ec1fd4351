// Package eventdispatcher routes consumed event envelopes to the single
// handler registered for each event type.
package eventdispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/pkg/common/logger"
)

// Dispatcher maps event types to handlers and forwards incoming envelopes.
// Each event type has exactly one handler; registering a second handler for
// the same type replaces the first.
//
// Typical usage:
//
//	dispatcher := eventdispatcher.New(tracer, log)
//	dispatcher.RegisterHandler(ctx, lookup.EventTypeJobSubmitted, orchestrator.HandleJobSubmitted)
//	err := dispatcher.Dispatch(ctx, envelope, ack)
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[events.EventType]events.HandlerFunc
	tracer   trace.Tracer
	logger   *logger.Logger
}

// New constructs a Dispatcher with an empty registry. Handlers must be
// registered before any events are dispatched.
func New(tracer trace.Tracer, logger *logger.Logger) *Dispatcher {
	logger = logger.With("component", "event_dispatcher")
	return &Dispatcher{
		handlers: make(map[events.EventType]events.HandlerFunc),
		tracer:   tracer,
		logger:   logger,
	}
}

// RegisterHandler associates a handler with an event type, replacing any
// existing registration. Safe for concurrent use.
func (d *Dispatcher) RegisterHandler(ctx context.Context, eventType events.EventType, handler events.HandlerFunc) {
	logger := d.logger.With("operation", "register_handler", "event_type", eventType)
	_, span := d.tracer.Start(ctx, "event_dispatcher.register_handler",
		trace.WithAttributes(
			attribute.String("event_type", string(eventType)),
		),
	)
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[eventType] = handler
	logger.Debug(ctx, "handler registered")
	span.AddEvent("handler_registered")
	span.SetStatus(codes.Ok, "handler registered")
}

// HandlerNotFoundError indicates an envelope arrived for an event type with
// no registered handler.
type HandlerNotFoundError struct {
	EventType events.EventType
	Partition int32
	Offset    int64
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no handler registered for event type: %s (partition: %d, offset: %d)",
		e.EventType, e.Partition, e.Offset)
}

// Dispatch forwards the envelope to the handler registered for its event
// type. The ack callback is passed through untouched; the handler decides
// when (and whether) the message is acknowledged. Returns
// HandlerNotFoundError when no handler is registered for the type.
func (d *Dispatcher) Dispatch(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	logger := logger.NewLoggerContext(d.logger.With("operation", "dispatch",
		"event_type", evt.Type,
		"partition", evt.Metadata.Partition,
		"offset", evt.Metadata.Offset,
	))
	ctx, span := d.tracer.Start(ctx, "event_dispatcher.handle_event",
		trace.WithAttributes(
			attribute.String("event_type", string(evt.Type)),
			attribute.Int("partition", int(evt.Metadata.Partition)),
			attribute.Int64("offset", evt.Metadata.Offset),
		))
	defer span.End()

	d.mu.RLock()
	handler, exists := d.handlers[evt.Type]
	d.mu.RUnlock()
	if !exists {
		err := &HandlerNotFoundError{
			EventType: evt.Type,
			Partition: evt.Metadata.Partition,
			Offset:    evt.Metadata.Offset,
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logger.Add("handler_type", fmt.Sprintf("%T", handler))

	if err := handler(ctx, evt, ack); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to dispatch event for handler %T with event type %s: %w",
			handler, evt.Type, err,
		)
	}

	span.SetStatus(codes.Ok, "event dispatched successfully")
	logger.Debug(ctx, "event dispatched successfully")
	return nil
}
