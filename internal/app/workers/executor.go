// Package workers implements the fixed execution lifecycle every lookup
// worker runs: validate the target, invoke the probe under a timeout,
// persist the outcome, and emit a completion notification. Only the probe
// logic and service identity vary between workers.
package workers

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/internal/domain/lookup"
	"github.com/ahrav/netscout/pkg/common/logger"
)

// defaultProbeTimeout bounds a single probe invocation. Cancellation is
// cooperative: the probe must abort its in-flight external call when the
// context expires.
const defaultProbeTimeout = 10 * time.Second

// Probe is the service-specific lookup a worker runs against a target. A
// probe returns its structured result on success; any error marks the task
// failed with the error text as the recorded message. Probes must honor
// context cancellation promptly and perform no retries of their own.
type Probe interface {
	ServiceType() lookup.ServiceType
	Run(ctx context.Context, target lookup.Target) (map[string]any, error)
}

// Executor drives the execution template for any probe. The side-effect
// order is fixed: the outcome is persisted before the completion
// notification is emitted, so a consumer of the notification can assume the
// payload is already durable once it learns the location. When persistence
// itself fails the notification still goes out, carrying a nil location; the
// orchestrator treats such a task as failed-with-no-data rather than waiting
// forever.
type Executor struct {
	store     lookup.ResultStore
	publisher events.DomainEventPublisher

	probeTimeout time.Duration

	logger *logger.Logger
	tracer trace.Tracer
}

// NewExecutor builds an executor writing outcomes to the given store.
// Callers typically pass the resolver's default store.
func NewExecutor(
	store lookup.ResultStore,
	publisher events.DomainEventPublisher,
	probeTimeout time.Duration,
	log *logger.Logger,
	tracer trace.Tracer,
) *Executor {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &Executor{
		store:        store,
		publisher:    publisher,
		probeTimeout: probeTimeout,
		logger:       log.With("component", "worker_executor"),
		tracer:       tracer,
	}
}

// Execute runs the template for one check command. The returned error
// reflects only the notification step: probe and storage failures are
// recorded as data and never propagate across the message boundary, so
// crash-and-redeliver semantics stay safe.
func (e *Executor) Execute(ctx context.Context, probe Probe, cmd lookup.CheckCommand) error {
	svc := probe.ServiceType()
	logr := logger.NewLoggerContext(e.logger.With(
		"operation", "execute",
		"job_id", cmd.JobID.String(),
		"service_type", svc.String(),
	))
	ctx, span := e.tracer.Start(ctx, "worker_executor.execute",
		trace.WithAttributes(
			attribute.String("job_id", cmd.JobID.String()),
			attribute.String("service_type", svc.String()),
			attribute.String("target", cmd.Target),
		))
	defer span.End()

	// Duration covers validation through probe execution, measured up to
	// the point immediately before persistence.
	start := time.Now()

	payload, probeErr := e.validateAndProbe(ctx, span, probe, cmd)
	duration := time.Since(start)

	var location *lookup.ResultLocation
	var persistErr error
	if probeErr == nil {
		var loc lookup.ResultLocation
		loc, persistErr = e.store.SaveResult(ctx, cmd.JobID, svc, payload, duration)
		if persistErr == nil {
			location = &loc
		}
	} else {
		var loc lookup.ResultLocation
		loc, persistErr = e.store.SaveFailure(ctx, cmd.JobID, svc, probeErr.Error(), duration)
		if persistErr == nil {
			location = &loc
		}
	}
	if persistErr != nil {
		// The notification must still go out so the orchestrator is never
		// left waiting; a nil location marks the task failed-with-no-data.
		span.RecordError(persistErr)
		span.AddEvent("outcome_persist_failed")
		logr.Error(ctx, "persisting outcome failed", "error", persistErr)
	} else {
		span.AddEvent("outcome_persisted")
	}

	success := probeErr == nil && persistErr == nil
	errorMessage := ""
	switch {
	case probeErr != nil:
		errorMessage = probeErr.Error()
	case persistErr != nil:
		errorMessage = fmt.Sprintf("result persistence failed: %v", persistErr)
	}

	evt := lookup.NewTaskCompletedEvent(cmd.JobID, svc, success, duration, errorMessage, location)
	if err := e.publisher.PublishDomainEvent(ctx, evt, events.WithKey(cmd.JobID.String())); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "notification failed")
		return fmt.Errorf("publishing task completed for %s/%s: %w", cmd.JobID, svc, err)
	}

	span.SetAttributes(attribute.Bool("success", success))
	span.SetStatus(codes.Ok, "task executed")
	logr.Debug(ctx, "task executed", "success", success, "duration", duration)
	return nil
}

// validateAndProbe runs the optional target validation and, when it passes,
// the probe under the configured timeout. A validation failure skips the
// probe entirely and is recorded like any probe failure.
func (e *Executor) validateAndProbe(ctx context.Context, span trace.Span, probe Probe, cmd lookup.CheckCommand) (map[string]any, error) {
	target, err := lookup.NewTarget(cmd.Target)
	if err != nil {
		span.AddEvent("target_validation_failed")
		return nil, fmt.Errorf("target validation failed: %w", err)
	}
	if target.Kind() != cmd.TargetKind {
		span.AddEvent("target_validation_failed")
		return nil, fmt.Errorf("target validation failed: %q is %s, command says %s", cmd.Target, target.Kind(), cmd.TargetKind)
	}

	probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout)
	defer cancel()

	payload, err := probe.Run(probeCtx, target)
	if err != nil {
		span.AddEvent("probe_failed")
		return nil, err
	}
	return payload, nil
}

// HandlerFor adapts the executor into an event handler for one probe's check
// commands. The command is acknowledged once the completion notification has
// been published; a failed notification leaves the command unacked for
// redelivery, which is safe because result writes overwrite per (job,
// service) key.
func (e *Executor) HandlerFor(probe Probe) events.HandlerFunc {
	return func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
		cmd, ok := evt.Payload.(lookup.CheckCommand)
		if !ok {
			return fmt.Errorf("invalid event payload type: %T", evt.Payload)
		}
		if cmd.ServiceType != probe.ServiceType() {
			// Running the wrong probe would record an outcome under this
			// probe's service type while the command's own service never
			// executes. Leave the command unacked instead.
			return fmt.Errorf("command for %s misrouted to %s probe", cmd.ServiceType, probe.ServiceType())
		}
		if err := e.Execute(ctx, probe, cmd); err != nil {
			return err
		}
		ack(nil)
		return nil
	}
}

// Register wires the probes onto the bus through a single subscription
// covering all of their check command types. One subscription matters on
// brokers where every check command type shares a topic: separate per-probe
// subscriptions would each receive the full command stream, and whichever
// consume loop picked up a message would run its own probe regardless of the
// command's service type. Routing by event type here keeps each command on
// the probe it names.
func Register(ctx context.Context, bus events.EventBus, executor *Executor, probes ...Probe) error {
	handlers := make(map[events.EventType]events.HandlerFunc, len(probes))
	eventTypes := make([]events.EventType, 0, len(probes))
	for _, probe := range probes {
		et, err := lookup.CheckEventType(probe.ServiceType())
		if err != nil {
			return fmt.Errorf("registering probe: %w", err)
		}
		if _, exists := handlers[et]; exists {
			return fmt.Errorf("duplicate probe registration for %s", probe.ServiceType())
		}
		handlers[et] = executor.HandlerFor(probe)
		eventTypes = append(eventTypes, et)
	}

	route := func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
		handler, ok := handlers[evt.Type]
		if !ok {
			return fmt.Errorf("no probe registered for event type %s", evt.Type)
		}
		return handler(ctx, evt, ack)
	}
	if err := bus.Subscribe(ctx, eventTypes, route); err != nil {
		return fmt.Errorf("subscribing probes: %w", err)
	}
	return nil
}
