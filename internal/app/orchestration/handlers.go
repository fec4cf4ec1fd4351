package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/internal/domain/lookup"
	"github.com/ahrav/netscout/pkg/common/logger"
)

// HandleJobSubmitted creates the orchestration instance for a submitted job
// and fans one check command per requested service out to the workers.
//
// Ordering is dispatch-first: commands are published before the instance is
// created, and the event is acknowledged only once creation succeeds. A
// partial dispatch therefore leaves no instance behind, so the unacked event
// is redelivered and every command is re-published; workers and the
// task-completed path are idempotent under those duplicates. Conversely a
// redelivery that finds the instance already created is acknowledged without
// re-dispatching anything.
func (o *Orchestrator) HandleJobSubmitted(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	logr := logger.NewLoggerContext(o.logger.With("operation", "handle_job_submitted"))
	ctx, span := o.tracer.Start(ctx, "orchestrator.handle_job_submitted",
		trace.WithAttributes(attribute.String("event_key", evt.Key)))
	defer span.End()

	submitted, ok := evt.Payload.(lookup.JobSubmittedEvent)
	if !ok {
		err := fmt.Errorf("invalid event payload type: %T", evt.Payload)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid payload")
		return err
	}

	// The correlation id keys the instance; a malformed one cannot be
	// routed anywhere and faults the event.
	jobID, err := uuid.Parse(evt.Key)
	if err != nil {
		err = fmt.Errorf("malformed correlation id %q: %w", evt.Key, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed correlation id")
		return err
	}
	logr.Add("job_id", jobID.String())
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	services := lookup.DedupeServices(submitted.Services)

	// The service-to-command mapping must be exhaustive before anything is
	// dispatched. An unmapped service type is a configuration fault that
	// fails the whole submission, never a silent skip.
	for _, svc := range services {
		if _, err := lookup.CheckEventType(svc); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "unmapped service type")
			o.markJobFailed(ctx, logr, jobID)
			ack(nil)
			return fmt.Errorf("faulting job %s: %w", jobID, err)
		}
	}

	if _, err := o.stateRepo.GetState(ctx, jobID); err == nil {
		span.AddEvent("instance_already_exists")
		span.SetStatus(codes.Ok, "duplicate delivery ignored")
		logr.Debug(ctx, "orchestration instance exists, skipping dispatch")
		ack(nil)
		return nil
	} else if !errors.Is(err, lookup.ErrStateNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "state read failed")
		return fmt.Errorf("reading state for %s: %w", jobID, err)
	}

	target := lookup.ReconstructTarget(submitted.Target, submitted.TargetKind)

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		svc := svc
		g.Go(func() error {
			cmd := lookup.NewCheckCommand(jobID, svc, target)
			if err := o.publisher.PublishDomainEvent(gctx, cmd, events.WithKey(jobID.String())); err != nil {
				return fmt.Errorf("dispatching %s command: %w", svc, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Not acked: the whole fan-out is retried on redelivery.
		span.RecordError(err)
		span.SetStatus(codes.Error, "command dispatch failed")
		return fmt.Errorf("dispatch for job %s: %w", jobID, err)
	}
	span.AddEvent("commands_dispatched", trace.WithAttributes(attribute.Int("count", len(services))))

	state, err := lookup.NewOrchestrationState(jobID, services)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid orchestration state")
		o.markJobFailed(ctx, logr, jobID)
		ack(nil)
		return fmt.Errorf("faulting job %s: %w", jobID, err)
	}

	if err := o.stateRepo.CreateState(ctx, state); err != nil {
		if errors.Is(err, lookup.ErrStateExists) {
			// A concurrent delivery won creation; its dispatch set stands.
			span.AddEvent("instance_created_concurrently")
			span.SetStatus(codes.Ok, "duplicate delivery ignored")
			ack(nil)
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "state create failed")
		return fmt.Errorf("creating state for %s: %w", jobID, err)
	}

	o.transitionJob(ctx, logr, jobID, lookup.JobStatusProcessing)

	span.AddEvent("instance_created")
	span.SetStatus(codes.Ok, "job processing")
	logr.Info(ctx, "job processing", "services", len(services))
	ack(nil)
	return nil
}

// HandleTaskCompleted folds one worker's completion notification into the
// job's orchestration state. The whole read-apply-write is retried with
// backoff on stale-version conflicts; metadata recording is last-write-wins
// and the pending-to-completed set move is a no-op for unknown or already
// completed services, so duplicate deliveries are harmless.
func (o *Orchestrator) HandleTaskCompleted(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	logr := logger.NewLoggerContext(o.logger.With("operation", "handle_task_completed"))
	ctx, span := o.tracer.Start(ctx, "orchestrator.handle_task_completed",
		trace.WithAttributes(attribute.String("event_key", evt.Key)))
	defer span.End()

	completed, ok := evt.Payload.(lookup.TaskCompletedEvent)
	if !ok {
		err := fmt.Errorf("invalid event payload type: %T", evt.Payload)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid payload")
		return err
	}

	jobID := completed.JobID
	logr.Add("job_id", jobID.String(), "service_type", completed.ServiceType.String(), "success", completed.Success)
	span.SetAttributes(
		attribute.String("job_id", jobID.String()),
		attribute.String("service_type", completed.ServiceType.String()),
		attribute.Bool("success", completed.Success),
	)

	md := lookup.TaskMetadata{
		Success:        completed.Success,
		Duration:       completed.Duration,
		CompletedAt:    time.Now().UTC(),
		ErrorMessage:   completed.ErrorMessage,
		ResultLocation: completed.Location,
	}

	var finalized bool
	apply := func() error {
		finalized = false
		state, err := o.stateRepo.GetState(ctx, jobID)
		if err != nil {
			if errors.Is(err, lookup.ErrStateNotFound) {
				return backoff.Permanent(err)
			}
			return backoff.Permanent(fmt.Errorf("reading state for %s: %w", jobID, err))
		}

		if state.IsCompleted() {
			// Terminal instance; a late or duplicate notification is
			// treated as satisfied.
			return nil
		}

		finalized = state.ApplyTaskCompleted(completed.ServiceType, md)

		if err := o.stateRepo.UpdateState(ctx, state); err != nil {
			if errors.Is(err, lookup.ErrVersionConflict) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("updating state for %s: %w", jobID, err))
		}
		return nil
	}

	if err := backoff.Retry(apply, o.newStateBackoff(ctx)); err != nil {
		if errors.Is(err, lookup.ErrStateNotFound) {
			return o.handleMissingInstance(ctx, span, logr, jobID, ack)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "state update failed")
		return fmt.Errorf("applying task completion for %s/%s: %w", jobID, completed.ServiceType, err)
	}

	if finalized {
		o.transitionJob(ctx, logr, jobID, lookup.JobStatusCompleted)
		span.AddEvent("job_finalized")
		logr.Info(ctx, "job completed")
	}

	span.SetStatus(codes.Ok, "task completion applied")
	logr.Debug(ctx, "task completion applied")
	ack(nil)
	return nil
}

// handleMissingInstance decides what a task-completed notification means when
// no orchestration instance exists. Commands are dispatched before the
// instance is created, so a fast worker can legitimately report early; that
// notification must be redelivered until the instance appears. Once the job
// itself is terminal or gone, the instance was finalized and reaped and the
// notification is acknowledged as satisfied.
func (o *Orchestrator) handleMissingInstance(
	ctx context.Context,
	span trace.Span,
	logr *logger.LoggerContext,
	jobID uuid.UUID,
	ack events.AckFunc,
) error {
	job, err := o.jobRepo.GetJob(ctx, jobID)
	if errors.Is(err, lookup.ErrJobNotFound) || (err == nil && job.Status().IsTerminal()) {
		span.AddEvent("instance_reaped")
		span.SetStatus(codes.Ok, "late notification ignored")
		logr.Debug(ctx, "orchestration instance reaped, ignoring notification")
		ack(nil)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job read failed")
		return fmt.Errorf("reading job %s: %w", jobID, err)
	}

	err = fmt.Errorf("orchestration instance for %s not created yet", jobID)
	span.RecordError(err)
	span.SetStatus(codes.Error, "instance not ready")
	return err
}

// markJobFailed moves the job record to Failed after a dispatch fault.
// Best effort: the fault is already the authoritative outcome and the
// reconciler tolerates a stale job status.
func (o *Orchestrator) markJobFailed(ctx context.Context, logr *logger.LoggerContext, jobID uuid.UUID) {
	o.transitionJob(ctx, logr, jobID, lookup.JobStatusFailed)
}

// transitionJob updates the coarse job status, stepping through Processing
// first when the target is terminal and the job is still Pending. Failures
// are logged, not propagated: orchestration state is authoritative and the
// job record is advisory for readers.
func (o *Orchestrator) transitionJob(ctx context.Context, logr *logger.LoggerContext, jobID uuid.UUID, target lookup.JobStatus) {
	job, err := o.jobRepo.GetJob(ctx, jobID)
	if err != nil {
		logr.Warn(ctx, "job record unavailable for status transition", "target_status", target, "error", err)
		return
	}
	if job.Status() == target || job.Status().IsTerminal() {
		return
	}

	if job.Status() == lookup.JobStatusPending && target == lookup.JobStatusCompleted {
		if err := job.UpdateStatus(lookup.JobStatusProcessing); err != nil {
			logr.Warn(ctx, "job status transition rejected", "target_status", lookup.JobStatusProcessing, "error", err)
			return
		}
	}
	if err := job.UpdateStatus(target); err != nil {
		logr.Warn(ctx, "job status transition rejected", "target_status", target, "error", err)
		return
	}
	if err := o.jobRepo.SaveJob(ctx, job); err != nil {
		logr.Warn(ctx, "job status persist failed", "target_status", target, "error", err)
	}
}
