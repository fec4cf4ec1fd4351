// Package orchestration hosts the correlation state machine that tracks a
// lookup job from submission to completion. One logical instance exists per
// job id; all coordination between workers happens through the instance's
// pending/completed sets, never through direct worker-to-worker calls.
package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/internal/domain/lookup"
	"github.com/ahrav/netscout/pkg/common/logger"
)

// Orchestrator owns the lifecycle of lookup jobs: it creates job records on
// submission, fans check commands out to workers, and folds task-completed
// notifications into the per-job orchestration state until the job
// finalizes.
//
// State mutations are persisted with optimistic concurrency: every write is
// conditional on the version that was read, and a conflicting write is
// recovered locally by re-reading and retrying. The orchestrator performs no
// external I/O besides command publishing and its own state persistence; it
// never touches the result store.
type Orchestrator struct {
	jobRepo   lookup.JobRepository
	stateRepo lookup.StateRepository
	publisher events.DomainEventPublisher

	// maxConflictRetries bounds the re-read-and-retry loop on stale-version
	// writes. Contention per job id tops out at the number of requested
	// services, so a small bound suffices.
	maxConflictRetries uint64

	logger *logger.Logger
	tracer trace.Tracer
}

// NewOrchestrator assembles an orchestrator from its collaborator ports.
func NewOrchestrator(
	jobRepo lookup.JobRepository,
	stateRepo lookup.StateRepository,
	publisher events.DomainEventPublisher,
	log *logger.Logger,
	tracer trace.Tracer,
) *Orchestrator {
	return &Orchestrator{
		jobRepo:            jobRepo,
		stateRepo:          stateRepo,
		publisher:          publisher,
		maxConflictRetries: 10,
		logger:             log.With("component", "orchestrator"),
		tracer:             tracer,
	}
}

// Submit validates the target and requested services, creates the job record
// in Pending, and publishes a JobSubmitted event keyed by the job id.
// Validation failures are returned synchronously; no job record is created
// for them.
func (o *Orchestrator) Submit(ctx context.Context, rawTarget string, serviceNames []string) (uuid.UUID, error) {
	logr := logger.NewLoggerContext(o.logger.With("operation", "submit", "target", rawTarget))
	ctx, span := o.tracer.Start(ctx, "orchestrator.submit",
		trace.WithAttributes(
			attribute.String("target", rawTarget),
			attribute.StringSlice("services", serviceNames),
		))
	defer span.End()

	target, err := lookup.NewTarget(rawTarget)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid target")
		return uuid.Nil, fmt.Errorf("invalid target: %w", err)
	}

	services := make([]lookup.ServiceType, 0, len(serviceNames))
	for _, name := range serviceNames {
		svc, err := lookup.ParseServiceType(name)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "unsupported service")
			return uuid.Nil, fmt.Errorf("unsupported service: %w", err)
		}
		services = append(services, svc)
	}

	jobID := uuid.New()
	logr.Add("job_id", jobID.String())
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	job, err := lookup.NewJob(jobID, target, services)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid job")
		return uuid.Nil, fmt.Errorf("creating job: %w", err)
	}

	if err := o.jobRepo.SaveJob(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job save failed")
		return uuid.Nil, fmt.Errorf("saving job %s: %w", jobID, err)
	}
	span.AddEvent("job_record_created")

	evt := lookup.NewJobSubmittedEvent(jobID, target, job.Services())
	if err := o.publisher.PublishDomainEvent(ctx, evt, events.WithKey(jobID.String())); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return uuid.Nil, fmt.Errorf("publishing job submitted event for %s: %w", jobID, err)
	}

	span.AddEvent("job_submitted_event_published")
	span.SetStatus(codes.Ok, "job submitted")
	logr.Info(ctx, "job submitted")
	return jobID, nil
}

func (o *Orchestrator) newStateBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(bo, o.maxConflictRetries), ctx)
}
