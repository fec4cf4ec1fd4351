// Package status implements the read-side reconciler that merges the job
// record, the orchestration state, and per-service result data into one
// client-facing status view.
package status

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/netscout/internal/domain/lookup"
	"github.com/ahrav/netscout/pkg/common/logger"
)

// defaultFetchTimeout bounds each per-service result read. A slow result
// store degrades one entry to a warning instead of blocking the request.
const defaultFetchTimeout = 2 * time.Second

// Reconciler produces the merged status view for a job. The three stores it
// reads are updated independently without a shared transaction, so the view
// is eventually consistent: the job record is the existence check, the
// orchestration state is authoritative for progress while it lives, and
// result counts stand in for it after it has been reaped.
//
// Reads are side-effect free and safe to run with unbounded concurrency.
type Reconciler struct {
	jobRepo   lookup.JobRepository
	stateRepo lookup.StateRepository
	resolver  lookup.StoreResolver

	fetchTimeout time.Duration

	logger *logger.Logger
	tracer trace.Tracer
}

// NewReconciler assembles a reconciler from its read-side ports.
func NewReconciler(
	jobRepo lookup.JobRepository,
	stateRepo lookup.StateRepository,
	resolver lookup.StoreResolver,
	log *logger.Logger,
	tracer trace.Tracer,
) *Reconciler {
	return &Reconciler{
		jobRepo:      jobRepo,
		stateRepo:    stateRepo,
		resolver:     resolver,
		fetchTimeout: defaultFetchTimeout,
		logger:       log.With("component", "status_reconciler"),
		tracer:       tracer,
	}
}

// JobStatus returns the reconciled view for a job id, or
// lookup.ErrJobNotFound when no job record exists. Orphaned result records
// without a job record are not authoritative and still yield not-found.
func (r *Reconciler) JobStatus(ctx context.Context, jobID uuid.UUID) (*lookup.JobStatusView, error) {
	logr := logger.NewLoggerContext(r.logger.With("operation", "job_status", "job_id", jobID.String()))
	ctx, span := r.tracer.Start(ctx, "status_reconciler.job_status",
		trace.WithAttributes(attribute.String("job_id", jobID.String())))
	defer span.End()

	job, err := r.jobRepo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, lookup.ErrJobNotFound) {
			span.AddEvent("job_not_found")
			span.SetStatus(codes.Ok, "job not found")
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "job read failed")
		return nil, fmt.Errorf("reading job %s: %w", jobID, err)
	}

	view := &lookup.JobStatusView{
		JobID:      jobID.String(),
		Target:     job.Target().Value(),
		TargetKind: job.Target().Kind(),
		Services:   job.Services(),
		CreatedAt:  job.CreatedAt(),
	}

	// The orchestration record may be gone: reaped after finalization or
	// not yet created. Either way the view is derived without it.
	state, err := r.stateRepo.GetState(ctx, jobID)
	if err != nil {
		if !errors.Is(err, lookup.ErrStateNotFound) {
			view.Warnings = append(view.Warnings, fmt.Sprintf("orchestration state unavailable: %v", err))
			logr.Warn(ctx, "orchestration state read degraded", "error", err)
		}
		state = nil
	}
	span.SetAttributes(attribute.Bool("state_present", state != nil))

	results, warnings := r.fetchResults(ctx, jobID, job.Services(), state)
	view.Results = results
	view.Warnings = append(view.Warnings, warnings...)

	r.deriveStatus(view, job, state)
	r.deriveCompletedAt(view, job, state)

	span.SetAttributes(
		attribute.String("status", view.Status.String()),
		attribute.Float64("completion_percent", view.CompletionPercent),
		attribute.Int("warnings", len(view.Warnings)),
	)
	span.SetStatus(codes.Ok, "status reconciled")
	logr.Debug(ctx, "status reconciled", "status", view.Status, "percent", view.CompletionPercent)
	return view, nil
}

// fetchResults reads every requested service's result payload in parallel.
// A failed fetch for one service becomes a warning, never an error for the
// whole request; an absent result is simply omitted.
func (r *Reconciler) fetchResults(
	ctx context.Context,
	jobID uuid.UUID,
	services []lookup.ServiceType,
	state *lookup.OrchestrationState,
) (map[lookup.ServiceType]lookup.ServiceResultView, []string) {
	var mu sync.Mutex
	results := make(map[lookup.ServiceType]lookup.ServiceResultView, len(services))
	var warnings []string

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		svc := svc
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, r.fetchTimeout)
			defer cancel()

			result, err := r.resolveReader(svc, state).GetResult(fetchCtx, jobID, svc)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				results[svc] = lookup.ServiceResultView{
					ServiceType:  svc,
					Success:      result.Success,
					Duration:     result.Duration,
					CompletedAt:  result.CompletedAt,
					ErrorMessage: result.ErrorMessage,
					Payload:      result.Payload,
				}
			case errors.Is(err, lookup.ErrNoResultData):
				// Not yet written or already expired; nothing to report.
			default:
				warnings = append(warnings, fmt.Sprintf("%s result unavailable: %v", svc, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(warnings)
	return results, warnings
}

// resolveReader picks the store to read one service's payload from. When the
// orchestration state still holds the task's result location, the store is
// resolved by the location's storage-type tag; otherwise the default store
// is used, since workers write there.
func (r *Reconciler) resolveReader(svc lookup.ServiceType, state *lookup.OrchestrationState) lookup.ResultReader {
	if state != nil {
		if md, ok := state.TaskMetadata(svc); ok && md.ResultLocation != nil {
			if store, err := r.resolver.Resolve(md.ResultLocation.StorageType); err == nil {
				return store
			}
			return failingReader{err: fmt.Errorf("%w: %s", lookup.ErrStoreNotRegistered, md.ResultLocation.StorageType)}
		}
	}
	return r.resolver.Default()
}

// failingReader surfaces a resolution failure through the normal fetch path
// so it degrades to a warning like any other read error.
type failingReader struct{ err error }

func (f failingReader) GetResult(context.Context, uuid.UUID, lookup.ServiceType) (*lookup.WorkerResult, error) {
	return nil, f.err
}

// deriveStatus fills in the coarse status and completion percentage. The
// orchestration state is authoritative while it exists; otherwise the status
// is inferred from how many results could be fetched versus how many were
// requested.
func (r *Reconciler) deriveStatus(view *lookup.JobStatusView, job *lookup.Job, state *lookup.OrchestrationState) {
	requested := len(job.Services())

	if state != nil {
		switch state.Status() {
		case lookup.OrchestrationStatusCompleted:
			view.Status = lookup.JobStatusCompleted
		default:
			view.Status = lookup.JobStatusProcessing
		}
		view.CompletionPercent = percent(state.CompletedCount(), len(state.Requested()))
		return
	}

	// A job faulted at dispatch never had an instance; its own terminal
	// status is the only record of the fault.
	if job.Status() == lookup.JobStatusFailed {
		view.Status = lookup.JobStatusFailed
		view.CompletionPercent = percent(len(view.Results), requested)
		return
	}

	switch fetched := len(view.Results); {
	case fetched == 0:
		view.Status = lookup.JobStatusPending
	case fetched < requested:
		view.Status = lookup.JobStatusProcessing
	default:
		view.Status = lookup.JobStatusCompleted
	}
	view.CompletionPercent = percent(len(view.Results), requested)
}

// deriveCompletedAt resolves the completion timestamp across its fallback
// chain: orchestration state, then the job record, then the latest result
// timestamp when every requested service has reported.
func (r *Reconciler) deriveCompletedAt(view *lookup.JobStatusView, job *lookup.Job, state *lookup.OrchestrationState) {
	if state != nil {
		if ts, ok := state.CompletedAt(); ok {
			view.CompletedAt = &ts
		}
		return
	}

	if ts, ok := job.CompletedAt(); ok {
		view.CompletedAt = &ts
		return
	}

	if len(view.Results) < len(job.Services()) || len(view.Results) == 0 {
		return
	}
	var latest time.Time
	for _, res := range view.Results {
		if res.CompletedAt.After(latest) {
			latest = res.CompletedAt
		}
	}
	view.CompletedAt = &latest
}

func percent(completed, requested int) float64 {
	if requested == 0 {
		return 0
	}
	return float64(completed) / float64(requested) * 100
}
