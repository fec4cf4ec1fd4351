package lookup

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors shared by every storage implementation.
var (
	// ErrJobNotFound indicates no job record exists for the given id.
	ErrJobNotFound = errors.New("job not found")

	// ErrStateNotFound indicates no orchestration state exists for the given
	// correlation id. Readers must tolerate this: the instance may have been
	// reaped after finalization or not yet created.
	ErrStateNotFound = errors.New("orchestration state not found")

	// ErrStateExists indicates an orchestration instance already exists for
	// the correlation id. Creation is first-writer-wins so redelivered
	// job-submitted events cannot corrupt pending/completed sets.
	ErrStateExists = errors.New("orchestration state already exists")

	// ErrNoResultData indicates no worker result is stored for the
	// (job id, service type) pair.
	ErrNoResultData = errors.New("no result data")

	// ErrVersionConflict indicates a compare-and-swap write targeted a stale
	// version. The caller recovers locally by re-reading and retrying; this
	// is never surfaced past the orchestrator.
	ErrVersionConflict = errors.New("orchestration state version conflict")

	// ErrStoreNotRegistered indicates a result location named a storage type
	// the resolver has no store for. Failing fast here preserves the
	// type-safety the location contract depends on.
	ErrStoreNotRegistered = errors.New("no result store registered for storage type")
)

// JobRepository persists job metadata records.
type JobRepository interface {
	// SaveJob writes the job record, overwriting any prior version.
	SaveJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by id. Returns ErrJobNotFound if absent or
	// expired.
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)
}

// StateRepository persists orchestration state with optimistic concurrency.
type StateRepository interface {
	// CreateState stores a brand-new instance. Returns ErrStateExists when
	// an instance for the correlation id is already present.
	CreateState(ctx context.Context, state *OrchestrationState) error

	// GetState retrieves the instance for a correlation id. Returns
	// ErrStateNotFound if absent.
	GetState(ctx context.Context, jobID uuid.UUID) (*OrchestrationState, error)

	// UpdateState writes a mutated instance conditionally on its loaded
	// version still being current. Returns ErrVersionConflict on a stale
	// write so the caller can re-read and retry.
	UpdateState(ctx context.Context, state *OrchestrationState) error
}

// ResultStore persists worker outcomes and hands back opaque locations.
type ResultStore interface {
	ResultReader

	// StorageType tags the locations this store produces.
	StorageType() StorageType

	// SaveResult persists a successful probe outcome under the deterministic
	// composite key for (jobID, svc) and returns its location.
	SaveResult(ctx context.Context, jobID uuid.UUID, svc ServiceType, payload map[string]any, duration time.Duration) (ResultLocation, error)

	// SaveFailure persists a failed outcome the same way.
	SaveFailure(ctx context.Context, jobID uuid.UUID, svc ServiceType, errorMessage string, duration time.Duration) (ResultLocation, error)
}

// ResultReader fetches worker result payloads.
type ResultReader interface {
	// GetResult retrieves the stored outcome for one (job id, service type)
	// pair. Returns ErrNoResultData if absent or expired.
	GetResult(ctx context.Context, jobID uuid.UUID, svc ServiceType) (*WorkerResult, error)
}

// StoreResolver maps a storage-type tag to the concrete store registered for
// it. Resolution fails fast for unregistered types; silent fallback would
// let a location be read against the wrong backend.
type StoreResolver interface {
	// Resolve returns the store registered for the storage type, or
	// ErrStoreNotRegistered.
	Resolve(storageType StorageType) (ResultStore, error)

	// Default returns the store new results should be written to.
	Default() ResultStore
}
