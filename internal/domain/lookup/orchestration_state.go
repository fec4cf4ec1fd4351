package lookup

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrchestrationStatus is the state tag of one orchestration instance.
type OrchestrationStatus string

const (
	// OrchestrationStatusProcessing is the initial state, entered when the
	// job-submitted event is consumed and commands are dispatched.
	OrchestrationStatusProcessing OrchestrationStatus = "PROCESSING"

	// OrchestrationStatusCompleted is terminal, entered when the pending
	// set empties.
	OrchestrationStatusCompleted OrchestrationStatus = "COMPLETED"
)

func (s OrchestrationStatus) String() string { return string(s) }

// ParseOrchestrationStatus converts a string to an OrchestrationStatus.
func ParseOrchestrationStatus(s string) (OrchestrationStatus, error) {
	switch OrchestrationStatus(s) {
	case OrchestrationStatusProcessing, OrchestrationStatusCompleted:
		return OrchestrationStatus(s), nil
	default:
		return "", fmt.Errorf("unknown orchestration status: %q", s)
	}
}

// OrchestrationState is the per-job correlation state machine. One instance
// exists per job, keyed by the job id, consuming task-completed notifications
// and deciding when the job is done.
//
// Invariants maintained by every mutation:
//   - pending ∪ completed == requested service set
//   - pending ∩ completed == ∅
//   - completedAt is set if and only if pending is empty
//
// Instances are logically single-threaded: callers must serialize mutations
// per job id, typically via optimistic-concurrency versioning on the
// persisted form. The aggregate itself performs no I/O.
type OrchestrationState struct {
	jobID     uuid.UUID
	status    OrchestrationStatus
	requested []ServiceType
	pending   map[ServiceType]struct{}
	completed map[ServiceType]struct{}
	tasks     map[ServiceType]TaskMetadata

	createdAt   time.Time
	completedAt time.Time

	// version supports compare-and-swap persistence. A write targeting a
	// stale version must be rejected by the repository and retried after a
	// re-read.
	version int64
}

// NewOrchestrationState creates the instance for a freshly submitted job
// with every requested service pending.
func NewOrchestrationState(jobID uuid.UUID, services []ServiceType) (*OrchestrationState, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("correlation id cannot be nil")
	}
	services = DedupeServices(services)
	if len(services) == 0 {
		return nil, fmt.Errorf("orchestration state needs at least one service")
	}

	pending := make(map[ServiceType]struct{}, len(services))
	for _, svc := range services {
		pending[svc] = struct{}{}
	}

	return &OrchestrationState{
		jobID:     jobID,
		status:    OrchestrationStatusProcessing,
		requested: services,
		pending:   pending,
		completed: make(map[ServiceType]struct{}),
		tasks:     make(map[ServiceType]TaskMetadata),
		createdAt: time.Now().UTC(),
	}, nil
}

// ReconstructOrchestrationState rebuilds an instance from stored fields,
// bypassing creation invariants. Only repositories should call this.
func ReconstructOrchestrationState(
	jobID uuid.UUID,
	status OrchestrationStatus,
	requested []ServiceType,
	pending []ServiceType,
	completed []ServiceType,
	tasks map[ServiceType]TaskMetadata,
	createdAt time.Time,
	completedAt time.Time,
	version int64,
) *OrchestrationState {
	pendingSet := make(map[ServiceType]struct{}, len(pending))
	for _, svc := range pending {
		pendingSet[svc] = struct{}{}
	}
	completedSet := make(map[ServiceType]struct{}, len(completed))
	for _, svc := range completed {
		completedSet[svc] = struct{}{}
	}
	if tasks == nil {
		tasks = make(map[ServiceType]TaskMetadata)
	}

	return &OrchestrationState{
		jobID:       jobID,
		status:      status,
		requested:   requested,
		pending:     pendingSet,
		completed:   completedSet,
		tasks:       tasks,
		createdAt:   createdAt,
		completedAt: completedAt,
		version:     version,
	}
}

// JobID returns the correlation id this instance is keyed by.
func (s *OrchestrationState) JobID() uuid.UUID { return s.jobID }

// Status returns the current state tag.
func (s *OrchestrationState) Status() OrchestrationStatus { return s.status }

// IsCompleted reports whether the instance reached its terminal state.
func (s *OrchestrationState) IsCompleted() bool {
	return s.status == OrchestrationStatusCompleted
}

// Requested returns the immutable requested service set in submission order.
func (s *OrchestrationState) Requested() []ServiceType {
	out := make([]ServiceType, len(s.requested))
	copy(out, s.requested)
	return out
}

// Pending returns the services still awaiting completion, in submission order.
func (s *OrchestrationState) Pending() []ServiceType {
	out := make([]ServiceType, 0, len(s.pending))
	for _, svc := range s.requested {
		if _, ok := s.pending[svc]; ok {
			out = append(out, svc)
		}
	}
	return out
}

// Completed returns the services that have reported, in submission order.
func (s *OrchestrationState) Completed() []ServiceType {
	out := make([]ServiceType, 0, len(s.completed))
	for _, svc := range s.requested {
		if _, ok := s.completed[svc]; ok {
			out = append(out, svc)
		}
	}
	return out
}

// PendingCount returns the number of services still awaiting completion.
func (s *OrchestrationState) PendingCount() int { return len(s.pending) }

// CompletedCount returns the number of services that have reported.
func (s *OrchestrationState) CompletedCount() int { return len(s.completed) }

// TaskMetadata returns the recorded metadata for one service.
func (s *OrchestrationState) TaskMetadata(svc ServiceType) (TaskMetadata, bool) {
	md, ok := s.tasks[svc]
	return md, ok
}

// AllTaskMetadata returns a copy of the full service → metadata mapping.
func (s *OrchestrationState) AllTaskMetadata() map[ServiceType]TaskMetadata {
	out := make(map[ServiceType]TaskMetadata, len(s.tasks))
	for svc, md := range s.tasks {
		out[svc] = md
	}
	return out
}

// CreatedAt returns when the instance was created.
func (s *OrchestrationState) CreatedAt() time.Time { return s.createdAt }

// CompletedAt returns when the pending set emptied. The bool is false while
// any service is still pending.
func (s *OrchestrationState) CompletedAt() (time.Time, bool) {
	if s.completedAt.IsZero() {
		return time.Time{}, false
	}
	return s.completedAt, true
}

// Version returns the optimistic-concurrency version of the loaded snapshot.
func (s *OrchestrationState) Version() int64 { return s.version }

// ApplyTaskCompleted records one task completion against the state machine
// and reports whether this event finalized the instance.
//
// Metadata for the service is overwritten unconditionally, which makes the
// write idempotent per service under duplicate delivery. Set membership only
// changes when the service was actually pending; a duplicate or unknown
// service type is a no-op for the pending/completed sets. When the pending
// set empties the instance transitions to Completed and stamps its
// completion time.
//
// Events arriving after the instance is terminal are ignored entirely.
func (s *OrchestrationState) ApplyTaskCompleted(svc ServiceType, md TaskMetadata) bool {
	if s.IsCompleted() {
		return false
	}

	s.tasks[svc] = md

	if _, ok := s.pending[svc]; ok {
		delete(s.pending, svc)
		s.completed[svc] = struct{}{}
	}

	if len(s.pending) == 0 {
		s.completedAt = time.Now().UTC()
		s.status = OrchestrationStatusCompleted
		return true
	}
	return false
}
