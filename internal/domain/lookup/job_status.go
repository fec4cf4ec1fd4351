package lookup

import "fmt"

// JobStatus represents the coarse state of a lookup job. It tracks the job
// lifecycle from submission through completion or failure.
type JobStatus string

const (
	// JobStatusPending indicates a job has been created but no commands have
	// been dispatched for it yet.
	JobStatusPending JobStatus = "PENDING"

	// JobStatusProcessing indicates commands have been dispatched and the job
	// is waiting on task completions.
	JobStatusProcessing JobStatus = "PROCESSING"

	// JobStatusCompleted indicates all requested services have reported.
	// Per-service failures still terminate here; partial success is a normal
	// terminal state.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusFailed indicates the job itself faulted, e.g. command
	// dispatch could not complete.
	JobStatusFailed JobStatus = "FAILED"
)

func (s JobStatus) String() string { return string(s) }

// ParseJobStatus converts a string to a JobStatus.
// An unrecognized value yields the empty (unspecified) status.
func ParseJobStatus(s string) JobStatus {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return JobStatus(s)
	default:
		return ""
	}
}

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ValidateTransition checks if a status transition is valid and returns an
// error if not. Transitions are monotonic; there are no reverse edges.
func (s JobStatus) ValidateTransition(target JobStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid job status transition from %s to %s", s, target)
	}
	return nil
}

func (s JobStatus) isValidTransition(target JobStatus) bool {
	switch s {
	case JobStatusPending:
		return target == JobStatusProcessing || target == JobStatusFailed
	case JobStatusProcessing:
		return target == JobStatusCompleted || target == JobStatusFailed
	case JobStatusCompleted, JobStatusFailed:
		return false
	default:
		return false
	}
}
