package lookup

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is one client-submitted lookup request spanning multiple services.
// It holds the coarse, client-facing view of the request; fine-grained
// per-task progress lives in the OrchestrationState keyed by the same id.
type Job struct {
	jobID       uuid.UUID
	target      Target
	services    []ServiceType
	status      JobStatus
	createdAt   time.Time
	completedAt time.Time
}

// NewJob creates a Job in the Pending state. The requested service set is
// deduplicated here and immutable afterwards; an empty set is rejected.
func NewJob(jobID uuid.UUID, target Target, services []ServiceType) (*Job, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("job id cannot be nil")
	}
	services = DedupeServices(services)
	if len(services) == 0 {
		return nil, fmt.Errorf("at least one service must be requested")
	}
	for _, svc := range services {
		if _, err := ParseServiceType(svc.String()); err != nil {
			return nil, fmt.Errorf("invalid requested service: %w", err)
		}
	}

	return &Job{
		jobID:     jobID,
		target:    target,
		services:  services,
		status:    JobStatusPending,
		createdAt: time.Now().UTC(),
	}, nil
}

// ReconstructJob creates a Job from stored fields, bypassing creation
// invariants. This should only be used by repositories when loading.
func ReconstructJob(
	jobID uuid.UUID,
	target Target,
	services []ServiceType,
	status JobStatus,
	createdAt time.Time,
	completedAt time.Time,
) *Job {
	return &Job{
		jobID:       jobID,
		target:      target,
		services:    services,
		status:      status,
		createdAt:   createdAt,
		completedAt: completedAt,
	}
}

// JobID returns the unique identifier for this job. It doubles as the
// correlation id routing task completions to the right orchestration
// instance.
func (j *Job) JobID() uuid.UUID { return j.jobID }

// Target returns the validated lookup target.
func (j *Job) Target() Target { return j.target }

// Services returns the requested service set. The returned slice is a copy;
// the set is immutable after creation.
func (j *Job) Services() []ServiceType {
	out := make([]ServiceType, len(j.services))
	copy(out, j.services)
	return out
}

// Status returns the coarse status of the job.
func (j *Job) Status() JobStatus { return j.status }

// CreatedAt returns when the job was submitted.
func (j *Job) CreatedAt() time.Time { return j.createdAt }

// CompletedAt returns when the job reached a terminal state. The bool is
// false while the job is still in flight.
func (j *Job) CompletedAt() (time.Time, bool) {
	if j.completedAt.IsZero() {
		return time.Time{}, false
	}
	return j.completedAt, true
}

// UpdateStatus changes the job's status after validating the transition.
// Transitioning to a terminal state stamps the completion time.
func (j *Job) UpdateStatus(newStatus JobStatus) error {
	if err := j.status.ValidateTransition(newStatus); err != nil {
		return err
	}
	if newStatus.IsTerminal() {
		j.completedAt = time.Now().UTC()
	}
	j.status = newStatus
	return nil
}
