// Package memory provides in-memory implementations of the lookup storage
// ports. They are safe for concurrent use and intended for tests and
// development environments where persistence is not required.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/netscout/internal/domain/lookup"
)

var _ lookup.JobRepository = (*JobStore)(nil)

// JobStore is an in-memory lookup.JobRepository.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*lookup.Job
}

// NewJobStore creates an empty in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*lookup.Job)}
}

// SaveJob stores a snapshot of the job, overwriting any prior version.
func (s *JobStore) SaveJob(ctx context.Context, job *lookup.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID()] = snapshotJob(job)
	return nil
}

// GetJob retrieves a copy of the stored job.
func (s *JobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*lookup.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, lookup.ErrJobNotFound
	}
	return snapshotJob(job), nil
}

// snapshotJob copies a job so callers never share aggregate state with the
// store.
func snapshotJob(job *lookup.Job) *lookup.Job {
	completedAt, _ := job.CompletedAt()
	return lookup.ReconstructJob(
		job.JobID(),
		job.Target(),
		job.Services(),
		job.Status(),
		job.CreatedAt(),
		completedAt,
	)
}
