package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/netscout/internal/domain/lookup"
)

var _ lookup.ResultStore = (*ResultStore)(nil)

// ResultStore is an in-memory lookup.ResultStore. Writes are keyed by the
// same deterministic composite key the redis store uses, so repeated writes
// for one (job, service) pair overwrite rather than accumulate.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]*lookup.WorkerResult
}

// NewResultStore creates an empty in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]*lookup.WorkerResult)}
}

// StorageType tags locations produced by this store.
func (s *ResultStore) StorageType() lookup.StorageType { return lookup.StorageTypeMemory }

// SaveResult persists a successful probe outcome.
func (s *ResultStore) SaveResult(
	ctx context.Context,
	jobID uuid.UUID,
	svc lookup.ServiceType,
	payload map[string]any,
	duration time.Duration,
) (lookup.ResultLocation, error) {
	return s.save(ctx, &lookup.WorkerResult{
		JobID:       jobID.String(),
		ServiceType: svc,
		Success:     true,
		Duration:    duration,
		CompletedAt: time.Now().UTC(),
		Payload:     payload,
	})
}

// SaveFailure persists a failed probe outcome.
func (s *ResultStore) SaveFailure(
	ctx context.Context,
	jobID uuid.UUID,
	svc lookup.ServiceType,
	errorMessage string,
	duration time.Duration,
) (lookup.ResultLocation, error) {
	return s.save(ctx, &lookup.WorkerResult{
		JobID:        jobID.String(),
		ServiceType:  svc,
		Success:      false,
		Duration:     duration,
		CompletedAt:  time.Now().UTC(),
		ErrorMessage: errorMessage,
	})
}

// GetResult retrieves the stored outcome for one (job, service) pair.
func (s *ResultStore) GetResult(ctx context.Context, jobID uuid.UUID, svc lookup.ServiceType) (*lookup.WorkerResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[lookup.ResultKey(jobID.String(), svc)]
	if !ok {
		return nil, lookup.ErrNoResultData
	}
	cp := *result
	return &cp, nil
}

// Delete removes a stored result, simulating TTL expiry in tests.
func (s *ResultStore) Delete(jobID uuid.UUID, svc lookup.ServiceType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, lookup.ResultKey(jobID.String(), svc))
}

func (s *ResultStore) save(ctx context.Context, result *lookup.WorkerResult) (lookup.ResultLocation, error) {
	if err := ctx.Err(); err != nil {
		return lookup.ResultLocation{}, err
	}

	key := lookup.ResultKey(result.JobID, result.ServiceType)
	s.mu.Lock()
	s.results[key] = result
	s.mu.Unlock()

	return lookup.NewResultLocation(lookup.StorageTypeMemory, key, nil), nil
}
