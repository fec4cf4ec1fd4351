package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/netscout/internal/domain/lookup"
)

var _ lookup.StateRepository = (*StateStore)(nil)

// StateStore is an in-memory lookup.StateRepository with the same
// optimistic-concurrency semantics as the redis implementation: updates are
// conditional on the version the caller loaded, and stale writes are
// rejected with lookup.ErrVersionConflict.
type StateStore struct {
	mu     sync.Mutex
	states map[uuid.UUID]*lookup.OrchestrationState
}

// NewStateStore creates an empty in-memory orchestration state store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[uuid.UUID]*lookup.OrchestrationState)}
}

// CreateState stores a brand-new instance, first-writer-wins.
func (s *StateStore) CreateState(ctx context.Context, state *lookup.OrchestrationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.states[state.JobID()]; exists {
		return fmt.Errorf("create state %s: %w", state.JobID(), lookup.ErrStateExists)
	}
	s.states[state.JobID()] = snapshotState(state, 1)
	return nil
}

// GetState retrieves a copy of the stored instance.
func (s *StateStore) GetState(ctx context.Context, jobID uuid.UUID) (*lookup.OrchestrationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[jobID]
	if !ok {
		return nil, lookup.ErrStateNotFound
	}
	return snapshotState(state, state.Version()), nil
}

// UpdateState writes the mutated instance if the caller's loaded version is
// still current, bumping the version on success.
func (s *StateStore) UpdateState(ctx context.Context, state *lookup.OrchestrationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.states[state.JobID()]
	if !ok {
		return lookup.ErrStateNotFound
	}
	if current.Version() != state.Version() {
		return fmt.Errorf("update state %s: %w", state.JobID(), lookup.ErrVersionConflict)
	}
	s.states[state.JobID()] = snapshotState(state, state.Version()+1)
	return nil
}

// Delete removes an instance, simulating post-finalization reaping in tests.
func (s *StateStore) Delete(jobID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, jobID)
}

func snapshotState(state *lookup.OrchestrationState, version int64) *lookup.OrchestrationState {
	completedAt, _ := state.CompletedAt()
	return lookup.ReconstructOrchestrationState(
		state.JobID(),
		state.Status(),
		state.Requested(),
		state.Pending(),
		state.Completed(),
		state.AllTaskMetadata(),
		state.CreatedAt(),
		completedAt,
		version,
	)
}
