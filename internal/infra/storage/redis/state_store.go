package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/netscout/internal/domain/lookup"
	"github.com/ahrav/netscout/internal/infra/storage"
)

const stateKeyPrefix = "orchestration:"

var _ lookup.StateRepository = (*stateStore)(nil)

// stateStore implements lookup.StateRepository using Redis. Updates use
// WATCH-based optimistic transactions keyed on the instance's version
// counter: a write that targets a stale version is rejected with
// lookup.ErrVersionConflict and the caller re-reads and retries. That keeps
// each instance's transitions serial without any long-held lock.
//
// Finalized instances aren't deleted; finalization shortens the record's TTL
// so it is reaped soon after, and readers fall back to result counts once it
// is gone.
type stateStore struct {
	client       redis.UniversalClient
	ttl          time.Duration
	finalizedTTL time.Duration
	tracer       trace.Tracer
}

// NewStateStore creates a Redis-backed orchestration state repository.
// ttl bounds in-flight instances; finalizedTTL, typically much shorter,
// applies once an instance completes.
func NewStateStore(client redis.UniversalClient, ttl, finalizedTTL time.Duration, tracer trace.Tracer) *stateStore {
	return &stateStore{client: client, ttl: ttl, finalizedTTL: finalizedTTL, tracer: tracer}
}

// stateRecord is the persisted form of a lookup.OrchestrationState.
type stateRecord struct {
	JobID       string                                       `json:"jobId"`
	Status      string                                       `json:"status"`
	Requested   []string                                     `json:"requested"`
	Pending     []string                                     `json:"pending"`
	Completed   []string                                     `json:"completed"`
	Tasks       map[lookup.ServiceType]lookup.TaskMetadata   `json:"tasks"`
	CreatedAt   time.Time                                    `json:"createdAt"`
	CompletedAt *time.Time                                   `json:"completedAt,omitempty"`
	Version     int64                                        `json:"version"`
}

// CreateState stores a brand-new instance. Creation is first-writer-wins
// (SETNX) so a redelivered job-submitted event cannot reset an instance that
// already made progress.
func (s *stateStore) CreateState(ctx context.Context, state *lookup.OrchestrationState) error {
	attrs := append(defaultDBAttributes, attribute.String("job_id", state.JobID().String()))

	return storage.ExecuteAndTrace(ctx, s.tracer, "redis.create_state", attrs, func(ctx context.Context) error {
		data, err := json.Marshal(stateToRecord(state, 1))
		if err != nil {
			return fmt.Errorf("marshal state record: %w", err)
		}

		ok, err := s.client.SetNX(ctx, stateKeyPrefix+state.JobID().String(), data, s.ttl).Result()
		if err != nil {
			return fmt.Errorf("redis setnx: %w", err)
		}
		if !ok {
			return fmt.Errorf("create state %s: %w", state.JobID(), lookup.ErrStateExists)
		}
		return nil
	})
}

// GetState retrieves the instance for a correlation id.
func (s *stateStore) GetState(ctx context.Context, jobID uuid.UUID) (*lookup.OrchestrationState, error) {
	attrs := append(defaultDBAttributes, attribute.String("job_id", jobID.String()))

	var state *lookup.OrchestrationState
	err := storage.ExecuteAndTrace(ctx, s.tracer, "redis.get_state", attrs, func(ctx context.Context) error {
		data, err := s.client.Get(ctx, stateKeyPrefix+jobID.String()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return lookup.ErrStateNotFound
			}
			return fmt.Errorf("redis get: %w", err)
		}

		var rec stateRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("unmarshal state record: %w", err)
		}

		state, err = recordToState(rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// UpdateState writes the mutated instance conditionally on the caller's
// loaded version still being current. The check-and-set runs inside a WATCH
// transaction, so a concurrent writer aborts the pipeline and the conflict
// surfaces as lookup.ErrVersionConflict.
func (s *stateStore) UpdateState(ctx context.Context, state *lookup.OrchestrationState) error {
	attrs := append(defaultDBAttributes,
		attribute.String("job_id", state.JobID().String()),
		attribute.Int64("version", state.Version()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "redis.update_state", attrs, func(ctx context.Context) error {
		key := stateKeyPrefix + state.JobID().String()

		txf := func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return lookup.ErrStateNotFound
				}
				return fmt.Errorf("redis get: %w", err)
			}

			var current stateRecord
			if err := json.Unmarshal(data, &current); err != nil {
				return fmt.Errorf("unmarshal state record: %w", err)
			}
			if current.Version != state.Version() {
				return fmt.Errorf("stored version %d, loaded version %d: %w",
					current.Version, state.Version(), lookup.ErrVersionConflict)
			}

			next, err := json.Marshal(stateToRecord(state, state.Version()+1))
			if err != nil {
				return fmt.Errorf("marshal state record: %w", err)
			}

			ttl := s.ttl
			if state.IsCompleted() {
				ttl = s.finalizedTTL
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, ttl)
				return nil
			})
			return err
		}

		if err := s.client.Watch(ctx, txf, key); err != nil {
			if errors.Is(err, redis.TxFailedErr) {
				// Another writer touched the key between read and write.
				return fmt.Errorf("update state %s: %w", state.JobID(), lookup.ErrVersionConflict)
			}
			return err
		}
		return nil
	})
}

func stateToRecord(state *lookup.OrchestrationState, version int64) stateRecord {
	rec := stateRecord{
		JobID:     state.JobID().String(),
		Status:    state.Status().String(),
		Tasks:     state.AllTaskMetadata(),
		CreatedAt: state.CreatedAt(),
		Version:   version,
	}
	for _, svc := range state.Requested() {
		rec.Requested = append(rec.Requested, svc.String())
	}
	for _, svc := range state.Pending() {
		rec.Pending = append(rec.Pending, svc.String())
	}
	for _, svc := range state.Completed() {
		rec.Completed = append(rec.Completed, svc.String())
	}
	if completedAt, ok := state.CompletedAt(); ok {
		rec.CompletedAt = &completedAt
	}
	return rec
}

func recordToState(rec stateRecord) (*lookup.OrchestrationState, error) {
	id, err := uuid.Parse(rec.JobID)
	if err != nil {
		return nil, fmt.Errorf("parse stored correlation id: %w", err)
	}
	status, err := lookup.ParseOrchestrationStatus(rec.Status)
	if err != nil {
		return nil, fmt.Errorf("parse stored status: %w", err)
	}

	toServices := func(raw []string) ([]lookup.ServiceType, error) {
		out := make([]lookup.ServiceType, 0, len(raw))
		for _, r := range raw {
			svc, err := lookup.ParseServiceType(r)
			if err != nil {
				return nil, err
			}
			out = append(out, svc)
		}
		return out, nil
	}

	requested, err := toServices(rec.Requested)
	if err != nil {
		return nil, fmt.Errorf("parse stored requested set: %w", err)
	}
	pending, err := toServices(rec.Pending)
	if err != nil {
		return nil, fmt.Errorf("parse stored pending set: %w", err)
	}
	completed, err := toServices(rec.Completed)
	if err != nil {
		return nil, fmt.Errorf("parse stored completed set: %w", err)
	}

	var completedAt time.Time
	if rec.CompletedAt != nil {
		completedAt = *rec.CompletedAt
	}

	return lookup.ReconstructOrchestrationState(
		id, status, requested, pending, completed,
		rec.Tasks, rec.CreatedAt, completedAt, rec.Version,
	), nil
}
