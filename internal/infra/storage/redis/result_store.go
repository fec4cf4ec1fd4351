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

const resultKeyPrefix = "result:"

var _ lookup.ResultStore = (*resultStore)(nil)

// resultStore implements lookup.ResultStore using Redis. Outcomes are keyed
// by the deterministic composite key for (job id, service type), so a
// redelivered command overwrites its own prior write instead of
// accumulating. Records expire on their own TTL, independent of the
// orchestration state's lifecycle.
type resultStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	tracer trace.Tracer
}

// NewResultStore creates a Redis-backed result store with the given payload
// TTL.
func NewResultStore(client redis.UniversalClient, ttl time.Duration, tracer trace.Tracer) *resultStore {
	return &resultStore{client: client, ttl: ttl, tracer: tracer}
}

// StorageType tags locations produced by this store.
func (s *resultStore) StorageType() lookup.StorageType { return lookup.StorageTypeRedis }

// SaveResult persists a successful probe outcome and returns its location.
func (s *resultStore) SaveResult(
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

// SaveFailure persists a failed outcome the same way.
func (s *resultStore) SaveFailure(
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

// GetResult retrieves the stored outcome for one (job, service) pair,
// returning lookup.ErrNoResultData once the record has expired.
func (s *resultStore) GetResult(ctx context.Context, jobID uuid.UUID, svc lookup.ServiceType) (*lookup.WorkerResult, error) {
	attrs := append(defaultDBAttributes,
		attribute.String("job_id", jobID.String()),
		attribute.String("service_type", svc.String()),
	)

	var result *lookup.WorkerResult
	err := storage.ExecuteAndTrace(ctx, s.tracer, "redis.get_result", attrs, func(ctx context.Context) error {
		key := resultKeyPrefix + lookup.ResultKey(jobID.String(), svc)
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return lookup.ErrNoResultData
			}
			return fmt.Errorf("redis get: %w", err)
		}

		var wr lookup.WorkerResult
		if err := json.Unmarshal(data, &wr); err != nil {
			return fmt.Errorf("unmarshal worker result: %w", err)
		}
		result = &wr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *resultStore) save(ctx context.Context, result *lookup.WorkerResult) (lookup.ResultLocation, error) {
	attrs := append(defaultDBAttributes,
		attribute.String("job_id", result.JobID),
		attribute.String("service_type", result.ServiceType.String()),
		attribute.Bool("success", result.Success),
	)

	var loc lookup.ResultLocation
	err := storage.ExecuteAndTrace(ctx, s.tracer, "redis.save_result", attrs, func(ctx context.Context) error {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal worker result: %w", err)
		}

		compositeKey := lookup.ResultKey(result.JobID, result.ServiceType)
		if err := s.client.Set(ctx, resultKeyPrefix+compositeKey, data, s.ttl).Err(); err != nil {
			return fmt.Errorf("redis set: %w", err)
		}

		expiresAt := time.Now().UTC().Add(s.ttl)
		loc = lookup.NewResultLocation(lookup.StorageTypeRedis, compositeKey, &expiresAt)
		return nil
	})
	if err != nil {
		return lookup.ResultLocation{}, err
	}
	return loc, nil
}
