// Package redis provides Redis-backed implementations of the lookup storage
// ports. Every record is TTL-bounded; nothing is deleted explicitly.
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

const jobKeyPrefix = "job:"

// defaultDBAttributes defines standard OpenTelemetry attributes for store
// operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "redis"),
}

var _ lookup.JobRepository = (*jobStore)(nil)

// jobStore implements lookup.JobRepository using Redis as the backing store.
// Job records expire after the configured TTL (hours-scale), which is the
// only deletion path the system has.
type jobStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	tracer trace.Tracer
}

// NewJobStore creates a Redis-backed job repository with tracing. ttl bounds
// how long job metadata outlives its submission.
func NewJobStore(client redis.UniversalClient, ttl time.Duration, tracer trace.Tracer) *jobStore {
	return &jobStore{client: client, ttl: ttl, tracer: tracer}
}

// jobRecord is the persisted form of a lookup.Job.
type jobRecord struct {
	JobID       string     `json:"jobId"`
	Target      string     `json:"target"`
	TargetKind  string     `json:"targetKind"`
	Services    []string   `json:"services"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// SaveJob writes the job record, refreshing its TTL.
func (s *jobStore) SaveJob(ctx context.Context, job *lookup.Job) error {
	attrs := append(defaultDBAttributes,
		attribute.String("job_id", job.JobID().String()),
		attribute.String("status", job.Status().String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "redis.save_job", attrs, func(ctx context.Context) error {
		rec := jobRecord{
			JobID:      job.JobID().String(),
			Target:     job.Target().Value(),
			TargetKind: job.Target().Kind().String(),
			Status:     job.Status().String(),
			CreatedAt:  job.CreatedAt(),
		}
		for _, svc := range job.Services() {
			rec.Services = append(rec.Services, svc.String())
		}
		if completedAt, ok := job.CompletedAt(); ok {
			rec.CompletedAt = &completedAt
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal job record: %w", err)
		}
		if err := s.client.Set(ctx, jobKeyPrefix+rec.JobID, data, s.ttl).Err(); err != nil {
			return fmt.Errorf("redis set: %w", err)
		}
		return nil
	})
}

// GetJob retrieves a job by id, returning lookup.ErrJobNotFound once the
// record has expired.
func (s *jobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*lookup.Job, error) {
	attrs := append(defaultDBAttributes, attribute.String("job_id", jobID.String()))

	var job *lookup.Job
	err := storage.ExecuteAndTrace(ctx, s.tracer, "redis.get_job", attrs, func(ctx context.Context) error {
		data, err := s.client.Get(ctx, jobKeyPrefix+jobID.String()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return lookup.ErrJobNotFound
			}
			return fmt.Errorf("redis get: %w", err)
		}

		var rec jobRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("unmarshal job record: %w", err)
		}

		job, err = recordToJob(rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func recordToJob(rec jobRecord) (*lookup.Job, error) {
	id, err := uuid.Parse(rec.JobID)
	if err != nil {
		return nil, fmt.Errorf("parse stored job id: %w", err)
	}
	kind, err := lookup.ParseTargetKind(rec.TargetKind)
	if err != nil {
		return nil, fmt.Errorf("parse stored target kind: %w", err)
	}

	services := make([]lookup.ServiceType, 0, len(rec.Services))
	for _, raw := range rec.Services {
		svc, err := lookup.ParseServiceType(raw)
		if err != nil {
			return nil, fmt.Errorf("parse stored service: %w", err)
		}
		services = append(services, svc)
	}

	var completedAt time.Time
	if rec.CompletedAt != nil {
		completedAt = *rec.CompletedAt
	}

	return lookup.ReconstructJob(
		id,
		lookup.ReconstructTarget(rec.Target, kind),
		services,
		lookup.ParseJobStatus(rec.Status),
		rec.CreatedAt,
		completedAt,
	), nil
}
