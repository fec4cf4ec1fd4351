package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/netscout/internal/domain/lookup"
)

func testClient(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testTracer() trace.Tracer { return noop.NewTracerProvider().Tracer("test") }

func newTestJob(t *testing.T) *lookup.Job {
	t.Helper()
	target, err := lookup.NewTarget("example.com")
	require.NoError(t, err)
	job, err := lookup.NewJob(uuid.New(), target, []lookup.ServiceType{lookup.ServiceTypeGeoIP, lookup.ServiceTypePing})
	require.NoError(t, err)
	return job
}

func TestJobStoreRoundTrip(t *testing.T) {
	mr, client := testClient(t)
	store := NewJobStore(client, 24*time.Hour, testTracer())
	ctx := context.Background()

	job := newTestJob(t)
	require.NoError(t, job.UpdateStatus(lookup.JobStatusProcessing))
	require.NoError(t, store.SaveJob(ctx, job))

	loaded, err := store.GetJob(ctx, job.JobID())
	require.NoError(t, err)
	assert.Equal(t, job.JobID(), loaded.JobID())
	assert.Equal(t, "example.com", loaded.Target().Value())
	assert.Equal(t, lookup.TargetKindDomain, loaded.Target().Kind())
	assert.Equal(t, job.Services(), loaded.Services())
	assert.Equal(t, lookup.JobStatusProcessing, loaded.Status())

	ttl := mr.TTL(jobKeyPrefix + job.JobID().String())
	assert.Greater(t, ttl, time.Duration(0), "job records must be TTL-bounded")
}

func TestJobStoreExpiry(t *testing.T) {
	mr, client := testClient(t)
	store := NewJobStore(client, time.Hour, testTracer())
	ctx := context.Background()

	job := newTestJob(t)
	require.NoError(t, store.SaveJob(ctx, job))

	mr.FastForward(time.Hour + time.Minute)

	_, err := store.GetJob(ctx, job.JobID())
	assert.ErrorIs(t, err, lookup.ErrJobNotFound)
}

func TestJobStoreNotFound(t *testing.T) {
	_, client := testClient(t)
	store := NewJobStore(client, time.Hour, testTracer())

	_, err := store.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, lookup.ErrJobNotFound)
}

func newTestState(t *testing.T, services ...lookup.ServiceType) *lookup.OrchestrationState {
	t.Helper()
	state, err := lookup.NewOrchestrationState(uuid.New(), services)
	require.NoError(t, err)
	return state
}

func TestStateStoreCreateIsFirstWriterWins(t *testing.T) {
	_, client := testClient(t)
	store := NewStateStore(client, 24*time.Hour, time.Hour, testTracer())
	ctx := context.Background()

	state := newTestState(t, lookup.ServiceTypePing)
	require.NoError(t, store.CreateState(ctx, state))
	assert.ErrorIs(t, store.CreateState(ctx, state), lookup.ErrStateExists)
}

func TestStateStoreRoundTrip(t *testing.T) {
	_, client := testClient(t)
	store := NewStateStore(client, 24*time.Hour, time.Hour, testTracer())
	ctx := context.Background()

	state := newTestState(t, lookup.ServiceTypeGeoIP, lookup.ServiceTypeRDAP)
	require.NoError(t, store.CreateState(ctx, state))

	loaded, err := store.GetState(ctx, state.JobID())
	require.NoError(t, err)
	assert.Equal(t, state.JobID(), loaded.JobID())
	assert.Equal(t, state.Requested(), loaded.Requested())
	assert.Equal(t, state.Pending(), loaded.Pending())
	assert.Empty(t, loaded.Completed())
	assert.Equal(t, int64(1), loaded.Version())
}

func TestStateStoreUpdateBumpsVersion(t *testing.T) {
	_, client := testClient(t)
	store := NewStateStore(client, 24*time.Hour, time.Hour, testTracer())
	ctx := context.Background()

	state := newTestState(t, lookup.ServiceTypeGeoIP, lookup.ServiceTypeRDAP)
	require.NoError(t, store.CreateState(ctx, state))

	loaded, err := store.GetState(ctx, state.JobID())
	require.NoError(t, err)
	loaded.ApplyTaskCompleted(lookup.ServiceTypeGeoIP, lookup.TaskMetadata{Success: true, CompletedAt: time.Now().UTC()})
	require.NoError(t, store.UpdateState(ctx, loaded))

	fresh, err := store.GetState(ctx, state.JobID())
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.Version())
	assert.Equal(t, []lookup.ServiceType{lookup.ServiceTypeRDAP}, fresh.Pending())
	assert.Equal(t, []lookup.ServiceType{lookup.ServiceTypeGeoIP}, fresh.Completed())

	md, ok := fresh.TaskMetadata(lookup.ServiceTypeGeoIP)
	require.True(t, ok)
	assert.True(t, md.Success)
}

func TestStateStoreStaleWriteRejected(t *testing.T) {
	_, client := testClient(t)
	store := NewStateStore(client, 24*time.Hour, time.Hour, testTracer())
	ctx := context.Background()

	state := newTestState(t, lookup.ServiceTypeGeoIP, lookup.ServiceTypeRDAP)
	require.NoError(t, store.CreateState(ctx, state))

	first, err := store.GetState(ctx, state.JobID())
	require.NoError(t, err)
	second, err := store.GetState(ctx, state.JobID())
	require.NoError(t, err)

	first.ApplyTaskCompleted(lookup.ServiceTypeGeoIP, lookup.TaskMetadata{Success: true, CompletedAt: time.Now().UTC()})
	require.NoError(t, store.UpdateState(ctx, first))

	second.ApplyTaskCompleted(lookup.ServiceTypeRDAP, lookup.TaskMetadata{Success: true, CompletedAt: time.Now().UTC()})
	assert.ErrorIs(t, store.UpdateState(ctx, second), lookup.ErrVersionConflict)
}

func TestStateStoreUpdateMissingState(t *testing.T) {
	_, client := testClient(t)
	store := NewStateStore(client, 24*time.Hour, time.Hour, testTracer())

	state := newTestState(t, lookup.ServiceTypePing)
	err := store.UpdateState(context.Background(), state)
	assert.ErrorIs(t, err, lookup.ErrStateNotFound)
}

func TestStateStoreFinalizationShortensTTL(t *testing.T) {
	mr, client := testClient(t)
	store := NewStateStore(client, 24*time.Hour, time.Hour, testTracer())
	ctx := context.Background()

	state := newTestState(t, lookup.ServiceTypePing)
	require.NoError(t, store.CreateState(ctx, state))

	loaded, err := store.GetState(ctx, state.JobID())
	require.NoError(t, err)
	require.True(t, loaded.ApplyTaskCompleted(lookup.ServiceTypePing,
		lookup.TaskMetadata{Success: true, CompletedAt: time.Now().UTC()}))
	require.NoError(t, store.UpdateState(ctx, loaded))

	ttl := mr.TTL(stateKeyPrefix + state.JobID().String())
	assert.LessOrEqual(t, ttl, time.Hour, "finalized instances are reaped on the short TTL")
	assert.Greater(t, ttl, time.Duration(0))
}

func TestResultStoreRoundTrip(t *testing.T) {
	mr, client := testClient(t)
	store := NewResultStore(client, 12*time.Hour, testTracer())
	ctx := context.Background()
	jobID := uuid.New()

	payload := map[string]any{"country": "NL", "city": "Amsterdam"}
	loc, err := store.SaveResult(ctx, jobID, lookup.ServiceTypeGeoIP, payload, 340*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, lookup.StorageTypeRedis, loc.StorageType)
	assert.Equal(t, lookup.ResultKey(jobID.String(), lookup.ServiceTypeGeoIP), loc.Key)
	require.NotNil(t, loc.ExpiresAt)
	assert.True(t, loc.ExpiresAt.After(time.Now()))

	result, err := store.GetResult(ctx, jobID, lookup.ServiceTypeGeoIP)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, payload, result.Payload)
	assert.Equal(t, 340*time.Millisecond, result.Duration)

	ttl := mr.TTL(resultKeyPrefix + loc.Key)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestResultStoreFailureRecord(t *testing.T) {
	_, client := testClient(t)
	store := NewResultStore(client, 12*time.Hour, testTracer())
	ctx := context.Background()
	jobID := uuid.New()

	_, err := store.SaveFailure(ctx, jobID, lookup.ServiceTypeRDAP, "bootstrap registry unavailable", 2*time.Second)
	require.NoError(t, err)

	result, err := store.GetResult(ctx, jobID, lookup.ServiceTypeRDAP)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "bootstrap registry unavailable", result.ErrorMessage)
	assert.Nil(t, result.Payload)
}

func TestResultStoreExpiry(t *testing.T) {
	mr, client := testClient(t)
	store := NewResultStore(client, time.Hour, testTracer())
	ctx := context.Background()
	jobID := uuid.New()

	_, err := store.SaveResult(ctx, jobID, lookup.ServiceTypePing, map[string]any{"reachable": true}, time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = store.GetResult(ctx, jobID, lookup.ServiceTypePing)
	assert.ErrorIs(t, err, lookup.ErrNoResultData)
}
