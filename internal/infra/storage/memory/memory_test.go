package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/netscout/internal/domain/lookup"
)

func newJob(t *testing.T) *lookup.Job {
	t.Helper()
	target, err := lookup.NewTarget("example.com")
	require.NoError(t, err)
	job, err := lookup.NewJob(uuid.New(), target, []lookup.ServiceType{lookup.ServiceTypeGeoIP, lookup.ServiceTypePing})
	require.NoError(t, err)
	return job
}

func TestJobStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewJobStore()

	job := newJob(t)
	require.NoError(t, store.SaveJob(ctx, job))

	loaded, err := store.GetJob(ctx, job.JobID())
	require.NoError(t, err)
	assert.Equal(t, job.JobID(), loaded.JobID())
	assert.Equal(t, job.Target(), loaded.Target())
	assert.Equal(t, job.Services(), loaded.Services())
	assert.Equal(t, lookup.JobStatusPending, loaded.Status())

	// Mutating the loaded copy must not leak into the store.
	require.NoError(t, loaded.UpdateStatus(lookup.JobStatusProcessing))
	again, err := store.GetJob(ctx, job.JobID())
	require.NoError(t, err)
	assert.Equal(t, lookup.JobStatusPending, again.Status())
}

func TestJobStoreNotFound(t *testing.T) {
	t.Parallel()
	store := NewJobStore()

	_, err := store.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, lookup.ErrJobNotFound)
}

func TestStateStoreOptimisticConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStateStore()

	state, err := lookup.NewOrchestrationState(uuid.New(), []lookup.ServiceType{lookup.ServiceTypePing, lookup.ServiceTypeRDAP})
	require.NoError(t, err)
	require.NoError(t, store.CreateState(ctx, state))

	// A second create for the same correlation id loses.
	assert.ErrorIs(t, store.CreateState(ctx, state), lookup.ErrStateExists)

	// Two readers load the same version; only the first writer wins.
	first, err := store.GetState(ctx, state.JobID())
	require.NoError(t, err)
	second, err := store.GetState(ctx, state.JobID())
	require.NoError(t, err)

	first.ApplyTaskCompleted(lookup.ServiceTypePing, lookup.TaskMetadata{Success: true, CompletedAt: time.Now().UTC()})
	require.NoError(t, store.UpdateState(ctx, first))

	second.ApplyTaskCompleted(lookup.ServiceTypeRDAP, lookup.TaskMetadata{Success: true, CompletedAt: time.Now().UTC()})
	assert.ErrorIs(t, store.UpdateState(ctx, second), lookup.ErrVersionConflict)

	// After a re-read the loser's write goes through.
	fresh, err := store.GetState(ctx, state.JobID())
	require.NoError(t, err)
	fresh.ApplyTaskCompleted(lookup.ServiceTypeRDAP, lookup.TaskMetadata{Success: true, CompletedAt: time.Now().UTC()})
	require.NoError(t, store.UpdateState(ctx, fresh))

	final, err := store.GetState(ctx, state.JobID())
	require.NoError(t, err)
	assert.True(t, final.IsCompleted())
	assert.Equal(t, int64(3), final.Version())
}

func TestStateStoreNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStateStore()

	_, err := store.GetState(ctx, uuid.New())
	assert.ErrorIs(t, err, lookup.ErrStateNotFound)

	state, err := lookup.NewOrchestrationState(uuid.New(), []lookup.ServiceType{lookup.ServiceTypePing})
	require.NoError(t, err)
	assert.ErrorIs(t, store.UpdateState(ctx, state), lookup.ErrStateNotFound)
}

func TestResultStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewResultStore()
	jobID := uuid.New()

	payload := map[string]any{"reachable": true, "port": "443"}
	loc, err := store.SaveResult(ctx, jobID, lookup.ServiceTypePing, payload, 120*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, lookup.StorageTypeMemory, loc.StorageType)
	assert.Equal(t, lookup.ResultKey(jobID.String(), lookup.ServiceTypePing), loc.Key)

	result, err := store.GetResult(ctx, jobID, lookup.ServiceTypePing)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, payload, result.Payload)
	assert.Equal(t, 120*time.Millisecond, result.Duration)
}

func TestResultStoreOverwritesPerServiceKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewResultStore()
	jobID := uuid.New()

	_, err := store.SaveFailure(ctx, jobID, lookup.ServiceTypeGeoIP, "upstream timeout", time.Second)
	require.NoError(t, err)
	_, err = store.SaveResult(ctx, jobID, lookup.ServiceTypeGeoIP, map[string]any{"country": "NL"}, time.Second)
	require.NoError(t, err)

	result, err := store.GetResult(ctx, jobID, lookup.ServiceTypeGeoIP)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.ErrorMessage)
}

func TestResultStoreMissing(t *testing.T) {
	t.Parallel()
	store := NewResultStore()

	_, err := store.GetResult(context.Background(), uuid.New(), lookup.ServiceTypeRDAP)
	assert.ErrorIs(t, err, lookup.ErrNoResultData)
}
