package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/internal/domain/lookup"
	"github.com/ahrav/netscout/internal/infra/storage/memory"
	"github.com/ahrav/netscout/pkg/common/logger"
)

type fakeProbe struct {
	svc lookup.ServiceType
	run func(ctx context.Context, target lookup.Target) (map[string]any, error)

	mu    sync.Mutex
	calls int
}

func (p *fakeProbe) ServiceType() lookup.ServiceType { return p.svc }

func (p *fakeProbe) Run(ctx context.Context, target lookup.Target) (map[string]any, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.run(ctx, target)
}

// notifyRecorder captures published completion events and, at publish time,
// whether the result was already readable, to verify persist-before-notify
// ordering.
type notifyRecorder struct {
	store *memory.ResultStore

	mu                 sync.Mutex
	events             []lookup.TaskCompletedEvent
	persistedAtPublish []bool
	failWith           error
}

func (r *notifyRecorder) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	evt, ok := event.(lookup.TaskCompletedEvent)
	if !ok {
		return errors.New("unexpected event type")
	}
	_, err := r.store.GetResult(ctx, evt.JobID, evt.ServiceType)
	r.events = append(r.events, evt)
	r.persistedAtPublish = append(r.persistedAtPublish, err == nil)
	return nil
}

type executorHarness struct {
	executor *Executor
	store    *memory.ResultStore
	notify   *notifyRecorder
}

func newExecutorHarness(t *testing.T, probeTimeout time.Duration) *executorHarness {
	t.Helper()
	store := memory.NewResultStore()
	notify := &notifyRecorder{store: store}
	exec := NewExecutor(store, notify, probeTimeout, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	return &executorHarness{executor: exec, store: store, notify: notify}
}

func pingCommand(t *testing.T, target string) lookup.CheckCommand {
	t.Helper()
	tgt, err := lookup.NewTarget(target)
	require.NoError(t, err)
	return lookup.NewCheckCommand(uuid.New(), lookup.ServiceTypePing, tgt)
}

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newExecutorHarness(t, 0)

	probe := &fakeProbe{
		svc: lookup.ServiceTypePing,
		run: func(ctx context.Context, target lookup.Target) (map[string]any, error) {
			return map[string]any{"reachable": true, "rttMs": 12.5}, nil
		},
	}
	cmd := pingCommand(t, "8.8.8.8")

	require.NoError(t, h.executor.Execute(ctx, probe, cmd))

	require.Len(t, h.notify.events, 1)
	evt := h.notify.events[0]
	assert.True(t, evt.Success)
	assert.Empty(t, evt.ErrorMessage)
	assert.Greater(t, evt.Duration, time.Duration(0))
	require.NotNil(t, evt.Location)
	assert.Equal(t, lookup.StorageTypeMemory, evt.Location.StorageType)
	assert.True(t, h.notify.persistedAtPublish[0], "the payload must be durable before the notification goes out")

	result, err := h.store.GetResult(ctx, cmd.JobID, lookup.ServiceTypePing)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"reachable": true, "rttMs": 12.5}, result.Payload)
}

func TestExecuteProbeFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newExecutorHarness(t, 0)

	probe := &fakeProbe{
		svc: lookup.ServiceTypePing,
		run: func(ctx context.Context, target lookup.Target) (map[string]any, error) {
			return nil, errors.New("connection refused")
		},
	}
	cmd := pingCommand(t, "8.8.8.8")

	require.NoError(t, h.executor.Execute(ctx, probe, cmd),
		"a probe failure is data, not an execution error")

	require.Len(t, h.notify.events, 1)
	evt := h.notify.events[0]
	assert.False(t, evt.Success)
	assert.Equal(t, "connection refused", evt.ErrorMessage)
	require.NotNil(t, evt.Location, "failures are persisted too")

	result, err := h.store.GetResult(ctx, cmd.JobID, lookup.ServiceTypePing)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "connection refused", result.ErrorMessage)
	assert.Nil(t, result.Payload)
}

func TestExecuteValidationFailureSkipsProbe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newExecutorHarness(t, 0)

	probe := &fakeProbe{
		svc: lookup.ServiceTypePing,
		run: func(ctx context.Context, target lookup.Target) (map[string]any, error) {
			return map[string]any{}, nil
		},
	}

	// The command carries a target that no longer validates.
	cmd := pingCommand(t, "8.8.8.8")
	cmd.Target = "!!not-valid!!"

	require.NoError(t, h.executor.Execute(ctx, probe, cmd))

	assert.Zero(t, probe.calls, "validation failure must skip the probe")
	require.Len(t, h.notify.events, 1)
	evt := h.notify.events[0]
	assert.False(t, evt.Success)
	assert.Contains(t, evt.ErrorMessage, "target validation failed")
}

func TestExecuteTargetKindMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newExecutorHarness(t, 0)

	probe := &fakeProbe{
		svc: lookup.ServiceTypePing,
		run: func(ctx context.Context, target lookup.Target) (map[string]any, error) {
			return map[string]any{}, nil
		},
	}

	cmd := pingCommand(t, "8.8.8.8")
	cmd.TargetKind = lookup.TargetKindDomain

	require.NoError(t, h.executor.Execute(ctx, probe, cmd))

	assert.Zero(t, probe.calls)
	require.Len(t, h.notify.events, 1)
	assert.False(t, h.notify.events[0].Success)
}

// failingStore rejects every write to exercise the null-location path.
type failingStore struct{ lookup.ResultStore }

func (failingStore) StorageType() lookup.StorageType { return lookup.StorageTypeMemory }

func (failingStore) SaveResult(context.Context, uuid.UUID, lookup.ServiceType, map[string]any, time.Duration) (lookup.ResultLocation, error) {
	return lookup.ResultLocation{}, errors.New("store unavailable")
}

func (failingStore) SaveFailure(context.Context, uuid.UUID, lookup.ServiceType, string, time.Duration) (lookup.ResultLocation, error) {
	return lookup.ResultLocation{}, errors.New("store unavailable")
}

func TestExecuteStoreFailureStillNotifies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	notify := &notifyRecorder{store: memory.NewResultStore()}
	exec := NewExecutor(failingStore{}, notify, 0, logger.Noop(), noop.NewTracerProvider().Tracer("test"))

	probe := &fakeProbe{
		svc: lookup.ServiceTypePing,
		run: func(ctx context.Context, target lookup.Target) (map[string]any, error) {
			return map[string]any{"reachable": true}, nil
		},
	}

	require.NoError(t, exec.Execute(ctx, probe, pingCommand(t, "8.8.8.8")))

	require.Len(t, notify.events, 1)
	evt := notify.events[0]
	assert.False(t, evt.Success, "a task whose write failed is failed-with-no-data")
	assert.Nil(t, evt.Location)
	assert.Contains(t, evt.ErrorMessage, "result persistence failed")
}

func TestExecuteProbeTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newExecutorHarness(t, 20*time.Millisecond)

	probe := &fakeProbe{
		svc: lookup.ServiceTypePing,
		run: func(ctx context.Context, target lookup.Target) (map[string]any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return map[string]any{}, nil
			}
		},
	}

	start := time.Now()
	require.NoError(t, h.executor.Execute(ctx, probe, pingCommand(t, "8.8.8.8")))
	assert.Less(t, time.Since(start), time.Second, "a hung probe must be cut off by the timeout")

	require.Len(t, h.notify.events, 1)
	evt := h.notify.events[0]
	assert.False(t, evt.Success)
	assert.Contains(t, evt.ErrorMessage, context.DeadlineExceeded.Error())
}

func TestHandlerForAcksAfterNotification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newExecutorHarness(t, 0)

	probe := &fakeProbe{
		svc: lookup.ServiceTypePing,
		run: func(ctx context.Context, target lookup.Target) (map[string]any, error) {
			return map[string]any{"reachable": true}, nil
		},
	}
	handler := h.executor.HandlerFor(probe)

	cmd := pingCommand(t, "8.8.8.8")
	envelope := events.EventEnvelope{Type: cmd.EventType(), Key: cmd.JobID.String(), Payload: cmd}

	var acked bool
	require.NoError(t, handler(ctx, envelope, func(err error) { acked = err == nil }))
	assert.True(t, acked)

	// With a broken notification path the command must stay unacked.
	h.notify.failWith = errors.New("broker down")
	acked = false
	err := handler(ctx, envelope, func(err error) { acked = true })
	require.Error(t, err)
	assert.False(t, acked)
}

func TestHandlerForRejectsMisroutedCommand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newExecutorHarness(t, 0)

	pingProbe := &fakeProbe{
		svc: lookup.ServiceTypePing,
		run: func(ctx context.Context, target lookup.Target) (map[string]any, error) {
			return map[string]any{"reachable": true}, nil
		},
	}
	handler := h.executor.HandlerFor(pingProbe)

	// A GeoIP command landing on the ping handler must not run the ping
	// probe: that would record a ping outcome while the GeoIP task never
	// executes.
	tgt, err := lookup.NewTarget("8.8.8.8")
	require.NoError(t, err)
	cmd := lookup.NewCheckCommand(uuid.New(), lookup.ServiceTypeGeoIP, tgt)
	envelope := events.EventEnvelope{Type: cmd.EventType(), Key: cmd.JobID.String(), Payload: cmd}

	var acked bool
	err = handler(ctx, envelope, func(error) { acked = true })
	require.Error(t, err)
	assert.False(t, acked, "a misrouted command must stay unacked")
	assert.Zero(t, pingProbe.calls)
	assert.Empty(t, h.notify.events, "no completion may be reported for a service that never ran")

	_, err = h.store.GetResult(ctx, cmd.JobID, lookup.ServiceTypePing)
	assert.ErrorIs(t, err, lookup.ErrNoResultData)
	_, err = h.store.GetResult(ctx, cmd.JobID, lookup.ServiceTypeGeoIP)
	assert.ErrorIs(t, err, lookup.ErrNoResultData)
}

func TestRegisterUsesSingleSubscription(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newExecutorHarness(t, 0)

	var subscriptions [][]events.EventType
	bus := subscriberFunc(func(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
		subscriptions = append(subscriptions, eventTypes)
		return nil
	})

	probes := []Probe{
		&fakeProbe{svc: lookup.ServiceTypePing, run: nil},
		&fakeProbe{svc: lookup.ServiceTypeGeoIP, run: nil},
	}
	require.NoError(t, Register(ctx, bus, h.executor, probes...))

	// Separate subscriptions would compete for the same command stream on
	// brokers where all check command types share a topic.
	require.Len(t, subscriptions, 1)
	assert.ElementsMatch(t,
		[]events.EventType{lookup.EventTypeCheckPing, lookup.EventTypeCheckGeoIP},
		subscriptions[0])
}

func TestRegisterRoutesCommandsByEventType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newExecutorHarness(t, 0)

	var routed events.HandlerFunc
	bus := subscriberFunc(func(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
		routed = handler
		return nil
	})

	pingProbe := &fakeProbe{
		svc: lookup.ServiceTypePing,
		run: func(ctx context.Context, target lookup.Target) (map[string]any, error) {
			return map[string]any{"reachable": true}, nil
		},
	}
	geoipProbe := &fakeProbe{
		svc: lookup.ServiceTypeGeoIP,
		run: func(ctx context.Context, target lookup.Target) (map[string]any, error) {
			return map[string]any{"country": "US"}, nil
		},
	}
	require.NoError(t, Register(ctx, bus, h.executor, pingProbe, geoipProbe))
	require.NotNil(t, routed)

	tgt, err := lookup.NewTarget("8.8.8.8")
	require.NoError(t, err)
	jobID := uuid.New()

	for _, svc := range []lookup.ServiceType{lookup.ServiceTypeGeoIP, lookup.ServiceTypePing} {
		cmd := lookup.NewCheckCommand(jobID, svc, tgt)
		envelope := events.EventEnvelope{Type: cmd.EventType(), Key: cmd.JobID.String(), Payload: cmd}
		var acked bool
		require.NoError(t, routed(ctx, envelope, func(err error) { acked = err == nil }))
		assert.True(t, acked)
	}

	assert.Equal(t, 1, pingProbe.calls, "each probe runs only its own commands")
	assert.Equal(t, 1, geoipProbe.calls, "each probe runs only its own commands")

	require.Len(t, h.notify.events, 2)
	assert.Equal(t, lookup.ServiceTypeGeoIP, h.notify.events[0].ServiceType)
	assert.Equal(t, lookup.ServiceTypePing, h.notify.events[1].ServiceType)

	// An event type no probe was registered for is not acked away.
	rdapCmd := lookup.NewCheckCommand(jobID, lookup.ServiceTypeRDAP, tgt)
	envelope := events.EventEnvelope{Type: rdapCmd.EventType(), Key: rdapCmd.JobID.String(), Payload: rdapCmd}
	var acked bool
	require.Error(t, routed(ctx, envelope, func(error) { acked = true }))
	assert.False(t, acked)
}

func TestRegisterRejectsDuplicateProbes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newExecutorHarness(t, 0)

	bus := subscriberFunc(func(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
		return nil
	})
	err := Register(ctx, bus, h.executor,
		&fakeProbe{svc: lookup.ServiceTypePing, run: nil},
		&fakeProbe{svc: lookup.ServiceTypePing, run: nil},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate probe registration")
}

// subscriberFunc adapts a function to the events.EventBus interface for
// registration tests.
type subscriberFunc func(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error

func (f subscriberFunc) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	return f(ctx, eventTypes, handler)
}

func (subscriberFunc) Publish(context.Context, events.EventEnvelope, ...events.PublishOption) error {
	return nil
}

func (subscriberFunc) Close() error { return nil }
