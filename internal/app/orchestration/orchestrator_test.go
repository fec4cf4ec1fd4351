package orchestration

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/internal/domain/lookup"
	"github.com/ahrav/netscout/internal/infra/storage/memory"
	"github.com/ahrav/netscout/pkg/common/logger"
)

// capturingPublisher records published domain events so tests can assert on
// dispatch sets without a real broker.
type capturingPublisher struct {
	mu       sync.Mutex
	events   []events.DomainEvent
	keys     []string
	failWith error
}

func (p *capturingPublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	var params events.PublishParams
	for _, opt := range opts {
		opt(&params)
	}
	p.events = append(p.events, event)
	p.keys = append(p.keys, params.Key)
	return nil
}

func (p *capturingPublisher) published() []events.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.DomainEvent, len(p.events))
	copy(out, p.events)
	return out
}

func (p *capturingPublisher) commandServices() []lookup.ServiceType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var svcs []lookup.ServiceType
	for _, evt := range p.events {
		if cmd, ok := evt.(lookup.CheckCommand); ok {
			svcs = append(svcs, cmd.ServiceType)
		}
	}
	return svcs
}

type testHarness struct {
	orch      *Orchestrator
	jobs      *memory.JobStore
	states    *memory.StateStore
	publisher *capturingPublisher
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	jobs := memory.NewJobStore()
	states := memory.NewStateStore()
	pub := new(capturingPublisher)
	orch := NewOrchestrator(jobs, states, pub, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	return &testHarness{orch: orch, jobs: jobs, states: states, publisher: pub}
}

func TestSubmit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newTestHarness(t)

	jobID, err := h.orch.Submit(ctx, "8.8.8.8", []string{"GEO_IP", "PING"})
	require.NoError(t, err)

	job, err := h.jobs.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, lookup.JobStatusPending, job.Status())
	assert.Equal(t, "8.8.8.8", job.Target().Value())
	assert.Equal(t, lookup.TargetKindIP, job.Target().Kind())
	assert.Equal(t, []lookup.ServiceType{lookup.ServiceTypeGeoIP, lookup.ServiceTypePing}, job.Services())

	published := h.publisher.published()
	require.Len(t, published, 1)
	submitted, ok := published[0].(lookup.JobSubmittedEvent)
	require.True(t, ok)
	assert.Equal(t, jobID, submitted.JobID)
	assert.Equal(t, jobID.String(), h.publisher.keys[0])
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name     string
		target   string
		services []string
	}{
		{name: "malformed target", target: "not a target!", services: []string{"PING"}},
		{name: "empty target", target: "", services: []string{"PING"}},
		{name: "unsupported service", target: "8.8.8.8", services: []string{"TRACEROUTE"}},
		{name: "empty service set", target: "8.8.8.8", services: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestHarness(t)

			_, err := h.orch.Submit(ctx, tt.target, tt.services)
			require.Error(t, err)
			assert.Empty(t, h.publisher.published(), "no event may be published for a rejected submission")
		})
	}
}

func TestSubmitDedupesServices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newTestHarness(t)

	jobID, err := h.orch.Submit(ctx, "example.com", []string{"PING", "PING", "RDAP"})
	require.NoError(t, err)

	job, err := h.jobs.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, []lookup.ServiceType{lookup.ServiceTypePing, lookup.ServiceTypeRDAP}, job.Services())
}
