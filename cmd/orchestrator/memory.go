package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/netscout/internal/app/workers"
	"github.com/ahrav/netscout/internal/config"
	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/internal/domain/lookup"
	kafkabus "github.com/ahrav/netscout/internal/infra/eventbus/kafka"
	memorybus "github.com/ahrav/netscout/internal/infra/eventbus/memory"
	"github.com/ahrav/netscout/internal/infra/probes"
	"github.com/ahrav/netscout/internal/infra/storage"
	memorystore "github.com/ahrav/netscout/internal/infra/storage/memory"
	"github.com/ahrav/netscout/pkg/common/logger"
)

// buildMemoryPipeline wires the whole lookup pipeline onto an in-process bus
// with in-memory stores. Probes run inside this process, so the binary is
// self-contained; intended for local development, not production.
func buildMemoryPipeline(
	ctx context.Context,
	cfg *config.Config,
	logr *logger.Logger,
	tracer trace.Tracer,
) (*memoryPipeline, error) {
	bus := memorybus.NewEventBus()
	resultStore := memorystore.NewResultStore()

	publisher := kafkabus.NewDomainEventPublisher(bus, events.NewDomainEventTranslator())
	executor := workers.NewExecutor(resultStore, publisher, cfg.Worker.ProbeTimeout, logr, tracer)

	enabled, err := cfg.EnabledServices()
	if err != nil {
		return nil, fmt.Errorf("resolving enabled services: %w", err)
	}

	probeSet, err := buildProbes(enabled)
	if err != nil {
		return nil, err
	}
	if err := workers.Register(ctx, bus, executor, probeSet...); err != nil {
		return nil, fmt.Errorf("registering probes: %w", err)
	}

	resolver, err := storage.NewResolver(lookup.StorageTypeMemory, resultStore)
	if err != nil {
		return nil, fmt.Errorf("building result store resolver: %w", err)
	}

	return &memoryPipeline{
		jobRepo:   memorystore.NewJobStore(),
		stateRepo: memorystore.NewStateStore(),
		resolver:  resolver,
		bus:       bus,
	}, nil
}

// buildProbes constructs one probe per enabled service type. The RDAP
// bootstrap cache is shared across the probe set.
func buildProbes(enabled []lookup.ServiceType) ([]workers.Probe, error) {
	probeCfg, err := probes.DefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading probe defaults: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	bootstrap := probes.NewBootstrapCache(httpClient, probeCfg.RDAP)

	probeSet := make([]workers.Probe, 0, len(enabled))
	for _, svc := range enabled {
		switch svc {
		case lookup.ServiceTypeGeoIP:
			probeSet = append(probeSet, probes.NewGeoIPProbe(httpClient, probeCfg.GeoIP))
		case lookup.ServiceTypePing:
			probeSet = append(probeSet, probes.NewPingProbe(probeCfg.Ping))
		case lookup.ServiceTypeRDAP:
			probeSet = append(probeSet, probes.NewRDAPProbe(httpClient, bootstrap, probeCfg.RDAP))
		case lookup.ServiceTypeReverseDNS:
			probeSet = append(probeSet, probes.NewReverseDNSProbe(nil, probeCfg.RDNS))
		default:
			return nil, fmt.Errorf("no probe available for service type %q", svc)
		}
	}
	return probeSet, nil
}
