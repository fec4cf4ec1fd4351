package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/netscout/internal/app/workers"
	"github.com/ahrav/netscout/internal/config"
	"github.com/ahrav/netscout/internal/config/fileloader"
	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/internal/domain/lookup"
	kafkabus "github.com/ahrav/netscout/internal/infra/eventbus/kafka"
	"github.com/ahrav/netscout/internal/infra/probes"
	redisstore "github.com/ahrav/netscout/internal/infra/storage/redis"
	"github.com/ahrav/netscout/pkg/common/logger"
	"github.com/ahrav/netscout/pkg/common/otel"
)

const serviceType = "worker"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("WORKER-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	logr := logger.NewWithMetadata(os.Stdout, logger.LevelDebug, svcName, traceIDFn, logEvents, metadata)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prob := 1.0
	if raw := os.Getenv("OTEL_SAMPLING_RATIO"); raw != "" {
		prob, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			logr.Error(ctx, "failed to parse OTEL_SAMPLING_RATIO", "error", err)
			os.Exit(1)
		}
	}

	otelSvcName := os.Getenv("OTEL_SERVICE_NAME")
	if otelSvcName == "" {
		otelSvcName = "netscout-worker"
	}

	tp, telemetryTeardown, err := otel.InitTelemetry(logr, otel.Config{
		ServiceName:      otelSvcName,
		ExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Host:             hostname,
		Probability:      prob,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"host.name":        hostname,
		},
		InsecureExporter: true, // TODO: Come back to setup TLS.
	})
	if err != nil {
		logr.Error(ctx, "failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryTeardown(ctx)

	tracer := tp.Tracer(otelSvcName)

	cfg, err := loadConfig(ctx)
	if err != nil {
		logr.Error(ctx, "failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Broker.Mode != config.BrokerModeKafka {
		// The in-memory bus never leaves its process; a standalone worker
		// can only participate over Kafka.
		logr.Error(ctx, "worker requires kafka broker mode", "mode", string(cfg.Broker.Mode))
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logr.Error(ctx, "failed to connect to redis", "error", err, "addr", cfg.Redis.Addr)
		os.Exit(1)
	}

	resultStore := redisstore.NewResultStore(redisClient, cfg.Redis.ResultTTL, tracer)

	eventBus, err := kafkabus.NewEventBusFromConfig(&kafkabus.Config{
		Brokers:            cfg.Broker.Brokers,
		JobLifecycleTopic:  cfg.Broker.JobLifecycleTopic,
		CheckCommandTopic:  cfg.Broker.CheckCommandTopic,
		TaskCompletedTopic: cfg.Broker.TaskCompletedTopic,
		GroupID:            fmt.Sprintf("%s-worker", cfg.Broker.GroupID),
		ClientID:           svcName,
		ServiceType:        serviceType,
	}, logr, tracer)
	if err != nil {
		logr.Error(ctx, "failed to create kafka event bus", "error", err)
		os.Exit(1)
	}

	publisher := kafkabus.NewDomainEventPublisher(eventBus, events.NewDomainEventTranslator())
	executor := workers.NewExecutor(resultStore, publisher, cfg.Worker.ProbeTimeout, logr, tracer)

	enabled, err := cfg.EnabledServices()
	if err != nil {
		logr.Error(ctx, "failed to resolve enabled services", "error", err)
		os.Exit(1)
	}

	probeSet, err := buildProbes(enabled)
	if err != nil {
		logr.Error(ctx, "failed to build probes", "error", err)
		os.Exit(1)
	}

	if err := workers.Register(ctx, eventBus, executor, probeSet...); err != nil {
		logr.Error(ctx, "failed to register probes", "error", err)
		os.Exit(1)
	}

	serviceNames := make([]string, 0, len(enabled))
	for _, svc := range enabled {
		serviceNames = append(serviceNames, svc.String())
	}
	logr.Info(ctx, "Worker initialized", "services", serviceNames)

	sig := <-sigCh
	logr.Info(ctx, "Received shutdown signal", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := eventBus.Close(); err != nil {
		logr.Error(shutdownCtx, "Failed to close event bus", "error", err)
	}
}

// loadConfig reads configuration from the file named by NETSCOUT_CONFIG,
// falling back to built-in defaults when the variable is unset.
func loadConfig(ctx context.Context) (*config.Config, error) {
	if path := os.Getenv("NETSCOUT_CONFIG"); path != "" {
		return fileloader.NewFileLoader(path).Load(ctx)
	}
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
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
