package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/netscout/internal/app/orchestration"
	"github.com/ahrav/netscout/internal/app/status"
	"github.com/ahrav/netscout/internal/config"
	"github.com/ahrav/netscout/internal/config/fileloader"
	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/internal/domain/lookup"
	eventdispatcher "github.com/ahrav/netscout/internal/infra/event_dispatcher"
	kafkabus "github.com/ahrav/netscout/internal/infra/eventbus/kafka"
	memorybus "github.com/ahrav/netscout/internal/infra/eventbus/memory"
	"github.com/ahrav/netscout/internal/infra/storage"
	redisstore "github.com/ahrav/netscout/internal/infra/storage/redis"
	"github.com/ahrav/netscout/pkg/common/logger"
	"github.com/ahrav/netscout/pkg/common/otel"
)

const serviceType = "orchestrator"

func main() {
	_, _ = maxprocs.Set()

	lookupTarget := flag.String("target", "", "submit a one-shot lookup for this IP or domain and poll it to completion")
	lookupServices := flag.String("services", "", "comma-separated service types for the one-shot lookup (default: all)")
	flag.Parse()

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

	svcName := fmt.Sprintf("ORCHESTRATOR-%s", hostname)
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
		otelSvcName = "netscout-orchestrator"
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

	var (
		jobRepo   lookup.JobRepository
		stateRepo lookup.StateRepository
		resolver  lookup.StoreResolver
		eventBus  events.EventBus
		closeBus  func() error
	)

	switch cfg.Broker.Mode {
	case config.BrokerModeKafka:
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

		jobRepo = redisstore.NewJobStore(redisClient, cfg.Redis.JobTTL, tracer)
		stateRepo = redisstore.NewStateStore(redisClient, cfg.Redis.StateTTL, cfg.Redis.FinalizedStateTTL, tracer)

		resultStore := redisstore.NewResultStore(redisClient, cfg.Redis.ResultTTL, tracer)
		resolver, err = storage.NewResolver(lookup.StorageTypeRedis, resultStore)
		if err != nil {
			logr.Error(ctx, "failed to build result store resolver", "error", err)
			os.Exit(1)
		}

		bus, err := kafkabus.NewEventBusFromConfig(&kafkabus.Config{
			Brokers:            cfg.Broker.Brokers,
			JobLifecycleTopic:  cfg.Broker.JobLifecycleTopic,
			CheckCommandTopic:  cfg.Broker.CheckCommandTopic,
			TaskCompletedTopic: cfg.Broker.TaskCompletedTopic,
			GroupID:            cfg.Broker.GroupID,
			ClientID:           svcName,
			ServiceType:        serviceType,
		}, logr, tracer)
		if err != nil {
			logr.Error(ctx, "failed to create kafka event bus", "error", err)
			os.Exit(1)
		}
		eventBus, closeBus = bus, bus.Close

	case config.BrokerModeMemory:
		deps, err := buildMemoryPipeline(ctx, cfg, logr, tracer)
		if err != nil {
			logr.Error(ctx, "failed to build in-memory pipeline", "error", err)
			os.Exit(1)
		}
		jobRepo, stateRepo, resolver = deps.jobRepo, deps.stateRepo, deps.resolver
		eventBus, closeBus = deps.bus, deps.bus.Close

	default:
		logr.Error(ctx, "unsupported broker mode", "mode", string(cfg.Broker.Mode))
		os.Exit(1)
	}

	publisher := kafkabus.NewDomainEventPublisher(eventBus, events.NewDomainEventTranslator())
	orch := orchestration.NewOrchestrator(jobRepo, stateRepo, publisher, logr, tracer)
	reconciler := status.NewReconciler(jobRepo, stateRepo, resolver, logr, tracer)

	dispatcher := eventdispatcher.New(tracer, logr)
	dispatcher.RegisterHandler(ctx, lookup.EventTypeJobSubmitted, orch.HandleJobSubmitted)
	dispatcher.RegisterHandler(ctx, lookup.EventTypeTaskCompleted, orch.HandleTaskCompleted)

	subscriptions := []events.EventType{lookup.EventTypeJobSubmitted, lookup.EventTypeTaskCompleted}
	if err := eventBus.Subscribe(ctx, subscriptions, dispatcher.Dispatch); err != nil {
		logr.Error(ctx, "failed to subscribe to event bus", "error", err)
		os.Exit(1)
	}

	logr.Info(ctx, "Orchestrator initialized", "broker_mode", string(cfg.Broker.Mode))

	if *lookupTarget != "" {
		go func() {
			<-sigCh
			cancel()
		}()
		if err := runLookup(ctx, orch, reconciler, *lookupTarget, *lookupServices, logr); err != nil {
			logr.Error(ctx, "lookup failed", "error", err)
			os.Exit(1)
		}
		return
	}

	sig := <-sigCh
	logr.Info(ctx, "Received shutdown signal", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := closeBus(); err != nil {
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

type memoryPipeline struct {
	jobRepo   lookup.JobRepository
	stateRepo lookup.StateRepository
	resolver  lookup.StoreResolver
	bus       *memorybus.EventBus
}

// runLookup submits a single lookup and polls the reconciled status until the
// job reaches a terminal state, then prints the status view as JSON.
func runLookup(
	ctx context.Context,
	orch *orchestration.Orchestrator,
	reconciler *status.Reconciler,
	target, services string,
	logr *logger.Logger,
) error {
	var serviceNames []string
	if services == "" {
		for _, svc := range lookup.KnownServiceTypes() {
			serviceNames = append(serviceNames, svc.String())
		}
	} else {
		for _, name := range strings.Split(services, ",") {
			if name = strings.TrimSpace(name); name != "" {
				serviceNames = append(serviceNames, name)
			}
		}
	}

	jobID, err := orch.Submit(ctx, target, serviceNames)
	if err != nil {
		return fmt.Errorf("submitting lookup: %w", err)
	}
	logr.Info(ctx, "Lookup submitted", "job_id", jobID.String())

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		view, err := reconciler.JobStatus(ctx, jobID)
		if err != nil {
			// The job record is written before the submit returns; a
			// not-found here means it expired mid-poll.
			if errors.Is(err, lookup.ErrJobNotFound) {
				return err
			}
			logr.Warn(ctx, "status poll failed", "error", err)
			continue
		}
		if !view.Status.IsTerminal() {
			continue
		}

		out, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding status view: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}
}
