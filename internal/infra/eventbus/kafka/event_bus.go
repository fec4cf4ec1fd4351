// Package kafka provides a Kafka-based implementation of the event bus for
// asynchronous messaging.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/internal/domain/lookup"
	"github.com/ahrav/netscout/internal/infra/eventbus/serialization"
	"github.com/ahrav/netscout/pkg/common/logger"
)

// Config contains settings for connecting to and interacting with Kafka
// brokers. It defines the topics, consumer group, and client identifiers
// needed for message routing.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// JobLifecycleTopic carries JobSubmitted events (API -> orchestrator).
	JobLifecycleTopic string
	// CheckCommandTopic carries per-service check commands
	// (orchestrator -> workers).
	CheckCommandTopic string
	// TaskCompletedTopic carries completion notifications
	// (workers -> orchestrator).
	TaskCompletedTopic string

	// GroupID identifies the consumer group for this bus instance.
	GroupID string
	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string

	// ServiceType identifies the kind of service (e.g. "orchestrator",
	// "worker") for logging.
	ServiceType string
}

var _ events.EventBus = (*EventBus)(nil)

// EventBus implements events.EventBus using Kafka as the underlying message
// broker. Messages are keyed by job id so every event for one correlation id
// lands on the same partition and is consumed serially, which is what lets
// orchestration instances process their transitions one at a time.
type EventBus struct {
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup

	// Maps domain event types to their Kafka topics.
	topicMap map[events.EventType]string

	logger *logger.Logger
	tracer trace.Tracer
}

// NewEventBusFromConfig creates a new Kafka-based event bus from the
// provided configuration. It establishes connections to Kafka brokers and
// configures both producer and consumer components.
func NewEventBusFromConfig(cfg *Config, logger *logger.Logger, tracer trace.Tracer) (*EventBus, error) {
	logger = logger.With(
		"component", "kafka_event_bus",
		"client_id", cfg.ClientID,
		"group_id", cfg.GroupID,
		"service_type", cfg.ServiceType,
	)

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Partitioner = sarama.NewHashPartitioner
	producerConfig.ClientID = cfg.ClientID

	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	// Configure consumer group for reliable message processing with
	// manual offset commits and rebalancing.
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = cfg.ClientID
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Consumer.Group.Session.Timeout = 20 * time.Second
	consumerConfig.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	consumerConfig.Consumer.Offsets.AutoCommit.Enable = false
	consumerConfig.Version = sarama.V2_8_0_0

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	topicMap := map[events.EventType]string{
		lookup.EventTypeJobSubmitted:  cfg.JobLifecycleTopic,  // API -> orchestrator
		lookup.EventTypeTaskCompleted: cfg.TaskCompletedTopic, // workers -> orchestrator
	}
	for _, et := range lookup.AllCheckEventTypes() {
		topicMap[et] = cfg.CheckCommandTopic // orchestrator -> workers
	}

	return &EventBus{
		producer:      producer,
		consumerGroup: consumerGroup,
		topicMap:      topicMap,
		logger:        logger,
		tracer:        tracer,
	}, nil
}

// Publish sends a domain event to the Kafka topic configured for its type.
// It handles serialization, routing based on event type, and tracing.
func (b *EventBus) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	topic, ok := b.topicMap[event.Type]
	if !ok {
		return fmt.Errorf("unknown event type '%s', no topic mapped", event.Type)
	}

	ctx, span := b.tracer.Start(ctx, "kafka_event_bus.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination", topic),
			attribute.String("event_type", string(event.Type)),
		))
	defer span.End()

	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}
	if pParams.Key != "" {
		event.Key = pParams.Key
		span.SetAttributes(attribute.String("event.key", event.Key))
	}

	msgBytes, err := serialization.SerializeEventEnvelope(event.Type, event.Payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "serialization failed")
		return fmt.Errorf("failed to serialize payload for event %s: %w", event.Type, err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Key),
		Value: sarama.ByteEncoder(msgBytes),
	}

	partition, offset, err := b.producer.SendMessage(kafkaMsg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return fmt.Errorf("failed to send message to kafka topic %s: %w", topic, err)
	}

	b.logger.Debug(ctx, "Published message to Kafka",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"key", event.Key,
	)
	span.SetStatus(codes.Ok, "published")

	return nil
}

// Subscribe registers a handler function to process domain events of the
// specified types. It manages consumer group membership and message
// processing in a separate goroutine.
func (b *EventBus) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	topicSet := make(map[string]struct{})
	var topics []string
	for _, et := range eventTypes {
		topic, ok := b.topicMap[et]
		if !ok {
			return fmt.Errorf("subscribe: unknown event type %s", et)
		}
		if _, seen := topicSet[topic]; !seen {
			topicSet[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}

	go b.consumeLoop(ctx, topics, handler)
	b.logger.Info(ctx, "Subscribed to events", "event_types", eventTypes, "topics", topics)

	return nil
}

// consumeLoop maintains a continuous consumer group session.
func (b *EventBus) consumeLoop(ctx context.Context, topics []string, handler events.HandlerFunc) {
	cgHandler := &consumerGroupHandler{
		userHandler: handler,
		logger:      b.logger,
		tracer:      b.tracer,
	}

	for {
		if err := b.consumerGroup.Consume(ctx, topics, cgHandler); err != nil {
			b.logger.Error(ctx, "Error from consumer group", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Close gracefully shuts down the event bus by closing both producer and
// consumer connections.
func (b *EventBus) Close() error {
	logger := b.logger.With("operation", "close")
	ctx := context.Background()

	if err := b.producer.Close(); err != nil {
		logger.Error(ctx, "Failed to close producer", "error", err)
		return err
	}
	if err := b.consumerGroup.Close(); err != nil {
		logger.Error(ctx, "Failed to close consumer group", "error", err)
		return err
	}
	logger.Info(ctx, "Closed event bus")

	return nil
}
