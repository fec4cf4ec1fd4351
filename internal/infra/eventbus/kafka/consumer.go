package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/internal/infra/eventbus/serialization"
	"github.com/ahrav/netscout/pkg/common/logger"
)

// consumerGroupHandler implements sarama.ConsumerGroupHandler to process
// Kafka messages and convert them into domain events for the application.
type consumerGroupHandler struct {
	userHandler events.HandlerFunc

	logger *logger.Logger
	tracer trace.Tracer
}

func (h *consumerGroupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(context.Background(), "Consumer group session setup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

func (h *consumerGroupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(context.Background(), "Consumer group session cleanup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

// ConsumeClaim processes messages from an assigned partition, deserializing
// them into domain events and invoking the user-provided handler. Offsets
// are only marked through the ack callback, so a crash before ack leads to
// redelivery; handlers are required to be idempotent.
func (h *consumerGroupHandler) ConsumeClaim(
	sess sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	consumeLogger := h.logger.With("operation", "consume_claim", "partition", claim.Partition())
	consumeLogger.Info(sess.Context(), "Starting to consume from partition", "member_id", sess.MemberID())

	lastCommit := time.Now()
	const commitInterval = time.Second

	for msg := range claim.Messages() {
		func() {
			msgCtx, span := h.tracer.Start(sess.Context(), "kafka_consumer.handle_message",
				trace.WithSpanKind(trace.SpanKindConsumer),
			)
			defer span.End()

			evtType, payloadBytes, err := serialization.UnmarshalUniversalEnvelope(msg.Value)
			if err != nil {
				// Poison message; mark it so it isn't redelivered forever.
				sess.MarkMessage(msg, "")
				span.RecordError(err)
				consumeLogger.Error(msgCtx, "Failed to unmarshal envelope", "error", err)
				return
			}

			payloadObj, err := serialization.DeserializePayload(evtType, payloadBytes)
			if err != nil {
				sess.MarkMessage(msg, "")
				span.RecordError(err)
				consumeLogger.Error(msgCtx, "Failed to deserialize payload", "event_type", evtType, "error", err)
				return
			}

			dEvent := events.EventEnvelope{
				Type:      evtType,
				Key:       string(msg.Key),
				Timestamp: msg.Timestamp,
				Payload:   payloadObj,
				Metadata: events.EventMetadata{
					Partition: claim.Partition(),
					Offset:    msg.Offset,
				},
			}

			ack := func(err error) {
				if err != nil {
					consumeLogger.Error(msgCtx, "Handler rejected message; leaving un-acked",
						"topic", msg.Topic, "offset", msg.Offset, "error", err)
					span.RecordError(err)
					span.SetStatus(codes.Error, "message not acknowledged")
					return
				}

				sess.MarkMessage(msg, "")
				if time.Since(lastCommit) > commitInterval {
					sess.Commit()
					lastCommit = time.Now()
				}
			}

			if err := h.userHandler(msgCtx, dEvent, ack); err != nil {
				consumeLogger.Error(msgCtx, "Failed to handle message", "event_type", evtType, "error", err)
				span.RecordError(err)
				return
			}
		}()
	}

	// Final commit before exiting.
	sess.Commit()

	return nil
}
