package kafka

import (
	"context"

	"github.com/ahrav/netscout/internal/domain/events"
)

var _ events.DomainEventPublisher = (*DomainEventPublisher)(nil)

// DomainEventPublisher implements events.DomainEventPublisher using the
// Kafka event bus as the underlying transport. It adapts domain-level events
// to the event bus abstraction for reliable, asynchronous distribution.
type DomainEventPublisher struct {
	eventBus   events.EventBus
	translator *events.DomainEventTranslator
}

// NewDomainEventPublisher creates a new publisher that distributes domain
// events through the provided event bus.
func NewDomainEventPublisher(bus events.EventBus, translator *events.DomainEventTranslator) *DomainEventPublisher {
	return &DomainEventPublisher{eventBus: bus, translator: translator}
}

// PublishDomainEvent sends a domain event through the event bus. It wraps
// the event in an envelope and converts domain-level publishing options to
// event bus options.
func (pub *DomainEventPublisher) PublishDomainEvent(
	ctx context.Context,
	event events.DomainEvent,
	domainOpts ...events.PublishOption,
) error {
	evt := events.EventEnvelope{
		Type:      event.EventType(),
		Timestamp: event.OccurredAt(),
		Payload:   event,
	}

	opts := pub.translator.ConvertDomainOptions(domainOpts)

	return pub.eventBus.Publish(ctx, evt, opts...)
}
