package events

import "time"

// DomainEvent is implemented by every domain-level event or command that
// flows through the system. Concrete types carry their own payload fields;
// the interface exposes only what routing and enveloping need.
type DomainEvent interface {
	// EventType identifies the category of this event for routing and handling.
	EventType() EventType

	// OccurredAt records when the event was created, enabling temporal
	// tracking and debugging of event flows.
	OccurredAt() time.Time
}

// EventEnvelope wraps an event payload with the metadata the transport
// layer needs to route, order, and acknowledge it.
type EventEnvelope struct {
	// Type identifies the category of this event.
	Type EventType

	// Key enables consistent event routing, typically containing a business
	// identifier like a job ID that events can be partitioned by.
	Key string

	// Timestamp records when this envelope was created.
	Timestamp time.Time

	// Payload contains the actual event data. The concrete type depends on
	// the EventType.
	Payload any

	// Metadata carries transport-level position information.
	Metadata EventMetadata
}

// EventMetadata describes where in the underlying stream an event came from.
// It is populated by the consuming side of the event bus.
type EventMetadata struct {
	Partition int32
	Offset    int64
}
