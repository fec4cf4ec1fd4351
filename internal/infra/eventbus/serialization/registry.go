// Package serialization provides a registry-based system for serializing and
// deserializing domain events in the event bus infrastructure. It acts as a
// translation layer between domain objects and their JSON wire format.
//
// The package implements a registry pattern where serialization and
// deserialization functions are registered per event type. This keeps the
// domain layer clean of serialization concerns and lets new event types be
// added without touching existing code.
package serialization

import (
	"fmt"

	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/internal/domain/lookup"
)

// SerializeFunc converts a domain object into a serialized byte slice.
type SerializeFunc func(payload any) ([]byte, error)

// DeserializeFunc converts a serialized byte slice back into a domain object.
type DeserializeFunc func(data []byte) (any, error)

// Global registries map event types to their serialization functions,
// allowing dynamic dispatch based on event type at runtime.
var (
	serializerRegistry   = map[events.EventType]SerializeFunc{}
	deserializerRegistry = map[events.EventType]DeserializeFunc{}
)

// RegisterSerializeFunc registers a serialization function for an event type.
func RegisterSerializeFunc(eventType events.EventType, fn SerializeFunc) {
	serializerRegistry[eventType] = fn
}

// RegisterDeserializeFunc registers a deserialization function for an event type.
func RegisterDeserializeFunc(eventType events.EventType, fn DeserializeFunc) {
	deserializerRegistry[eventType] = fn
}

// SerializePayload converts a domain object into bytes using the registered
// serializer for its event type. Returns an error if none is registered.
func SerializePayload(eventType events.EventType, payload any) ([]byte, error) {
	fn, ok := serializerRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("no serializer registered for eventType=%s", eventType)
	}
	return fn(payload)
}

// DeserializePayload converts bytes back into a domain object using the
// registered deserializer for its event type.
func DeserializePayload(eventType events.EventType, data []byte) (any, error) {
	fn, ok := deserializerRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("no deserializer registered for eventType=%s", eventType)
	}
	return fn(data)
}

func init() {
	RegisterEventSerializers()
}

// RegisterEventSerializers initializes the serialization system by
// registering handlers for all supported event types. Registration happens
// at package init time, before any event processing can occur.
func RegisterEventSerializers() {
	RegisterSerializeFunc(lookup.EventTypeJobSubmitted, serializeJSON[lookup.JobSubmittedEvent])
	RegisterDeserializeFunc(lookup.EventTypeJobSubmitted, deserializeJSON[lookup.JobSubmittedEvent])

	RegisterSerializeFunc(lookup.EventTypeTaskCompleted, serializeJSON[lookup.TaskCompletedEvent])
	RegisterDeserializeFunc(lookup.EventTypeTaskCompleted, deserializeJSON[lookup.TaskCompletedEvent])

	for _, et := range lookup.AllCheckEventTypes() {
		RegisterSerializeFunc(et, serializeJSON[lookup.CheckCommand])
		RegisterDeserializeFunc(et, deserializeJSON[lookup.CheckCommand])
	}
}
