package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/ahrav/netscout/internal/domain/events"
)

// universalEnvelope is the broker-agnostic wire wrapper around every
// serialized payload. Carrying the event type inside the message body keeps
// deserialization independent of topic layout.
type universalEnvelope struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// SerializeEventEnvelope wraps a payload in the universal envelope and
// returns the full message bytes ready for the broker.
func SerializeEventEnvelope(eventType events.EventType, payload any) ([]byte, error) {
	payloadBytes, err := SerializePayload(eventType, payload)
	if err != nil {
		return nil, err
	}

	env := universalEnvelope{EventType: string(eventType), Payload: payloadBytes}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal universal envelope: %w", err)
	}
	return data, nil
}

// UnmarshalUniversalEnvelope splits raw message bytes back into the event
// type and the still-serialized domain payload.
func UnmarshalUniversalEnvelope(data []byte) (events.EventType, []byte, error) {
	var env universalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal universal envelope: %w", err)
	}
	if env.EventType == "" {
		return "", nil, fmt.Errorf("universal envelope missing event type")
	}
	return events.EventType(env.EventType), env.Payload, nil
}

// serializeJSON is the generic JSON serializer used for every lookup event.
func serializeJSON[T any](payload any) ([]byte, error) {
	typed, ok := payload.(T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("payload is %T, want %T", payload, zero)
	}
	return json.Marshal(typed)
}

// deserializeJSON is the generic JSON deserializer counterpart.
func deserializeJSON[T any](data []byte) (any, error) {
	var typed T
	if err := json.Unmarshal(data, &typed); err != nil {
		var zero T
		return nil, fmt.Errorf("unmarshal %T: %w", zero, err)
	}
	return typed, nil
}
