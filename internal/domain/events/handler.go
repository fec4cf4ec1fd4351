package events

import "context"

// AckFunc acknowledges processing of an event back to the delivery system.
// A nil error marks the message as successfully consumed; a non-nil error
// leaves it un-acked so at-least-once delivery can redeliver it.
type AckFunc func(err error)

// HandlerFunc processes a single event envelope. Implementations must be
// idempotent: the bus guarantees at-least-once delivery, so the same
// envelope may be seen more than once.
type HandlerFunc func(ctx context.Context, evt EventEnvelope, ack AckFunc) error
