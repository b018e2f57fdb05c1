package pushabi

import "fmt"

// DiscriminatorKey is the payload key that names the push event type.
const DiscriminatorKey = "type"

// EventKind classifies an inbound push payload.
type EventKind string

const (
	KindCall    EventKind = "call"
	KindCheckin EventKind = "checkin"
	KindMessage EventKind = "message"
	KindUnknown EventKind = "unknown"
)

// ParseEventKind maps a raw discriminator value to a typed kind.
// Unrecognized values fold to KindUnknown rather than failing.
func ParseEventKind(raw string) EventKind {
	switch EventKind(raw) {
	case KindCall, KindCheckin, KindMessage:
		return EventKind(raw)
	default:
		return KindUnknown
	}
}

// IncomingEvent is an immutable snapshot of one delivered push payload.
// Payload carries the original key/value mapping so a later response can
// echo it back to the coordinator for correlation.
type IncomingEvent struct {
	Kind    EventKind
	Payload map[string]any
}

// Validate checks the event carries what a response needs.
func (e IncomingEvent) Validate() error {
	switch e.Kind {
	case KindCall, KindCheckin, KindMessage, KindUnknown:
	default:
		return fmt.Errorf("invalid event kind: %s", e.Kind)
	}
	if e.Kind == KindCall && len(e.Payload) == 0 {
		return fmt.Errorf("call events require a correlation payload")
	}
	return nil
}

// ClonePayload returns a shallow copy of the event payload mapping.
func (e IncomingEvent) ClonePayload() map[string]any {
	if e.Payload == nil {
		return nil
	}
	out := make(map[string]any, len(e.Payload))
	for k, v := range e.Payload {
		out[k] = v
	}
	return out
}

// AvailabilityDecision is the accept/reject answer for one call event.
// It is produced exactly once per call and never recomputed.
type AvailabilityDecision struct {
	Available bool
	Event     IncomingEvent
}
