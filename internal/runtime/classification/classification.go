package classification

import (
	"fmt"

	"github.com/tiger/push-call-responder/api/pushabi"
)

// Classify maps one delivered push payload to a typed incoming event.
// The payload is copied so later mutation by the transport cannot reach
// the event; the copy is what a call response echoes back.
// A missing or unrecognized discriminator yields KindUnknown, which is a
// benign classification miss rather than an error.
func Classify(payload map[string]any) (pushabi.IncomingEvent, error) {
	if payload == nil {
		return pushabi.IncomingEvent{}, fmt.Errorf("push payload is required")
	}

	snapshot := make(map[string]any, len(payload))
	for k, v := range payload {
		snapshot[k] = v
	}

	kind := pushabi.KindUnknown
	if raw, ok := snapshot[pushabi.DiscriminatorKey]; ok {
		value, isString := raw.(string)
		if !isString {
			return pushabi.IncomingEvent{}, fmt.Errorf("push discriminator %q must be a string", pushabi.DiscriminatorKey)
		}
		kind = pushabi.ParseEventKind(value)
	}

	event := pushabi.IncomingEvent{Kind: kind, Payload: snapshot}
	if err := event.Validate(); err != nil {
		return pushabi.IncomingEvent{}, err
	}
	return event, nil
}
