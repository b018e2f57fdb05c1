// Package responder drives one push payload through classification,
// decision, and response reporting.
package responder

import (
	"context"
	"fmt"
	"time"

	"github.com/tiger/push-call-responder/api/pushabi"
	"github.com/tiger/push-call-responder/internal/observability/telemetry"
	"github.com/tiger/push-call-responder/internal/runtime/classification"
)

// Decider produces the availability decision for a call event.
type Decider interface {
	Decide(ctx context.Context, event pushabi.IncomingEvent) pushabi.AvailabilityDecision
}

// Dispatcher delivers the decision to the coordinator fire-and-observe.
type Dispatcher interface {
	Report(decision pushabi.AvailabilityDecision, receivedAt time.Time)
}

// Responder is the ingress entry point shared by all push transports.
type Responder struct {
	decider    Decider
	dispatcher Dispatcher
	emitter    telemetry.Emitter
	now        func() time.Time
}

// New constructs a responder.
func New(decider Decider, dispatcher Dispatcher, emitter telemetry.Emitter, now func() time.Time) (*Responder, error) {
	if decider == nil {
		return nil, fmt.Errorf("decider is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if emitter == nil {
		emitter = telemetry.NoopEmitter()
	}
	if now == nil {
		now = time.Now
	}
	return &Responder{decider: decider, dispatcher: dispatcher, emitter: emitter, now: now}, nil
}

// HandlePush processes one delivered payload. The receipt timestamp is
// captured before any classification or reachability work so the latency
// observation covers the full user-perceived span. Call events produce one
// decision and one report; checkin, message, and unknown payloads are
// counted and otherwise not acknowledged.
func (r *Responder) HandlePush(ctx context.Context, payload map[string]any) (pushabi.EventKind, error) {
	receivedAt := r.now()

	event, err := classification.Classify(payload)
	if err != nil {
		return pushabi.KindUnknown, err
	}

	r.emitter.EmitMetric(
		telemetry.MetricIngressEventsTotal,
		1,
		"",
		map[string]string{"kind": string(event.Kind)},
		telemetry.Correlation{EmittedBy: "responder", ReceivedAtMS: receivedAt.UnixMilli()},
	)

	if event.Kind != pushabi.KindCall {
		return event.Kind, nil
	}

	decision := r.decider.Decide(ctx, event)
	r.dispatcher.Report(decision, receivedAt)
	return event.Kind, nil
}
