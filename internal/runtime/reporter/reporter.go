// Package reporter delivers availability decisions to the remote
// coordinator exactly once per call event and observes decision latency.
package reporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apicoordinator "github.com/tiger/push-call-responder/api/coordinator"
	"github.com/tiger/push-call-responder/api/pushabi"
	"github.com/tiger/push-call-responder/internal/observability/telemetry"
)

// Channel is the coordinator operation the reporter consumes.
type Channel interface {
	SendCallResponse(ctx context.Context, response apicoordinator.CallResponse) error
}

// Config bounds one delivery attempt.
type Config struct {
	DeliveryTimeout time.Duration
	// DedupeWindow caps how many recent call identities are remembered for
	// duplicate suppression; the oldest entry is evicted past the cap.
	DedupeWindow int
}

// Reporter sends decisions fire-and-observe: callers never wait on delivery,
// and a delivery failure is terminal for that event. The decision itself is
// final before Report is called; only its delivery can fail.
type Reporter struct {
	channel Channel
	emitter telemetry.Emitter
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex
	reported map[string]struct{}
	order    []string
	wg       sync.WaitGroup
}

// New constructs a reporter. A nil emitter drops observations; a nil now
// uses the wall clock.
func New(channel Channel, emitter telemetry.Emitter, cfg Config, now func() time.Time) (*Reporter, error) {
	if channel == nil {
		return nil, fmt.Errorf("coordinator channel is required")
	}
	if emitter == nil {
		emitter = telemetry.NoopEmitter()
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &Reporter{
		channel:  channel,
		emitter:  emitter,
		cfg:      cfg,
		now:      now,
		reported: make(map[string]struct{}),
	}, nil
}

// Report delivers one decision asynchronously. receivedAt is the timestamp
// captured when the originating push was first observed; the latency
// observation spans from there to delivery completion, so it includes
// reachability and registration time, not just the network round trip.
// A second report for the same call identity is suppressed while the
// identity remains within the dedupe window.
func (r *Reporter) Report(decision pushabi.AvailabilityDecision, receivedAt time.Time) {
	if key, ok := callIdentity(decision.Event); ok {
		r.mu.Lock()
		if _, dup := r.reported[key]; dup {
			r.mu.Unlock()
			return
		}
		r.reported[key] = struct{}{}
		r.order = append(r.order, key)
		if len(r.order) > r.cfg.DedupeWindow {
			delete(r.reported, r.order[0])
			r.order = r.order[1:]
		}
		r.mu.Unlock()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.deliver(decision, receivedAt)
	}()
}

// Close waits for in-flight deliveries to complete.
func (r *Reporter) Close() error {
	r.wg.Wait()
	return nil
}

func (r *Reporter) deliver(decision pushabi.AvailabilityDecision, receivedAt time.Time) {
	response := apicoordinator.CallResponse{
		ReportID:  uuid.NewString(),
		Available: decision.Available,
		Payload:   decision.Event.ClonePayload(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.DeliveryTimeout)
	defer cancel()
	err := r.channel.SendCallResponse(ctx, response)

	correlation := telemetry.Correlation{
		EventID:      response.ReportID,
		EmittedBy:    "reporter",
		ReceivedAtMS: receivedAt.UnixMilli(),
	}
	if callID, ok := callIdentity(decision.Event); ok {
		correlation.CallID = callID
	}

	outcome := telemetry.OutcomeCallRejected
	if decision.Available {
		outcome = telemetry.OutcomeCallAccepted
	}
	if err != nil {
		r.emitter.EmitOutcome(
			telemetry.OutcomeResponseDeliveryFailed,
			"error",
			err.Error(),
			map[string]string{"decision": outcome},
			correlation,
		)
	} else {
		r.emitter.EmitOutcome(outcome, "info", "call response delivered", nil, correlation)
	}

	latency := r.now().Sub(receivedAt)
	if latency < 0 {
		latency = 0
	}
	r.emitter.EmitMetric(
		telemetry.MetricDecisionLatencyMS,
		float64(latency.Milliseconds()),
		"ms",
		map[string]string{"delivered": fmt.Sprintf("%t", err == nil)},
		correlation,
	)
}

func callIdentity(event pushabi.IncomingEvent) (string, bool) {
	raw, ok := event.Payload["call_id"]
	if !ok {
		return "", false
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
