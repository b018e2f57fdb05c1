// Package decision derives the availability answer for one call event from
// current reachability and credential state.
package decision

import (
	"context"
	"fmt"

	"github.com/tiger/push-call-responder/api/pushabi"
	"github.com/tiger/push-call-responder/internal/credentials"
	"github.com/tiger/push-call-responder/internal/endpoint"
	"github.com/tiger/push-call-responder/internal/runtime/reachability"
)

// SnapshotFunc returns the current credential state. Snapshots are atomic
// reads; the engine holds no credential state of its own.
type SnapshotFunc func() credentials.State

// Engine decides call availability. Both gates must hold before the
// registrar is invoked: reachability at high speed and real-time
// communication enabled. A registration attempt on a doomed call is wasted
// network churn, so either gate failing short-circuits to not available.
type Engine struct {
	source    reachability.Source
	snapshot  SnapshotFunc
	registrar endpoint.Registrar
}

// NewEngine constructs a decision engine from its three collaborators.
func NewEngine(source reachability.Source, snapshot SnapshotFunc, registrar endpoint.Registrar) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("reachability source is required")
	}
	if snapshot == nil {
		return nil, fmt.Errorf("credential snapshot accessor is required")
	}
	if registrar == nil {
		return nil, fmt.Errorf("endpoint registrar is required")
	}
	return &Engine{source: source, snapshot: snapshot, registrar: registrar}, nil
}

// Decide produces the availability decision for an already-classified call
// event. It always produces a decision: a failed or timed-out registration
// folds into "not available" rather than surfacing an error. The registrar
// call blocks until it returns; the coordinator is waiting on this answer
// and must not hear "available" before the endpoint is actually ready.
func (e *Engine) Decide(ctx context.Context, event pushabi.IncomingEvent) pushabi.AvailabilityDecision {
	if e.source.CurrentStatus() != reachability.StatusHighSpeed {
		return pushabi.AvailabilityDecision{Available: false, Event: event}
	}
	if !e.snapshot().Enabled {
		return pushabi.AvailabilityDecision{Available: false, Event: event}
	}
	return pushabi.AvailabilityDecision{
		Available: e.registrar.Register(ctx),
		Event:     event,
	}
}
