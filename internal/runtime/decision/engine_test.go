package decision

import (
	"context"
	"testing"

	"github.com/tiger/push-call-responder/api/pushabi"
	"github.com/tiger/push-call-responder/internal/credentials"
	"github.com/tiger/push-call-responder/internal/endpoint"
	"github.com/tiger/push-call-responder/internal/runtime/reachability"
)

type countingRegistrar struct {
	calls int
	ready bool
}

func (r *countingRegistrar) Register(context.Context) bool {
	r.calls++
	return r.ready
}

func callEvent() pushabi.IncomingEvent {
	return pushabi.IncomingEvent{
		Kind:    pushabi.KindCall,
		Payload: map[string]any{"type": "call", "call_id": "c-1"},
	}
}

func snapshotOf(state credentials.State) SnapshotFunc {
	return func() credentials.State { return state }
}

func TestDecideAvailableWhenAllGatesHold(t *testing.T) {
	t.Parallel()

	registrar := &countingRegistrar{ready: true}
	engine, err := NewEngine(
		reachability.StaticSource{Status: reachability.StatusHighSpeed},
		snapshotOf(credentials.State{Enabled: true}),
		registrar,
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	decision := engine.Decide(context.Background(), callEvent())
	if !decision.Available {
		t.Fatalf("expected available decision, got %+v", decision)
	}
	if registrar.calls != 1 {
		t.Fatalf("expected exactly one registration attempt, got %d", registrar.calls)
	}
	if decision.Event.Payload["call_id"] != "c-1" {
		t.Fatalf("decision must carry the originating event: %+v", decision.Event)
	}
}

func TestDecideShortCircuitsOnReachability(t *testing.T) {
	t.Parallel()

	for _, status := range []reachability.Status{reachability.StatusUnavailable, reachability.StatusLowSpeed} {
		registrar := &countingRegistrar{ready: true}
		engine, err := NewEngine(
			reachability.StaticSource{Status: status},
			snapshotOf(credentials.State{Enabled: true}),
			registrar,
		)
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}

		decision := engine.Decide(context.Background(), callEvent())
		if decision.Available {
			t.Fatalf("reachability %s should decide not available", status)
		}
		if registrar.calls != 0 {
			t.Fatalf("reachability %s should never invoke the registrar, got %d calls", status, registrar.calls)
		}
	}
}

func TestDecideShortCircuitsWhenDisabled(t *testing.T) {
	t.Parallel()

	registrar := &countingRegistrar{ready: true}
	engine, err := NewEngine(
		reachability.StaticSource{Status: reachability.StatusHighSpeed},
		snapshotOf(credentials.State{Enabled: false}),
		registrar,
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	decision := engine.Decide(context.Background(), callEvent())
	if decision.Available {
		t.Fatalf("disabled communication should decide not available")
	}
	if registrar.calls != 0 {
		t.Fatalf("disabled communication should never invoke the registrar, got %d calls", registrar.calls)
	}
}

func TestDecideFoldsRegistrarFailure(t *testing.T) {
	t.Parallel()

	registrar := &countingRegistrar{ready: false}
	engine, err := NewEngine(
		reachability.StaticSource{Status: reachability.StatusHighSpeed},
		snapshotOf(credentials.State{Enabled: true}),
		registrar,
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	decision := engine.Decide(context.Background(), callEvent())
	if decision.Available {
		t.Fatalf("registrar failure must fold into not available")
	}
	if registrar.calls != 1 {
		t.Fatalf("expected one registration attempt, got %d", registrar.calls)
	}
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	t.Parallel()

	source := reachability.StaticSource{Status: reachability.StatusHighSpeed}
	snapshot := snapshotOf(credentials.State{})
	registrar := endpoint.RegistrarFunc(func(context.Context) bool { return true })

	if _, err := NewEngine(nil, snapshot, registrar); err == nil {
		t.Fatalf("expected nil source to fail")
	}
	if _, err := NewEngine(source, nil, registrar); err == nil {
		t.Fatalf("expected nil snapshot accessor to fail")
	}
	if _, err := NewEngine(source, snapshot, nil); err == nil {
		t.Fatalf("expected nil registrar to fail")
	}
}
