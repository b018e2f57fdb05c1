package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPipelineExportsMetricAndOutcome(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	pipeline := NewPipeline(sink, Config{QueueCapacity: 8})

	correlation := Correlation{
		EventID:      "evt-1",
		CallID:       "call-1",
		TokenDigest:  TokenDigest("tok-1"),
		EmittedBy:    "reporter",
		ReceivedAtMS: 1700,
	}
	pipeline.EmitMetric(MetricDecisionLatencyMS, 42, "ms", nil, correlation)
	pipeline.EmitOutcome(OutcomeCallAccepted, "info", "call answered available", nil, correlation)

	if err := pipeline.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	events := sink.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 exported events, got %d", len(events))
	}
	if events[0].Metric == nil || events[0].Metric.Name != MetricDecisionLatencyMS {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[0].Metric.Value != 42 {
		t.Fatalf("unexpected metric value: %+v", events[0].Metric)
	}
	if events[1].Log == nil || events[1].Log.Name != OutcomeCallAccepted {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	if events[1].Correlation.EventID != "evt-1" || events[1].Correlation.TokenDigest == "" {
		t.Fatalf("correlation not carried: %+v", events[1].Correlation)
	}
	if events[0].TimestampMS != 1700 {
		t.Fatalf("expected receipt timestamp to stamp the event, got %d", events[0].TimestampMS)
	}
}

func TestPipelineDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	sink := sinkFunc(func(ctx context.Context, _ Event) error {
		select {
		case <-block:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	pipeline := NewPipeline(sink, Config{QueueCapacity: 1, ExportTimeout: 50 * time.Millisecond})
	defer pipeline.Close()

	for i := 0; i < 16; i++ {
		pipeline.EmitOutcome(OutcomeCallRejected, "info", "rejected", nil, Correlation{})
	}
	close(block)

	stats := pipeline.Stats()
	if stats.Dropped == 0 {
		t.Fatalf("expected drops under full queue, got %+v", stats)
	}
	if stats.Enqueued+stats.Dropped != 16 {
		t.Fatalf("expected enqueued+dropped to account for all emissions, got %+v", stats)
	}
}

func TestPipelineCountsExportFailures(t *testing.T) {
	t.Parallel()

	sink := sinkFunc(func(context.Context, Event) error {
		return errors.New("export refused")
	})
	pipeline := NewPipeline(sink, Config{QueueCapacity: 4})
	pipeline.EmitMetric(MetricIngressEventsTotal, 1, "", map[string]string{"kind": "checkin"}, Correlation{})
	if err := pipeline.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	stats := pipeline.Stats()
	if stats.ExportFailures != 1 || stats.Exported != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestTokenDigestIsStableAndNeverRaw(t *testing.T) {
	t.Parallel()

	if TokenDigest(" ") != "" {
		t.Fatalf("expected blank token to digest to empty string")
	}
	first := TokenDigest("tok-abcdef")
	second := TokenDigest("tok-abcdef")
	if first == "" || first != second {
		t.Fatalf("expected stable digest, got %q and %q", first, second)
	}
	if first == "tok-abcdef" {
		t.Fatalf("digest must not echo the raw token")
	}
}

type sinkFunc func(context.Context, Event) error

func (f sinkFunc) Export(ctx context.Context, event Event) error { return f(ctx, event) }
