package telemetry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MetricDecisionLatencyMS captures per-call decision latency, measured
	// from push receipt to response delivery completion.
	MetricDecisionLatencyMS = "decision_latency_ms"
	// MetricIngressEventsTotal counts delivered push payloads by kind.
	MetricIngressEventsTotal = "ingress_events_total"
)

const (
	// OutcomeCallAccepted marks a call answered as available.
	OutcomeCallAccepted = "call_accepted"
	// OutcomeCallRejected marks a call answered as not available.
	OutcomeCallRejected = "call_rejected"
	// OutcomeResponseDeliveryFailed marks a call response that never reached
	// the coordinator.
	OutcomeResponseDeliveryFailed = "call_response_delivery_failed"
	// OutcomeRegistrationUpsertFailed marks a failed device-registration
	// upsert, which forces local disablement.
	OutcomeRegistrationUpsertFailed = "registration_upsert_failed"
	// OutcomeRegistrationUpsertSkipped marks an enabled change that carried
	// no valid token/account pair to register.
	OutcomeRegistrationUpsertSkipped = "registration_upsert_skipped"
	// OutcomeRegistrationDeleteAttempted marks a device-registration delete
	// sent to the coordinator.
	OutcomeRegistrationDeleteAttempted = "registration_delete_attempted"
	// OutcomeRegistrationDeleteSucceeded marks a confirmed delete.
	OutcomeRegistrationDeleteSucceeded = "registration_delete_succeeded"
	// OutcomeRegistrationDeleteFailed marks a delete the coordinator refused.
	OutcomeRegistrationDeleteFailed = "registration_delete_failed"
	// OutcomeRegistrationDeleteSkipped marks a delete skipped because no
	// valid token/account pair remained locally.
	OutcomeRegistrationDeleteSkipped = "registration_delete_skipped"
)

// EventKind defines telemetry payload kind.
type EventKind string

const (
	EventKindMetric EventKind = "metric"
	EventKindLog    EventKind = "log"
)

// Correlation carries the identity fields that tie an emission back to one
// push event or one registration transition.
type Correlation struct {
	EventID      string `json:"event_id,omitempty"`
	CallID       string `json:"call_id,omitempty"`
	AccountID    string `json:"account_id,omitempty"`
	TokenDigest  string `json:"token_digest,omitempty"`
	EmittedBy    string `json:"emitted_by,omitempty"`
	ReceivedAtMS int64  `json:"received_at_ms,omitempty"`
}

// MetricEvent captures a metric sample payload.
type MetricEvent struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// LogEvent captures an outcome or diagnostic log payload.
type LogEvent struct {
	Name       string            `json:"name"`
	Severity   string            `json:"severity"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Event is the normalized telemetry emission envelope.
type Event struct {
	Kind        EventKind    `json:"kind"`
	TimestampMS int64        `json:"timestamp_ms"`
	Correlation Correlation  `json:"correlation"`
	Metric      *MetricEvent `json:"metric,omitempty"`
	Log         *LogEvent    `json:"log,omitempty"`
}

// Sink exports normalized telemetry events.
type Sink interface {
	Export(context.Context, Event) error
}

// Emitter defines a non-blocking telemetry emission handle.
type Emitter interface {
	EmitMetric(name string, value float64, unit string, attributes map[string]string, correlation Correlation)
	EmitOutcome(name, severity, message string, attributes map[string]string, correlation Correlation)
}

type noopEmitter struct{}

func (noopEmitter) EmitMetric(string, float64, string, map[string]string, Correlation) {}
func (noopEmitter) EmitOutcome(string, string, string, map[string]string, Correlation) {}

// NoopEmitter returns an emitter that drops everything.
func NoopEmitter() Emitter { return noopEmitter{} }

// Config controls bounded queue and export behavior.
type Config struct {
	QueueCapacity int
	ExportTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity < 1 {
		c.QueueCapacity = 256
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = 200 * time.Millisecond
	}
	return c
}

// Stats captures current pipeline counters.
type Stats struct {
	Enqueued       uint64
	Dropped        uint64
	Exported       uint64
	ExportFailures uint64
	QueueDepth     int
}

// Pipeline is a bounded non-blocking telemetry pipeline. Emissions never
// block the caller; when the queue is full they are dropped and counted.
type Pipeline struct {
	sink Sink
	cfg  Config

	queue chan Event
	stop  chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup

	enqueued       atomic.Uint64
	dropped        atomic.Uint64
	exported       atomic.Uint64
	exportFailures atomic.Uint64
}

type discardSink struct{}

func (discardSink) Export(context.Context, Event) error { return nil }

// NewPipeline constructs and starts a telemetry pipeline.
func NewPipeline(sink Sink, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = discardSink{}
	}
	p := &Pipeline{
		sink:  sink,
		cfg:   cfg,
		queue: make(chan Event, cfg.QueueCapacity),
		stop:  make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Close drains pending events and stops background export.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		p.wg.Wait()
	})
	return nil
}

// Stats returns current queue/counter snapshots.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Enqueued:       p.enqueued.Load(),
		Dropped:        p.dropped.Load(),
		Exported:       p.exported.Load(),
		ExportFailures: p.exportFailures.Load(),
		QueueDepth:     len(p.queue),
	}
}

// EmitMetric enqueues a metric sample without blocking.
func (p *Pipeline) EmitMetric(name string, value float64, unit string, attributes map[string]string, correlation Correlation) {
	p.enqueue(Event{
		Kind:        EventKindMetric,
		TimestampMS: eventTimestampMS(correlation),
		Correlation: normalizeCorrelation(correlation),
		Metric: &MetricEvent{
			Name:       strings.TrimSpace(name),
			Value:      value,
			Unit:       strings.TrimSpace(unit),
			Attributes: cloneAttributes(attributes),
		},
	})
}

// EmitOutcome enqueues an outcome log event without blocking.
func (p *Pipeline) EmitOutcome(name, severity, message string, attributes map[string]string, correlation Correlation) {
	p.enqueue(Event{
		Kind:        EventKindLog,
		TimestampMS: eventTimestampMS(correlation),
		Correlation: normalizeCorrelation(correlation),
		Log: &LogEvent{
			Name:       strings.TrimSpace(name),
			Severity:   strings.TrimSpace(severity),
			Message:    message,
			Attributes: cloneAttributes(attributes),
		},
	})
}

func (p *Pipeline) enqueue(event Event) {
	select {
	case p.queue <- event:
		p.enqueued.Add(1)
	default:
		p.dropped.Add(1)
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			for {
				select {
				case event := <-p.queue:
					p.export(event)
				default:
					return
				}
			}
		case event := <-p.queue:
			p.export(event)
		}
	}
}

func (p *Pipeline) export(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ExportTimeout)
	defer cancel()
	if err := p.sink.Export(ctx, event); err != nil {
		p.exportFailures.Add(1)
		return
	}
	p.exported.Add(1)
}

func eventTimestampMS(correlation Correlation) int64 {
	if correlation.ReceivedAtMS > 0 {
		return correlation.ReceivedAtMS
	}
	return time.Now().UnixMilli()
}

func normalizeCorrelation(c Correlation) Correlation {
	if c.ReceivedAtMS < 0 {
		c.ReceivedAtMS = 0
	}
	c.EventID = strings.TrimSpace(c.EventID)
	c.CallID = strings.TrimSpace(c.CallID)
	c.AccountID = strings.TrimSpace(c.AccountID)
	c.TokenDigest = strings.TrimSpace(c.TokenDigest)
	c.EmittedBy = strings.TrimSpace(c.EmittedBy)
	return c
}

func cloneAttributes(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
