package reachability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPClient is the transport seam used for reachability probing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ProbeConfig controls latency-based reachability classification.
type ProbeConfig struct {
	// Endpoint is probed with a lightweight GET; any 2xx counts.
	Endpoint string
	// HighSpeedBelow classifies round trips faster than this as high speed.
	HighSpeedBelow time.Duration
	// Timeout bounds one probe round trip; slower or failed probes
	// classify as unavailable.
	Timeout time.Duration
}

func (c ProbeConfig) withDefaults() ProbeConfig {
	if c.HighSpeedBelow <= 0 {
		c.HighSpeedBelow = 250 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	return c
}

// ProbeSource classifies reachability by probing an HTTP endpoint and
// caching the result. CurrentStatus reads the cached snapshot and never
// blocks; Refresh performs the network round trip.
type ProbeSource struct {
	cfg    ProbeConfig
	client HTTPClient
	now    func() time.Time

	mu     sync.RWMutex
	status Status
}

// NewProbeSource creates a probe-backed reachability source. The snapshot
// starts as unavailable until the first successful refresh.
func NewProbeSource(cfg ProbeConfig, client HTTPClient, now func() time.Time) (*ProbeSource, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("probe endpoint is required")
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if now == nil {
		now = time.Now
	}
	return &ProbeSource{
		cfg:    cfg,
		client: client,
		now:    now,
		status: StatusUnavailable,
	}, nil
}

// CurrentStatus returns the last probed status.
func (s *ProbeSource) CurrentStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Refresh probes the endpoint once and updates the cached status.
// Probe failures are not errors; they classify as unavailable.
func (s *ProbeSource) Refresh(ctx context.Context) Status {
	status := s.probe(ctx)
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	return status
}

// Run refreshes on the given interval until the context ends.
func (s *ProbeSource) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *ProbeSource) probe(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Endpoint, nil)
	if err != nil {
		return StatusUnavailable
	}

	started := s.now()
	resp, err := s.client.Do(req)
	if err != nil {
		return StatusUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusUnavailable
	}
	if s.now().Sub(started) < s.cfg.HighSpeedBelow {
		return StatusHighSpeed
	}
	return StatusLowSpeed
}
