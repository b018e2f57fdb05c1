// Package endpoint brings the local real-time communication account into a
// state capable of accepting a call.
package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Registrar attempts synchronous endpoint registration with the provider.
// Register reports whether the endpoint is ready; it never returns an error
// because a registration that cannot complete is simply not ready. The
// context bounds worst-case latency; timeout or cancel reports false.
type Registrar interface {
	Register(ctx context.Context) bool
}

// RegistrarFunc adapts a function to the Registrar interface.
type RegistrarFunc func(ctx context.Context) bool

// Register calls f.
func (f RegistrarFunc) Register(ctx context.Context) bool { return f(ctx) }

// HTTPClient is the transport seam used by the HTTP registrar.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures registration against a provider endpoint.
type Config struct {
	Endpoint     string
	AccountID    string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
}

// HTTPRegistrar registers the account over JSON/HTTP.
type HTTPRegistrar struct {
	cfg    Config
	client HTTPClient
}

// NewHTTPRegistrar constructs a registrar. A nil client uses a default
// http.Client bounded by the configured timeout.
func NewHTTPRegistrar(cfg Config, client HTTPClient) (*HTTPRegistrar, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("registrar endpoint is required")
	}
	if strings.TrimSpace(cfg.AccountID) == "" {
		return nil, fmt.Errorf("registrar account_id is required")
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "Authorization"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPRegistrar{cfg: cfg, client: client}, nil
}

// Register performs one registration attempt. Any transport error,
// non-2xx status, timeout, or cancellation reports not ready.
func (r *HTTPRegistrar) Register(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"account_id": r.cfg.AccountID})
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set(r.cfg.APIKeyHeader, r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}
