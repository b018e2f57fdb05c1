// Package coordinator is the authenticated request channel to the remote
// coordinator that waits on this device's availability answers.
package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	apicoordinator "github.com/tiger/push-call-responder/api/coordinator"
)

const (
	callResponsePath       = "/v1/call-responses"
	deviceRegistrationPath = "/v1/device-registrations"
)

// HTTPClient is the transport seam used by the coordinator client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the coordinator channel.
type Config struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
}

// Client sends call responses and keeps the device registration record
// current. All operations return an error only for this delivery attempt;
// callers never retry.
type Client struct {
	cfg     Config
	baseURL *url.URL
	client  HTTPClient
}

// NewClient constructs a coordinator client.
func NewClient(cfg Config, client HTTPClient) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("coordinator base url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse coordinator base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("coordinator base url must include scheme and host")
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
	return &Client{cfg: cfg, baseURL: parsed, client: client}, nil
}

// SendCallResponse reports one availability decision.
func (c *Client) SendCallResponse(ctx context.Context, response apicoordinator.CallResponse) error {
	if err := response.Validate(); err != nil {
		return err
	}
	return c.send(ctx, http.MethodPost, callResponsePath, response)
}

// UpsertDeviceRegistration creates or updates the device registration record.
func (c *Client) UpsertDeviceRegistration(ctx context.Context, registration apicoordinator.DeviceRegistration) error {
	if err := registration.Validate(); err != nil {
		return err
	}
	return c.send(ctx, http.MethodPut, deviceRegistrationPath, registration)
}

// DeleteDeviceRegistration removes the device registration record.
func (c *Client) DeleteDeviceRegistration(ctx context.Context, registration apicoordinator.DeviceRegistration) error {
	if err := registration.Validate(); err != nil {
		return err
	}
	return c.send(ctx, http.MethodDelete, deviceRegistrationPath, registration)
}

func (c *Client) send(ctx context.Context, method, route string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal coordinator payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := *c.baseURL
	u.Path = path.Join(strings.TrimRight(u.Path, "/"), route)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build coordinator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return normalizeNetworkError(err)
	}
	defer resp.Body.Close()

	return normalizeStatus(resp.StatusCode)
}

func normalizeNetworkError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("coordinator_cancelled: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("coordinator_timeout: %w", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("coordinator_timeout: %w", err)
	}
	return fmt.Errorf("coordinator_transport_error: %w", err)
}

func normalizeStatus(status int) error {
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("coordinator_auth_rejected: status %d", status)
	case status >= 400 && status <= 499:
		return fmt.Errorf("coordinator_request_rejected: status %d", status)
	default:
		return fmt.Errorf("coordinator_server_error: status %d", status)
	}
}
