// Package wsingress delivers push payloads to the responder over a
// persistent websocket to a push gateway.
package wsingress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiger/push-call-responder/api/pushabi"
	"github.com/tiger/push-call-responder/internal/observability/telemetry"
)

const outcomePushPayloadInvalid = "push_payload_invalid"

// Handler consumes one delivered push payload.
type Handler interface {
	HandlePush(ctx context.Context, payload map[string]any) (pushabi.EventKind, error)
}

// Config controls the gateway connection.
type Config struct {
	// URL is the gateway websocket endpoint (ws:// or wss://).
	URL string
	// PushToken identifies this device to the gateway.
	PushToken string
	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	return c
}

// Listener holds one live gateway connection.
type Listener struct {
	conn    *websocket.Conn
	handler Handler
	emitter telemetry.Emitter
}

// Dial connects to the push gateway, identifying the device by token.
func Dial(ctx context.Context, cfg Config, handler Handler, emitter telemetry.Emitter) (*Listener, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("gateway url is required")
	}
	if strings.TrimSpace(cfg.PushToken) == "" {
		return nil, fmt.Errorf("push token is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("push handler is required")
	}
	if emitter == nil {
		emitter = telemetry.NoopEmitter()
	}

	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	query := endpoint.Query()
	query.Set("token", strings.TrimSpace(cfg.PushToken))
	endpoint.RawQuery = query.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial gateway: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	return &Listener{conn: conn, handler: handler, emitter: emitter}, nil
}

// Run reads push frames until the context ends or the connection drops.
// Each frame is one JSON payload; undecodable frames are observed and
// skipped without dropping the connection.
func (l *Listener) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := l.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gateway read: %w", err)
		}

		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			l.emitter.EmitOutcome(
				outcomePushPayloadInvalid,
				"warn",
				fmt.Sprintf("decode push frame: %v", err),
				map[string]string{"transport": "websocket"},
				telemetry.Correlation{EmittedBy: "wsingress"},
			)
			continue
		}
		if _, err := l.handler.HandlePush(ctx, payload); err != nil {
			l.emitter.EmitOutcome(
				outcomePushPayloadInvalid,
				"warn",
				err.Error(),
				map[string]string{"transport": "websocket"},
				telemetry.Correlation{EmittedBy: "wsingress"},
			)
		}
	}
}

// Close drops the gateway connection.
func (l *Listener) Close() error {
	if l == nil || l.conn == nil {
		return nil
	}
	return l.conn.Close()
}
