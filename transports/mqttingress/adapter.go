// Package mqttingress delivers push payloads to the responder over an MQTT
// broker subscription. Each device listens on a topic scoped to its push
// token.
package mqttingress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tiger/push-call-responder/api/pushabi"
	"github.com/tiger/push-call-responder/internal/observability/telemetry"
)

// TopicPrefix anchors per-device push topics.
const TopicPrefix = "pcr/push/"

const outcomePushPayloadInvalid = "push_payload_invalid"

// Topic returns the push topic for one device token.
func Topic(pushToken string) string {
	return TopicPrefix + strings.TrimSpace(pushToken)
}

// Handler consumes one delivered push payload.
type Handler interface {
	HandlePush(ctx context.Context, payload map[string]any) (pushabi.EventKind, error)
}

// Dispatcher decodes broker messages and hands them to the responder.
// It is the paho message callback, split out so tests can drive it without
// a broker.
type Dispatcher struct {
	handler Handler
	emitter telemetry.Emitter
}

// NewDispatcher constructs a message dispatcher.
func NewDispatcher(handler Handler, emitter telemetry.Emitter) (*Dispatcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("push handler is required")
	}
	if emitter == nil {
		emitter = telemetry.NoopEmitter()
	}
	return &Dispatcher{handler: handler, emitter: emitter}, nil
}

// HandleMessage decodes one broker message. Undecodable or malformed
// payloads are observed and dropped; the broker connection stays up.
func (d *Dispatcher) HandleMessage(_ paho.Client, msg paho.Message) {
	d.Dispatch(msg.Payload())
}

// Dispatch decodes and routes one raw payload.
func (d *Dispatcher) Dispatch(raw []byte) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		d.observeInvalid(fmt.Sprintf("decode push payload: %v", err))
		return
	}
	if _, err := d.handler.HandlePush(context.Background(), payload); err != nil {
		d.observeInvalid(err.Error())
	}
}

func (d *Dispatcher) observeInvalid(message string) {
	d.emitter.EmitOutcome(
		outcomePushPayloadInvalid,
		"warn",
		message,
		map[string]string{"transport": "mqtt"},
		telemetry.Correlation{EmittedBy: "mqttingress"},
	)
}

// Config controls the broker connection.
type Config struct {
	Broker           string
	ClientID         string
	PushToken        string
	ConnectTimeout   time.Duration
	SubscribeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = "pcr-responder"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = 5 * time.Second
	}
	return c
}

// Subscriber holds a live broker subscription for one device.
type Subscriber struct {
	client paho.Client
	topic  string
}

// Subscribe connects to the broker and subscribes the device topic.
func Subscribe(cfg Config, dispatcher *Dispatcher) (*Subscriber, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if strings.TrimSpace(cfg.PushToken) == "" {
		return nil, fmt.Errorf("push token is required for topic scoping")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("broker connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	topic := Topic(cfg.PushToken)
	// QoS 1: a missed call announcement is a missed call.
	sub := client.Subscribe(topic, 1, dispatcher.HandleMessage)
	if !sub.WaitTimeout(cfg.SubscribeTimeout) {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribe timeout for %s", topic)
	}
	if err := sub.Error(); err != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	return &Subscriber{client: client, topic: topic}, nil
}

// Close unsubscribes and disconnects from the broker.
func (s *Subscriber) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	unsub := s.client.Unsubscribe(s.topic)
	unsub.WaitTimeout(2 * time.Second)
	s.client.Disconnect(250)
	return unsub.Error()
}
