package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tiger/push-call-responder/internal/coordinator"
	"github.com/tiger/push-call-responder/internal/credentials"
	"github.com/tiger/push-call-responder/internal/endpoint"
	"github.com/tiger/push-call-responder/internal/observability/telemetry"
	"github.com/tiger/push-call-responder/internal/runtime/decision"
	"github.com/tiger/push-call-responder/internal/runtime/reachability"
	"github.com/tiger/push-call-responder/internal/runtime/registration"
	"github.com/tiger/push-call-responder/internal/runtime/reporter"
	"github.com/tiger/push-call-responder/internal/runtime/responder"
	"github.com/tiger/push-call-responder/internal/tooling/validation"
	"github.com/tiger/push-call-responder/transports/mqttingress"
	"github.com/tiger/push-call-responder/transports/wsingress"
)

const (
	// EnvCoordinatorURL is the coordinator base URL for responses and registrations.
	EnvCoordinatorURL = "PCR_COORDINATOR_URL"
	// EnvCoordinatorAPIKey authenticates calls to the coordinator.
	EnvCoordinatorAPIKey = "PCR_COORDINATOR_API_KEY"
	// EnvCoordinatorAPIKeyHeader overrides the header carrying the API key.
	EnvCoordinatorAPIKeyHeader = "PCR_COORDINATOR_API_KEY_HEADER"
	// EnvRegistrarEndpoint is the provider endpoint folded into accept decisions.
	EnvRegistrarEndpoint = "PCR_REGISTRAR_ENDPOINT"
	// EnvRegistrarAPIKey authenticates registrar calls.
	EnvRegistrarAPIKey = "PCR_REGISTRAR_API_KEY"
	// EnvRegistrarTimeoutMS bounds one registrar round trip.
	EnvRegistrarTimeoutMS = "PCR_REGISTRAR_TIMEOUT_MS"
	// EnvProbeEndpoint is probed to classify reachability.
	EnvProbeEndpoint = "PCR_PROBE_ENDPOINT"
	// EnvProbeIntervalMS sets the background probe cadence.
	EnvProbeIntervalMS = "PCR_PROBE_INTERVAL_MS"
	// EnvProbeHighSpeedBelowMS sets the round-trip bound for the high-speed class.
	EnvProbeHighSpeedBelowMS = "PCR_PROBE_HIGH_SPEED_BELOW_MS"
	// EnvMQTTBroker is the broker URL for the mqtt ingress.
	EnvMQTTBroker = "PCR_MQTT_BROKER"
	// EnvGatewayWSURL is the websocket gateway URL for the websocket ingress.
	EnvGatewayWSURL = "PCR_GATEWAY_WS_URL"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr, time.Now); err != nil {
		fmt.Fprintf(os.Stderr, "pcr-responder: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, _ io.Writer, now func() time.Time) error {
	if len(args) > 0 {
		switch args[0] {
		case "serve":
			return runServe(args[1:], stdout, now)
		case "validate-contracts":
			return runValidateContracts(args[1:], stdout)
		case "help", "-h", "--help":
			printUsage(stdout)
			return nil
		}
		if !strings.HasPrefix(args[0], "-") {
			printUsage(stdout)
			return fmt.Errorf("unsupported command %q", args[0])
		}
	}
	return runServe(args, stdout, now)
}

type serveConfig struct {
	coordinator coordinator.Config
	registrar   endpoint.Config
	probe       reachability.ProbeConfig

	probeInterval time.Duration
	ingress       string
	statePath     string
	mqttBroker    string
	gatewayURL    string
}

func runServe(args []string, stdout io.Writer, now func() time.Time) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	ingress := fs.String("ingress", "mqtt", "push ingress transport (mqtt|websocket)")
	statePath := fs.String("state", filepath.Join(".pcr", "credentials.db"), "path to the credential database")
	accountID := fs.String("account-id", "", "optional account id to store before serving")
	pushToken := fs.String("push-token", "", "optional push token to store before serving")
	enable := fs.Bool("enable", false, "enable availability responses before serving")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := serveConfigFromEnv(*ingress, *statePath)
	if err != nil {
		return err
	}

	emitter, cleanupTelemetry, err := setupRuntimeTelemetry()
	if err != nil {
		return err
	}
	defer cleanupTelemetry()

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	store, err := credentials.OpenSQLite(ctx, cfg.statePath)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer store.Close()

	if strings.TrimSpace(*accountID) != "" || strings.TrimSpace(*pushToken) != "" {
		if err := store.SetCredentials(*accountID, *pushToken); err != nil {
			return fmt.Errorf("store credentials: %w", err)
		}
	}
	if *enable {
		if err := store.SetEnabled(true); err != nil {
			return fmt.Errorf("enable responses: %w", err)
		}
	}

	client, err := coordinator.NewClient(cfg.coordinator, nil)
	if err != nil {
		return err
	}

	source, err := reachability.NewProbeSource(cfg.probe, nil, now)
	if err != nil {
		return err
	}
	go source.Run(ctx, cfg.probeInterval)

	engine, err := decision.NewEngine(source, store.Snapshot, liveRegistrar(cfg.registrar, store))
	if err != nil {
		return err
	}

	dispatcher, err := reporter.New(client, emitter, reporter.Config{}, now)
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	handler, err := responder.New(engine, dispatcher, emitter, now)
	if err != nil {
		return err
	}

	lifecycle, err := registration.Start(client, store, emitter, registration.Config{})
	if err != nil {
		return err
	}
	defer lifecycle.Close()

	state := store.Snapshot()
	if !state.IdentityPresent {
		return fmt.Errorf("no stored credentials; pass -account-id and -push-token on first run")
	}

	switch cfg.ingress {
	case "mqtt":
		return serveMQTT(ctx, cfg, state.PushToken, handler, emitter, stdout)
	case "websocket":
		return serveWebsocket(ctx, cfg, state.PushToken, handler, emitter, stdout)
	default:
		return fmt.Errorf("unsupported ingress %q (expected mqtt|websocket)", cfg.ingress)
	}
}

func serveMQTT(ctx context.Context, cfg serveConfig, pushToken string, handler mqttingress.Handler, emitter telemetry.Emitter, stdout io.Writer) error {
	dispatcher, err := mqttingress.NewDispatcher(handler, emitter)
	if err != nil {
		return err
	}
	subscriber, err := mqttingress.Subscribe(mqttingress.Config{
		Broker:    cfg.mqttBroker,
		PushToken: pushToken,
	}, dispatcher)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	_, _ = fmt.Fprintf(stdout, "pcr-responder: serving ingress=mqtt broker=%s topic=%s\n", cfg.mqttBroker, mqttingress.Topic(pushToken))
	<-ctx.Done()
	return nil
}

func serveWebsocket(ctx context.Context, cfg serveConfig, pushToken string, handler wsingress.Handler, emitter telemetry.Emitter, stdout io.Writer) error {
	listener, err := wsingress.Dial(ctx, wsingress.Config{
		URL:       cfg.gatewayURL,
		PushToken: pushToken,
	}, handler, emitter)
	if err != nil {
		return err
	}
	defer listener.Close()

	_, _ = fmt.Fprintf(stdout, "pcr-responder: serving ingress=websocket gateway=%s\n", cfg.gatewayURL)
	if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("gateway listener stopped: %w", err)
	}
	return nil
}

// liveRegistrar binds the registrar to the credential snapshot at decision
// time so an account change between boots needs no restart.
func liveRegistrar(cfg endpoint.Config, store credentials.Store) endpoint.Registrar {
	return endpoint.RegistrarFunc(func(ctx context.Context) bool {
		state := store.Snapshot()
		if !state.IdentityPresent {
			return false
		}
		bound := cfg
		bound.AccountID = state.AccountID
		registrar, err := endpoint.NewHTTPRegistrar(bound, nil)
		if err != nil {
			return false
		}
		return registrar.Register(ctx)
	})
}

func serveConfigFromEnv(ingress, statePath string) (serveConfig, error) {
	cfg := serveConfig{
		ingress:   strings.ToLower(strings.TrimSpace(ingress)),
		statePath: strings.TrimSpace(statePath),
	}
	if cfg.statePath == "" {
		return serveConfig{}, fmt.Errorf("-state path is required")
	}

	cfg.coordinator = coordinator.Config{
		BaseURL:      strings.TrimSpace(os.Getenv(EnvCoordinatorURL)),
		APIKey:       strings.TrimSpace(os.Getenv(EnvCoordinatorAPIKey)),
		APIKeyHeader: strings.TrimSpace(os.Getenv(EnvCoordinatorAPIKeyHeader)),
	}
	if cfg.coordinator.BaseURL == "" {
		return serveConfig{}, fmt.Errorf("%s is required", EnvCoordinatorURL)
	}

	cfg.registrar = endpoint.Config{
		Endpoint: strings.TrimSpace(os.Getenv(EnvRegistrarEndpoint)),
		APIKey:   strings.TrimSpace(os.Getenv(EnvRegistrarAPIKey)),
	}
	if cfg.registrar.Endpoint == "" {
		return serveConfig{}, fmt.Errorf("%s is required", EnvRegistrarEndpoint)
	}
	registrarTimeoutMS, err := envDurationMS(EnvRegistrarTimeoutMS, 0)
	if err != nil {
		return serveConfig{}, err
	}
	cfg.registrar.Timeout = registrarTimeoutMS

	cfg.probe = reachability.ProbeConfig{
		Endpoint: strings.TrimSpace(os.Getenv(EnvProbeEndpoint)),
	}
	if cfg.probe.Endpoint == "" {
		return serveConfig{}, fmt.Errorf("%s is required", EnvProbeEndpoint)
	}
	highSpeedBelow, err := envDurationMS(EnvProbeHighSpeedBelowMS, 0)
	if err != nil {
		return serveConfig{}, err
	}
	cfg.probe.HighSpeedBelow = highSpeedBelow
	cfg.probeInterval, err = envDurationMS(EnvProbeIntervalMS, 30*time.Second)
	if err != nil {
		return serveConfig{}, err
	}

	switch cfg.ingress {
	case "mqtt":
		cfg.mqttBroker = strings.TrimSpace(os.Getenv(EnvMQTTBroker))
		if cfg.mqttBroker == "" {
			return serveConfig{}, fmt.Errorf("%s is required for mqtt ingress", EnvMQTTBroker)
		}
	case "websocket":
		cfg.gatewayURL = strings.TrimSpace(os.Getenv(EnvGatewayWSURL))
		if cfg.gatewayURL == "" {
			return serveConfig{}, fmt.Errorf("%s is required for websocket ingress", EnvGatewayWSURL)
		}
	default:
		return serveConfig{}, fmt.Errorf("unsupported ingress %q (expected mqtt|websocket)", ingress)
	}

	return cfg, nil
}

func envDurationMS(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", name, err)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("%s must be > 0", name)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func setupRuntimeTelemetry() (telemetry.Emitter, func(), error) {
	pipeline, err := telemetry.NewPipelineFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("runtime telemetry setup failed: %w", err)
	}
	if pipeline == nil {
		return telemetry.NoopEmitter(), func() {}, nil
	}
	return pipeline, func() { _ = pipeline.Close() }, nil
}

func runValidateContracts(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("validate-contracts", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	schemaPath := fs.String("schema", filepath.Join("docs", "CoordinatorContracts.schema.json"), "path to the coordinator contracts schema")
	fixtureRoot := fs.String("fixtures", filepath.Join("test", "contract", "fixtures"), "path to the contract fixture root")

	if err := fs.Parse(args); err != nil {
		return err
	}

	summary, err := validation.ValidateContractFixturesWithSchema(*schemaPath, *fixtureRoot)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, validation.RenderSummary(summary))
	if summary.Failed > 0 {
		return fmt.Errorf("%d contract fixture(s) failed validation", summary.Failed)
	}
	return nil
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "pcr-responder usage:")
	_, _ = fmt.Fprintln(w, "  pcr-responder [serve] [-ingress mqtt|websocket] [-state <path>] [-account-id <id>] [-push-token <token>] [-enable]")
	_, _ = fmt.Fprintln(w, "  pcr-responder validate-contracts [-schema <path>] [-fixtures <path>]")
	_, _ = fmt.Fprintln(w, "  configuration: PCR_COORDINATOR_URL, PCR_REGISTRAR_ENDPOINT, PCR_PROBE_ENDPOINT plus PCR_MQTT_BROKER or PCR_GATEWAY_WS_URL")
}
