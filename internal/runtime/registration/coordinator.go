// Package registration keeps the remote device-registration record
// consistent with local credential state transitions.
package registration

import (
	"context"
	"fmt"
	"sync"
	"time"

	apicoordinator "github.com/tiger/push-call-responder/api/coordinator"
	"github.com/tiger/push-call-responder/internal/credentials"
	"github.com/tiger/push-call-responder/internal/observability/telemetry"
)

// Channel is the pair of coordinator operations the lifecycle consumes.
type Channel interface {
	UpsertDeviceRegistration(ctx context.Context, registration apicoordinator.DeviceRegistration) error
	DeleteDeviceRegistration(ctx context.Context, registration apicoordinator.DeviceRegistration) error
}

// Credentials is the slice of the credential store the lifecycle needs:
// the two notification channels and the one mutation it is allowed to make.
type Credentials interface {
	SetEnabled(enabled bool) error
	Changed() <-chan credentials.State
	Disabled() <-chan credentials.State
}

// Config bounds each remote registration call.
type Config struct {
	RequestTimeout time.Duration
}

// Coordinator subscribes to credential transitions for its own lifetime:
// constructed with Start, released with Close. Notifications are processed
// one at a time to completion, in delivery order.
type Coordinator struct {
	channel Channel
	creds   Credentials
	emitter telemetry.Emitter
	cfg     Config

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Start subscribes to the credential channels and begins processing.
func Start(channel Channel, creds Credentials, emitter telemetry.Emitter, cfg Config) (*Coordinator, error) {
	if channel == nil {
		return nil, fmt.Errorf("coordinator channel is required")
	}
	if creds == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if emitter == nil {
		emitter = telemetry.NoopEmitter()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	c := &Coordinator{
		channel: channel,
		creds:   creds,
		emitter: emitter,
		cfg:     cfg,
		stop:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c, nil
}

// Close tears down the subscription and waits for in-flight processing.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
	return nil
}

func (c *Coordinator) run() {
	defer c.wg.Done()

	changed := c.creds.Changed()
	disabled := c.creds.Disabled()
	for {
		select {
		case <-c.stop:
			return
		case state, ok := <-changed:
			if !ok {
				changed = nil
				if disabled == nil {
					return
				}
				continue
			}
			c.onChanged(state)
		case state, ok := <-disabled:
			if !ok {
				disabled = nil
				if changed == nil {
					return
				}
				continue
			}
			c.onDisabled(state)
		}
	}
}

// onChanged upserts the registration for the new credential pair. The
// trigger is a no-op unless real-time communication is enabled.
func (c *Coordinator) onChanged(state credentials.State) {
	if !state.Enabled {
		return
	}
	registration := apicoordinator.DeviceRegistration{
		PushToken: state.PushToken,
		AccountID: state.AccountID,
	}
	if err := registration.Validate(); err != nil {
		c.emitter.EmitOutcome(
			telemetry.OutcomeRegistrationUpsertSkipped,
			"warn",
			"no valid token/account pair to register",
			nil,
			c.correlationFor(state),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()
	err := c.channel.UpsertDeviceRegistration(ctx, registration)
	if err == nil {
		return
	}

	// A device the coordinator cannot register will never receive call
	// events. Flipping enablement off makes that failure visible instead
	// of leaving a silently dead registration.
	if disableErr := c.creds.SetEnabled(false); disableErr != nil {
		err = fmt.Errorf("%w (force-disable failed: %v)", err, disableErr)
	}
	c.emitter.EmitOutcome(
		telemetry.OutcomeRegistrationUpsertFailed,
		"error",
		err.Error(),
		nil,
		c.correlationFor(state),
	)
}

// onDisabled deletes the possibly-stale registration pair. When either key
// is missing there is nothing valid to delete remotely; that is a skip,
// not a failure.
func (c *Coordinator) onDisabled(state credentials.State) {
	registration := apicoordinator.DeviceRegistration{
		PushToken: state.PushToken,
		AccountID: state.AccountID,
	}
	if err := registration.Validate(); err != nil {
		c.emitter.EmitOutcome(
			telemetry.OutcomeRegistrationDeleteSkipped,
			"info",
			"no valid token/account pair to delete",
			nil,
			c.correlationFor(state),
		)
		return
	}

	c.emitter.EmitOutcome(
		telemetry.OutcomeRegistrationDeleteAttempted,
		"info",
		"deleting device registration",
		nil,
		c.correlationFor(state),
	)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()
	if err := c.channel.DeleteDeviceRegistration(ctx, registration); err != nil {
		c.emitter.EmitOutcome(
			telemetry.OutcomeRegistrationDeleteFailed,
			"warn",
			err.Error(),
			nil,
			c.correlationFor(state),
		)
		return
	}
	c.emitter.EmitOutcome(
		telemetry.OutcomeRegistrationDeleteSucceeded,
		"info",
		"device registration deleted",
		nil,
		c.correlationFor(state),
	)
}

func (c *Coordinator) correlationFor(state credentials.State) telemetry.Correlation {
	return telemetry.Correlation{
		AccountID:   state.AccountID,
		TokenDigest: telemetry.TokenDigest(state.PushToken),
		EmittedBy:   "registration",
	}
}
