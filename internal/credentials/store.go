// Package credentials owns the local identity, enablement flag, account
// identifier, and stored push token, and signals state transitions to the
// registration lifecycle over typed channels.
package credentials

import (
	"errors"
	"strings"
	"sync"
)

// ErrClosed is returned by mutations on a closed store.
var ErrClosed = errors.New("credential store is closed")

// State is a read-only snapshot of the stored credentials.
type State struct {
	IdentityPresent bool
	Enabled         bool
	AccountID       string
	PushToken       string
}

// Store provides synchronous credential accessors plus two notification
// channels: Changed fires when credentials change or real-time communication
// is enabled, Disabled fires once per enabled→disabled transition. At most
// one signal is delivered per underlying transition, in mutation order.
type Store interface {
	Snapshot() State
	SetCredentials(accountID, pushToken string) error
	SetEnabled(enabled bool) error
	Changed() <-chan State
	Disabled() <-chan State
	Close() error
}

// signalBuffer bounds pending notifications per channel. The lifecycle
// coordinator processes one notification to completion before the next, so
// a small buffer absorbs bursts without blocking mutations.
const signalBuffer = 16

// notifier serializes transition signals for store implementations.
type notifier struct {
	mu       sync.Mutex
	changed  chan State
	disabled chan State
	closed   bool
}

func newNotifier() *notifier {
	return &notifier{
		changed:  make(chan State, signalBuffer),
		disabled: make(chan State, signalBuffer),
	}
}

func (n *notifier) Changed() <-chan State  { return n.changed }
func (n *notifier) Disabled() <-chan State { return n.disabled }

// signalChanged and signalDisabled hold the mutex across the send so a
// concurrent close cannot land between the closed check and the send.
func (n *notifier) signalChanged(state State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.changed <- state:
	default:
	}
}

func (n *notifier) signalDisabled(state State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.disabled <- state:
	default:
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.changed)
	close(n.disabled)
}

func (n *notifier) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

func normalizeCredentials(accountID, pushToken string) (string, string) {
	return strings.TrimSpace(accountID), strings.TrimSpace(pushToken)
}
