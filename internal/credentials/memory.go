package credentials

import "sync"

// MemoryStore is an in-process credential store for tests and embedded use.
type MemoryStore struct {
	*notifier

	mu    sync.Mutex
	state State
}

// NewMemoryStore returns a store seeded with the given state.
func NewMemoryStore(initial State) *MemoryStore {
	initial.AccountID, initial.PushToken = normalizeCredentials(initial.AccountID, initial.PushToken)
	initial.IdentityPresent = initial.AccountID != ""
	return &MemoryStore{
		notifier: newNotifier(),
		state:    initial,
	}
}

// Snapshot returns the current credential state.
func (s *MemoryStore) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetCredentials replaces the account identifier and push token and signals
// the change when anything actually moved.
func (s *MemoryStore) SetCredentials(accountID, pushToken string) error {
	if s.isClosed() {
		return ErrClosed
	}
	accountID, pushToken = normalizeCredentials(accountID, pushToken)

	s.mu.Lock()
	if s.state.AccountID == accountID && s.state.PushToken == pushToken {
		s.mu.Unlock()
		return nil
	}
	s.state.AccountID = accountID
	s.state.PushToken = pushToken
	s.state.IdentityPresent = accountID != ""
	snapshot := s.state
	s.mu.Unlock()

	s.signalChanged(snapshot)
	return nil
}

// SetEnabled flips the enablement flag. Enabling signals Changed; disabling
// signals Disabled with the prior snapshot so the lifecycle can still find
// the token/account pair to delete remotely.
func (s *MemoryStore) SetEnabled(enabled bool) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.mu.Lock()
	if s.state.Enabled == enabled {
		s.mu.Unlock()
		return nil
	}
	prior := s.state
	s.state.Enabled = enabled
	snapshot := s.state
	s.mu.Unlock()

	if enabled {
		s.signalChanged(snapshot)
	} else {
		prior.Enabled = false
		s.signalDisabled(prior)
	}
	return nil
}

// Close tears down the notification channels.
func (s *MemoryStore) Close() error {
	s.notifier.close()
	return nil
}
