// Package reachability classifies current network quality into the coarse
// statuses that gate expensive endpoint registration attempts.
package reachability

// Status is a coarse network-quality classification.
type Status string

const (
	StatusUnavailable Status = "unavailable"
	StatusLowSpeed    Status = "low_speed"
	StatusHighSpeed   Status = "high_speed"
)

// Source reports the current reachability status. Implementations are
// synchronous, non-blocking, and always return a value.
type Source interface {
	CurrentStatus() Status
}

// StaticSource always reports a fixed status. It serves tests and
// deployments on known-wired networks.
type StaticSource struct {
	Status Status
}

// CurrentStatus returns the configured status, defaulting to unavailable.
func (s StaticSource) CurrentStatus() Status {
	switch s.Status {
	case StatusUnavailable, StatusLowSpeed, StatusHighSpeed:
		return s.Status
	default:
		return StatusUnavailable
	}
}
