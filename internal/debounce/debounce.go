// Package debounce decides when a detected label should be announced again.
package debounce

import "time"

// DefaultWindow is how long the same label stays quiet after an announcement.
const DefaultWindow = 4 * time.Second

// State is the memory of the last announcement.
// The zero value has never announced anything.
type State struct {
	LastSpoken string
	LastTime   time.Time
}

// Policy announces a label when it differs from the last announced label,
// or when strictly more than Window has passed since the last announcement.
type Policy struct {
	Window time.Duration
}

// NewPolicy returns a policy with the given window; non-positive windows
// fall back to DefaultWindow.
func NewPolicy(window time.Duration) Policy {
	if window <= 0 {
		window = DefaultWindow
	}
	return Policy{Window: window}
}

// ShouldAnnounce reports whether label observed at now should be announced
// and returns the state to keep. Labels are compared exactly.
func (p Policy) ShouldAnnounce(label string, now time.Time, state State) (bool, State) {
	if label != state.LastSpoken || now.Sub(state.LastTime) > p.Window {
		return true, State{LastSpoken: label, LastTime: now}
	}
	return false, state
}

// ShouldAnnounce applies the default policy.
func ShouldAnnounce(label string, now time.Time, state State) (bool, State) {
	return NewPolicy(DefaultWindow).ShouldAnnounce(label, now, state)
}
