package pipeline

import "fmt"

// State represents how far a plugin has progressed through a run.
type State int

const (
	// NotStarted indicates Setup has not been called.
	NotStarted State = iota

	// SetUp indicates Setup succeeded and no frame has been processed yet.
	SetUp

	// Processing indicates at least one frame has been processed.
	Processing

	// Reduced indicates Reduce succeeded. This is the final state of a successful run.
	Reduced

	// Failed indicates the plugin returned an error and received no further calls.
	Failed
)

// String returns a human-readable representation of the State.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case SetUp:
		return "set_up"
	case Processing:
		return "processing"
	case Reduced:
		return "reduced"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for c := NotStarted; c <= Failed; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown plugin state %q", string(text))
}

// Active returns true if the plugin should still receive calls.
func (s State) Active() bool {
	return s == SetUp || s == Processing
}
