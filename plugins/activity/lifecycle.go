package activity

import "fmt"

// Lifecycle is the stage the plugin has reached for its video. It only moves forward.
type Lifecycle int

const (
	// Uninitialized indicates Setup has not been called.
	Uninitialized Lifecycle = iota

	// Ready indicates Setup finished and no frame has been seen yet.
	Ready

	// Accumulating indicates at least one frame has been processed.
	Accumulating

	// Aggregated indicates Reduce has run. The result is fixed from here on.
	Aggregated
)

// String returns a human-readable representation of the Lifecycle.
func (l Lifecycle) String() string {
	switch l {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Accumulating:
		return "accumulating"
	case Aggregated:
		return "aggregated"
	default:
		return "unknown"
	}
}

// Capability records whether a captioner was acquired during Setup.
type Capability int

const (
	// Disabled means frames pass through untouched and Reduce yields no activity.
	Disabled Capability = iota

	// Enabled means frames are captioned.
	Enabled
)

// String returns a human-readable representation of the Capability.
func (c Capability) String() string {
	switch c {
	case Disabled:
		return "disabled"
	case Enabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// FailurePolicy decides what happens when captioning a single frame fails.
type FailurePolicy int

const (
	// SkipFrame drops the failed frame's contribution and keeps going.
	SkipFrame FailurePolicy = iota

	// FailVideo stops processing the video and reports ErrCaptionFailed.
	// Reduce still summarises the frames collected before the failure.
	FailVideo
)

// String returns the configuration name of the policy.
func (f FailurePolicy) String() string {
	switch f {
	case SkipFrame:
		return "skip"
	case FailVideo:
		return "fail"
	default:
		return "unknown"
	}
}

// ParseFailurePolicy parses "skip" or "fail". An empty string means SkipFrame.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "skip":
		return SkipFrame, nil
	case "fail":
		return FailVideo, nil
	default:
		return SkipFrame, fmt.Errorf("unknown caption failure policy %q (must be skip or fail)", s)
	}
}
