package runner

import (
	"fmt"
	"time"

	"github.com/nomis52/scenecap/pipeline"
)

// RunState represents whether an analysis run is in progress.
type RunState int

const (
	// RunStateIdle indicates no analysis is running.
	RunStateIdle RunState = iota
	// RunStateRunning indicates an analysis is in progress.
	RunStateRunning
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RunState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = RunStateIdle
	case "running":
		*s = RunStateRunning
	default:
		return fmt.Errorf("unknown run state %q", string(b))
	}
	return nil
}

// RunStatus describes the current or a completed analysis of one manifest.
type RunStatus struct {
	// ID identifies a completed run. Empty while the run is in progress.
	ID    string   `json:"id,omitempty"`
	State RunState `json:"state"`
	// Manifest is the path of the analysed manifest.
	Manifest  string     `json:"manifest,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	// Error contains the error message if the run failed. Empty on success.
	Error string `json:"error,omitempty"`
	// Report is set once the pipeline has run, even if some plugins failed.
	Report *pipeline.Report `json:"report,omitempty"`
	// Progress holds the status of each plugin while the run is in progress.
	Progress map[string]string `json:"progress,omitempty"`
}

// CalculateID derives the run ID from the start time.
func (s RunStatus) CalculateID() string {
	if s.StartedAt == nil {
		return ""
	}
	return s.StartedAt.UTC().Format("20060102T150405.000000")
}

// Succeeded returns true if the run completed without error.
func (s RunStatus) Succeeded() bool {
	return s.State == RunStateIdle && s.EndedAt != nil && s.Error == ""
}
