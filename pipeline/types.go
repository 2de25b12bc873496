package pipeline

import (
	"context"
	"image"
	"io"

	"github.com/nomis52/scenecap/annotation"
	"github.com/nomis52/scenecap/logging"
)

// Plugin is a per-video analysis step.
//
// IMPLEMENTATION CONTRACT:
// - Setup is called once before any frame. Returning an error fails the plugin.
// - Process is called once per frame, in frame order. It may mutate ann in place and
// returns the annotation to hand to the next plugin.
// - Reduce is called once after the last frame with every annotation of the video.
// - Results and Summary are pure reads and are called after Reduce.
type Plugin interface {
	// Name identifies the plugin in reports and logs. It must be unique per Runner.
	Name() string

	// Setup acquires the resources the plugin needs.
	Setup(ctx context.Context) error

	// Process analyses one frame.
	Process(ctx context.Context, frame image.Image, ann *annotation.Frame, sourceID string) (*annotation.Frame, error)

	// Reduce produces the video-level result.
	Reduce(ctx context.Context, all []*annotation.Frame) error

	// Results returns the plugin's records. An empty slice means no result.
	Results() []map[string]any

	// Summary returns the plugin's condensed result, or nil.
	Summary() map[string]any
}

// BatchProcessor is implemented by plugins that can analyse several frames in one call.
// The returned annotations are index-aligned with frames.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, frames []Frame, sourceID string) ([]*annotation.Frame, error)
}

// Frame is a decoded frame and its annotation.
type Frame struct {
	Image      image.Image
	Annotation *annotation.Frame
}

// Source yields the frames of one video in order.
type Source interface {
	// SourceID identifies the video.
	SourceID() string
	// Next returns the next frame, or io.EOF once the video is exhausted.
	Next(ctx context.Context) (Frame, error)
}

// SliceSource is a Source over frames held in memory.
type SliceSource struct {
	id     string
	frames []Frame
	pos    int
}

// NewSliceSource creates a Source that yields frames in order.
func NewSliceSource(sourceID string, frames ...Frame) *SliceSource {
	return &SliceSource{id: sourceID, frames: frames}
}

// SourceID returns the video identifier.
func (s *SliceSource) SourceID() string {
	return s.id
}

// Next returns the next frame or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Result contains the outcome of a plugin run.
type Result struct {
	// State is the furthest stage the plugin reached.
	State State
	// Error is set when State is Failed.
	Error error
}

// IsSuccess returns true if the plugin reduced without error.
func (r *Result) IsSuccess() bool {
	return r.State == Reduced && r.Error == nil
}

// Report is the outcome of running every plugin over one video.
type Report struct {
	SourceID string         `json:"source_id"`
	Frames   int            `json:"frames"`
	Plugins  []PluginReport `json:"plugins"`
}

// PluginReport is the outcome of a single plugin.
type PluginReport struct {
	Name    string           `json:"name"`
	State   State            `json:"state"`
	Error   string           `json:"error,omitempty"`
	Results []map[string]any `json:"results"`
	Summary map[string]any   `json:"summary"`
	// Logs holds the plugin's captured log records when a collector is configured.
	Logs []logging.LogEntry `json:"logs,omitempty"`
}

// Plugin returns the report for the named plugin, or nil.
func (r *Report) Plugin(name string) *PluginReport {
	for i := range r.Plugins {
		if r.Plugins[i].Name == name {
			return &r.Plugins[i]
		}
	}
	return nil
}
