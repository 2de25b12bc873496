package activity

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/scenecap/metrics"
)

// Frame outcomes reported on the frames counter.
const (
	outcomeCaptioned   = "captioned"
	outcomeSkipped     = "skipped"
	outcomeFailed      = "failed"
	outcomePassthrough = "passthrough"
)

// Metrics holds the plugin's instruments. A nil *Metrics records nothing.
type Metrics struct {
	frames          metrics.CounterVec
	captionFailures metrics.Counter
	enabled         metrics.Gauge
	reducedVideos   metrics.Counter
	confidence      metrics.Gauge
	primaryObjects  metrics.Gauge
}

// NewMetrics registers the plugin's instruments with reg.
func NewMetrics(reg metrics.Registry) (*Metrics, error) {
	frames, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_frames_total",
		Help: "Frames seen by the activity plugin, by outcome",
	}, []string{"outcome"})
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}

	captionFailures, err := reg.NewCounter(prometheus.CounterOpts{
		Name: "activity_caption_failures_total",
		Help: "Captioner calls that returned an error or timed out",
	})
	if err != nil {
		return nil, fmt.Errorf("creating caption failures counter: %w", err)
	}

	enabled, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "activity_captioner_enabled",
		Help: "1 if the captioner was acquired during setup, 0 otherwise",
	})
	if err != nil {
		return nil, fmt.Errorf("creating enabled gauge: %w", err)
	}

	// No per-video labels: the series count must stay fixed in a long-running server.
	reducedVideos, err := reg.NewCounter(prometheus.CounterOpts{
		Name: "activity_videos_reduced_total",
		Help: "Videos for which an activity was aggregated",
	})
	if err != nil {
		return nil, fmt.Errorf("creating reduced videos counter: %w", err)
	}

	confidence, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "activity_last_confidence",
		Help: "Confidence of the most recently aggregated activity",
	})
	if err != nil {
		return nil, fmt.Errorf("creating confidence gauge: %w", err)
	}

	primaryObjects, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "activity_last_primary_objects",
		Help: "Number of primary objects in the most recently aggregated activity",
	})
	if err != nil {
		return nil, fmt.Errorf("creating primary objects gauge: %w", err)
	}

	return &Metrics{
		frames:          frames,
		captionFailures: captionFailures,
		enabled:         enabled,
		reducedVideos:   reducedVideos,
		confidence:      confidence,
		primaryObjects:  primaryObjects,
	}, nil
}

func (m *Metrics) frame(outcome string) {
	m.frameN(outcome, 1)
}

func (m *Metrics) frameN(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.frames.With(prometheus.Labels{"outcome": outcome}).Add(float64(n))
}

func (m *Metrics) captionFailed() {
	if m == nil {
		return
	}
	m.captionFailures.Inc()
}

func (m *Metrics) setEnabled(c Capability) {
	if m == nil {
		return
	}
	if c == Enabled {
		m.enabled.Set(1)
	} else {
		m.enabled.Set(0)
	}
}

func (m *Metrics) reduced(confidence float64, objects int) {
	if m == nil {
		return
	}
	m.reducedVideos.Inc()
	m.confidence.Set(confidence)
	m.primaryObjects.Set(float64(objects))
}
