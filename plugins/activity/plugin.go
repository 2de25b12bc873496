// Package activity implements the scene-level activity plugin.
//
// The plugin captions every frame of a video, keeps the captions together with the
// labels of confidently detected objects, and reduces them into one scene.Activity
// when the video ends.
//
// If no captioner can be acquired during Setup the plugin does not fail. It switches
// to the Disabled capability, passes every frame through untouched and reports no
// activity.
package activity

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nomis52/scenecap/annotation"
	"github.com/nomis52/scenecap/captioner"
	"github.com/nomis52/scenecap/pipeline"
	"github.com/nomis52/scenecap/scene"
)

// Name is the plugin's name in pipeline reports.
const Name = "activity"

const (
	// DefaultTimeout bounds a single captioner call.
	DefaultTimeout = 30 * time.Second
	// DefaultWorkers is the number of frames captioned concurrently by ProcessBatch.
	DefaultWorkers = 4
)

// Plugin aggregates per-frame captions into a scene-level activity.
// Use one Plugin per video.
type Plugin struct {
	logger  *slog.Logger
	loader  captioner.Loader
	metrics *Metrics
	extract scene.Extractor
	timeout time.Duration
	workers int
	policy  FailurePolicy

	mu         sync.Mutex
	lifecycle  Lifecycle
	capability Capability
	reducing   bool
	captioner  captioner.Captioner
	sourceID   string
	state      scene.State
	failed     error
	activity   *scene.Activity

	// inflight counts Process and ProcessBatch calls that have passed the lifecycle
	// check. Reduce waits for it to drain.
	inflight sync.WaitGroup
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Plugin) {
		p.logger = logger.With("plugin", Name)
	}
}

// WithMetrics sets the instruments the plugin records to.
func WithMetrics(m *Metrics) Option {
	return func(p *Plugin) {
		p.metrics = m
	}
}

// WithExtractor replaces the activity phrase extractor. The default is scene.FirstGerund.
func WithExtractor(e scene.Extractor) Option {
	return func(p *Plugin) {
		p.extract = e
	}
}

// WithTimeout bounds each captioner call. A non-positive value disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Plugin) {
		p.timeout = d
	}
}

// WithWorkers sets how many frames ProcessBatch captions concurrently.
func WithWorkers(n int) Option {
	return func(p *Plugin) {
		p.workers = max(n, 1)
	}
}

// WithFailurePolicy sets what happens when captioning a frame fails.
func WithFailurePolicy(f FailurePolicy) Option {
	return func(p *Plugin) {
		p.policy = f
	}
}

// New creates a Plugin that acquires its captioner from loader during Setup.
// A nil loader leaves the plugin disabled.
func New(loader captioner.Loader, opts ...Option) *Plugin {
	p := &Plugin{
		logger:  slog.Default().With("plugin", Name),
		loader:  loader,
		extract: scene.FirstGerund,
		timeout: DefaultTimeout,
		workers: DefaultWorkers,
		policy:  SkipFrame,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return Name
}

// Setup acquires the captioner. A captioner that cannot be acquired disables the
// plugin and is not an error.
func (p *Plugin) Setup(ctx context.Context) error {
	p.mu.Lock()
	if p.lifecycle != Uninitialized {
		p.mu.Unlock()
		return ErrAlreadySetUp
	}
	p.mu.Unlock()

	var (
		c   captioner.Captioner
		err error
	)
	if p.loader == nil {
		err = fmt.Errorf("%w: no loader configured", captioner.ErrUnavailable)
	} else {
		c, err = p.loader(ctx)
	}
	if err == nil && c == nil {
		err = captioner.ErrUnavailable
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lifecycle != Uninitialized {
		return ErrAlreadySetUp
	}
	p.lifecycle = Ready

	if err != nil {
		p.capability = Disabled
		p.metrics.setEnabled(Disabled)
		p.logger.Warn("captioner unavailable, activity detection disabled", "error", err)
		return nil
	}

	p.captioner = captioner.WithTimeout(c, p.timeout)
	p.capability = Enabled
	p.metrics.setEnabled(Enabled)
	p.logger.Info("captioner acquired", "timeout", p.timeout, "policy", p.policy.String())
	return nil
}

// Process captions one frame, records its caption and qualifying objects and writes
// the caption into ann. A nil ann is treated as a frame without detections.
//
// When disabled, or when captioning fails under SkipFrame, ann is returned untouched.
func (p *Plugin) Process(ctx context.Context, frame image.Image, ann *annotation.Frame, sourceID string) (*annotation.Frame, error) {
	if ann == nil {
		ann = &annotation.Frame{SourceID: sourceID}
	}

	c, err := p.begin(sourceID)
	if err != nil {
		return ann, err
	}
	defer p.inflight.Done()

	if c == nil {
		p.metrics.frame(outcomePassthrough)
		return ann, nil
	}

	caption, err := p.caption(ctx, c, frame, ann.Index)
	if err != nil {
		return ann, p.captionFailed(ann.Index, err)
	}

	p.mu.Lock()
	p.record(caption, ann.Objects)
	p.mu.Unlock()

	ann.ActivityCaption = caption
	p.metrics.frame(outcomeCaptioned)
	return ann, nil
}

// ProcessBatch captions frames concurrently, bounded by the worker count, then
// records the results in frame order. The outcome is the same as calling Process on
// each frame in turn.
//
// Under FailVideo the frames before the first failed frame are recorded and the
// rest of the batch is discarded.
func (p *Plugin) ProcessBatch(ctx context.Context, frames []pipeline.Frame, sourceID string) ([]*annotation.Frame, error) {
	anns := make([]*annotation.Frame, len(frames))
	for i, f := range frames {
		anns[i] = f.Annotation
		if anns[i] == nil {
			anns[i] = &annotation.Frame{SourceID: sourceID}
		}
	}

	c, err := p.begin(sourceID)
	if err != nil {
		return anns, err
	}
	defer p.inflight.Done()

	if c == nil {
		p.metrics.frameN(outcomePassthrough, len(frames))
		return anns, nil
	}

	captions := make([]string, len(frames))
	errs := make([]error, len(frames))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range frames {
		g.Go(func() error {
			captions[i], errs[i] = p.caption(ctx, c, frames[i].Image, anns[i].Index)
			return nil
		})
	}
	_ = g.Wait()

	for i := range frames {
		if errs[i] != nil {
			if err := p.captionFailed(anns[i].Index, errs[i]); err != nil {
				return anns, err
			}
			continue
		}
		p.mu.Lock()
		p.record(captions[i], anns[i].Objects)
		p.mu.Unlock()

		anns[i].ActivityCaption = captions[i]
		p.metrics.frame(outcomeCaptioned)
	}
	return anns, nil
}

// Reduce waits for in-flight frames, then computes the activity from everything
// recorded. The argument is ignored: the plugin relies on its own state only.
//
// Reduce runs once. Later calls return ErrAlreadyReduced and keep the first result.
func (p *Plugin) Reduce(ctx context.Context, _ []*annotation.Frame) error {
	p.mu.Lock()
	switch {
	case p.lifecycle == Uninitialized:
		p.mu.Unlock()
		return ErrNotSetUp
	case p.lifecycle == Aggregated || p.reducing:
		p.mu.Unlock()
		return ErrAlreadyReduced
	}
	p.reducing = true
	p.mu.Unlock()

	if err := p.waitInflight(ctx); err != nil {
		p.mu.Lock()
		p.reducing = false
		p.mu.Unlock()
		return fmt.Errorf("waiting for in-flight frames: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.reducing = false
	p.lifecycle = Aggregated

	if p.capability == Disabled {
		p.logger.Info("reduced without captioner", "source_id", p.sourceID)
		return nil
	}

	a, ok := scene.Reduce(p.state, p.extract)
	if !ok {
		p.logger.Info("no captions recorded, no activity", "source_id", p.sourceID)
		return nil
	}
	p.activity = &a
	p.metrics.reduced(a.Confidence, len(a.PrimaryObjects))
	p.logger.Info("activity reduced",
		"source_id", p.sourceID,
		"activity", a.Activity,
		"confidence", a.Confidence,
		"primary_objects", a.PrimaryObjects,
		"captions", len(p.state.Captions))
	return nil
}

// begin checks the lifecycle for a processing call and registers it as in flight.
// It returns the captioner to use, or nil if the plugin is disabled.
func (p *Plugin) begin(sourceID string) (captioner.Captioner, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.lifecycle == Uninitialized:
		return nil, ErrNotSetUp
	case p.lifecycle == Aggregated || p.reducing:
		return nil, ErrAlreadyReduced
	case p.failed != nil:
		return nil, p.failed
	}

	if p.lifecycle == Ready {
		p.lifecycle = Accumulating
	}
	if p.sourceID == "" {
		p.sourceID = sourceID
	}
	p.inflight.Add(1)

	if p.capability == Disabled {
		return nil, nil
	}
	return p.captioner, nil
}

func (p *Plugin) caption(ctx context.Context, c captioner.Captioner, frame image.Image, index int) (string, error) {
	start := time.Now()
	caption, err := c.Caption(ctx, frame)
	if err != nil {
		return "", err
	}
	p.logger.Debug("frame captioned", "frame", index, "caption", caption, "duration", time.Since(start))
	return caption, nil
}

// captionFailed applies the failure policy. It returns nil if the frame is skipped.
func (p *Plugin) captionFailed(index int, err error) error {
	p.metrics.captionFailed()

	if p.policy == SkipFrame {
		p.metrics.frame(outcomeSkipped)
		p.logger.Warn("captioning failed, skipping frame", "frame", index, "error", err)
		return nil
	}

	p.metrics.frame(outcomeFailed)
	wrapped := fmt.Errorf("%w: frame %d: %w", ErrCaptionFailed, index, err)

	p.mu.Lock()
	if p.failed == nil {
		p.failed = wrapped
	}
	p.mu.Unlock()

	p.logger.Error("captioning failed, stopping video", "frame", index, "error", err)
	return wrapped
}

// record appends a frame's contribution. p.mu must be held.
func (p *Plugin) record(caption string, objects []annotation.Object) {
	p.state.AddCaption(caption)
	p.state.AddObjects(scene.QualifyingLabels(objects)...)
}

func (p *Plugin) waitInflight(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ pipeline.Plugin         = (*Plugin)(nil)
	_ pipeline.BatchProcessor = (*Plugin)(nil)
)
