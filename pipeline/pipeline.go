package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/nomis52/scenecap/annotation"
	"github.com/nomis52/scenecap/logging"
	"github.com/nomis52/scenecap/progress"
)

// Runner feeds the frames of a video through a fixed list of plugins.
type Runner struct {
	logger    *slog.Logger
	batchSize int
	collector *logging.LogCollector
	progress  *progress.Handler

	// Plugins in registration order; frames visit them in this order.
	plugins []*entry
	byName  map[string]*entry
}

type entry struct {
	plugin Plugin
	result *Result
	logger *slog.Logger
	status *progress.Line

	// processFailed is set when the plugin failed on a frame. It still gets reduced.
	processFailed bool
	reduced       bool
}

// reducible returns true if Reduce should be called on the plugin.
func (e *entry) reducible() bool {
	return e.result.State.Active() || (e.processFailed && !e.reduced)
}

// RunnerOption is a function that configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets a custom logger for the runner.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger.With("component", "pipeline")
	}
}

// WithBatchSize sets how many frames are handed to a BatchProcessor at once.
// Values below 1 are treated as 1.
func WithBatchSize(n int) RunnerOption {
	return func(r *Runner) {
		r.batchSize = max(n, 1)
	}
}

// WithLogCollector captures the runner's per-plugin log records into c and attaches
// them to the plugin reports.
func WithLogCollector(c *logging.LogCollector) RunnerOption {
	return func(r *Runner) {
		r.collector = c
	}
}

// WithProgress reports each plugin's current status to h.
func WithProgress(h *progress.Handler) RunnerOption {
	return func(r *Runner) {
		r.progress = h
	}
}

// New creates a Runner with no plugins.
func New(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:    slog.Default().With("component", "pipeline"),
		batchSize: 1,
		byName:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddPlugin registers plugins in order.
// Returns an error if a plugin with the same name is already registered.
func (r *Runner) AddPlugin(plugins ...Plugin) error {
	for _, p := range plugins {
		if p == nil {
			return errors.New("nil plugin")
		}
		name := p.Name()
		if _, exists := r.byName[name]; exists {
			return fmt.Errorf("plugin %q already registered", name)
		}
		logger := r.logger
		if r.collector != nil {
			logger = logging.NewPluginLoggerHook(r.collector).LoggerFor(logger, name)
		}
		e := &entry{
			plugin: p,
			result: &Result{State: NotStarted},
			logger: logger.With("plugin", name),
		}
		e.status = progress.NewLine(name, e.logger, r.progress)
		r.plugins = append(r.plugins, e)
		r.byName[name] = e
		r.logger.Debug("plugin added", "plugin", name)
	}
	return nil
}

// GetResult returns a copy of the named plugin's result, or nil if it is not registered.
func (r *Runner) GetResult(name string) *Result {
	e, ok := r.byName[name]
	if !ok {
		return nil
	}
	res := *e.result
	return &res
}

// Run processes every frame from src and reduces every plugin.
//
// After Run returns every plugin has a Result:
//   - Reduced, Error nil: the plugin ran to completion.
//   - Failed, Error set: Setup, Process or Reduce returned an error. A plugin that
//     failed on a frame receives no further frames but is still reduced, so the
//     report carries what it collected before the failure.
//
// If the context is cancelled between frames, the frames read so far are still
// reduced so that partial results are reported, and the cancellation is included in
// the returned error.
func (r *Runner) Run(ctx context.Context, src Source) (*Report, error) {
	sourceID := src.SourceID()
	logger := r.logger.With("source_id", sourceID)
	start := time.Now()

	logger.Info("starting run", "plugin_count", len(r.plugins), "batch_size", r.batchSize)

	var errs error

	// 1. Set up every plugin.
	for _, e := range r.plugins {
		if err := e.plugin.Setup(ctx); err != nil {
			errs = multierr.Append(errs, r.fail(e, "setup", err))
			continue
		}
		e.result.State = SetUp
		e.status.Set("set up")
	}

	// 2. Feed frames in order.
	var annotations []*annotation.Frame
	batch := make([]Frame, 0, r.batchSize)
	for {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cancelled after %d frames: %w", len(annotations), err))
			batch = batch[:0]
			break
		}

		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reading frame %d: %w", len(annotations)+len(batch), err))
			break
		}
		if frame.Annotation == nil {
			frame.Annotation = &annotation.Frame{
				Index:    len(annotations) + len(batch),
				SourceID: sourceID,
			}
		}

		batch = append(batch, frame)
		if len(batch) < r.batchSize {
			continue
		}
		errs = multierr.Append(errs, r.processBatch(ctx, batch, sourceID))
		annotations = appendAnnotations(annotations, batch)
		r.setProcessed(len(annotations))
		batch = batch[:0]
	}
	if len(batch) > 0 {
		errs = multierr.Append(errs, r.processBatch(ctx, batch, sourceID))
		annotations = appendAnnotations(annotations, batch)
		r.setProcessed(len(annotations))
	}

	// 3. Reduce. Partial results survive cancellation.
	reduceCtx := context.WithoutCancel(ctx)
	for _, e := range r.plugins {
		if !e.reducible() {
			continue
		}
		if !e.processFailed {
			e.status.Set(fmt.Sprintf("reducing %d frames", len(annotations)))
		}
		if err := e.plugin.Reduce(reduceCtx, annotations); err != nil {
			errs = multierr.Append(errs, r.fail(e, "reduce", err))
			continue
		}
		e.reduced = true
		if e.result.State.Active() {
			e.result.State = Reduced
			e.status.Set("reduced")
		}
	}

	// 4. Collect.
	report := &Report{
		SourceID: sourceID,
		Frames:   len(annotations),
		Plugins:  make([]PluginReport, 0, len(r.plugins)),
	}
	for _, e := range r.plugins {
		pr := PluginReport{
			Name:    e.plugin.Name(),
			State:   e.result.State,
			Results: []map[string]any{},
		}
		if e.result.Error != nil {
			pr.Error = e.result.Error.Error()
		}
		if e.reduced {
			if results := e.plugin.Results(); results != nil {
				pr.Results = results
			}
			pr.Summary = e.plugin.Summary()
		}
		if r.collector != nil {
			pr.Logs = r.collector.Logs(pr.Name)
		}
		report.Plugins = append(report.Plugins, pr)
	}

	if errs != nil {
		logger.Warn("run finished with errors", "frames", report.Frames, "duration", time.Since(start), "error", errs)
	} else {
		logger.Info("run finished", "frames", report.Frames, "duration", time.Since(start))
	}
	return report, errs
}

// processBatch hands a batch to every active plugin in registration order. Annotations
// returned by a plugin replace the batch's annotations before the next plugin runs.
func (r *Runner) processBatch(ctx context.Context, batch []Frame, sourceID string) error {
	var errs error
	for _, e := range r.plugins {
		if !e.result.State.Active() {
			continue
		}

		if bp, ok := e.plugin.(BatchProcessor); ok && len(batch) > 1 {
			anns, err := bp.ProcessBatch(ctx, batch, sourceID)
			if err != nil {
				errs = multierr.Append(errs, r.fail(e, "process batch", err))
				e.processFailed = true
				continue
			}
			for i := range batch {
				if i < len(anns) && anns[i] != nil {
					batch[i].Annotation = anns[i]
				}
			}
			e.result.State = Processing
			continue
		}

		for i := range batch {
			ann, err := e.plugin.Process(ctx, batch[i].Image, batch[i].Annotation, sourceID)
			if err != nil {
				errs = multierr.Append(errs, r.fail(e, fmt.Sprintf("process frame %d", batch[i].Annotation.Index), err))
				e.processFailed = true
				break
			}
			if ann != nil {
				batch[i].Annotation = ann
			}
			e.result.State = Processing
		}
	}
	return errs
}

// setProcessed updates the status of every plugin still taking frames.
func (r *Runner) setProcessed(n int) {
	for _, e := range r.plugins {
		if e.result.State.Active() {
			e.status.Set(fmt.Sprintf("processed %d frames", n))
		}
	}
}

// fail marks the plugin Failed and returns the error to report.
func (r *Runner) fail(e *entry, stage string, err error) error {
	wrapped := fmt.Errorf("plugin %s %s: %w", e.plugin.Name(), stage, err)
	e.result.State = Failed
	e.result.Error = wrapped
	e.logger.Error("plugin failed", "stage", stage, "error", err)
	e.status.Set("❌ " + wrapped.Error())
	return wrapped
}

func appendAnnotations(dst []*annotation.Frame, batch []Frame) []*annotation.Frame {
	for _, f := range batch {
		dst = append(dst, f.Annotation)
	}
	return dst
}
