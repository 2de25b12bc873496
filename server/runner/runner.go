// Package runner manages analysis runs for the scenecap server.
//
// The runner handles:
//   - Starting analyses in the background
//   - Preventing concurrent runs
//   - Tracking current run status
//   - Maintaining history of completed runs
//
// # Example
//
//	r, err := runner.New(logger, analyzer, runner.WithStateStore(store))
//
//	// Start a run
//	if err := r.Run("/srv/videos/clip-0001.json"); err != nil {
//	    if errors.Is(err, runner.ErrRunInProgress) {
//	        // Handle concurrent run attempt
//	    }
//	}
//
//	status := r.Status()
//	history := r.History() // Most recent first
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/scenecap/logging"
	"github.com/nomis52/scenecap/metrics"
	"github.com/nomis52/scenecap/pipeline"
	"github.com/nomis52/scenecap/progress"
)

const (
	metricRuns            = "server_runs_total"
	metricLastRunDuration = "server_last_run_duration_seconds"
)

// ErrRunInProgress is returned when attempting to start a run while one is already running.
var ErrRunInProgress = errors.New("analysis run already in progress")

// Analyzer runs the pipeline over the video described by a manifest.
type Analyzer interface {
	AnalyzeFile(ctx context.Context, manifest string) (*pipeline.Report, error)
}

// Runner manages analysis run execution.
type Runner struct {
	logger   *slog.Logger
	analyzer Analyzer
	store    StateStore
	baseCtx  context.Context
	registry metrics.Registry
	progress *progress.Handler

	runs        metrics.CounterVec
	lastRunTime metrics.Gauge

	wg        sync.WaitGroup
	mu        sync.Mutex
	runStatus RunStatus
	// modTime of the manifest being analysed, taken when the run started.
	modTime time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithStateStore configures the runner to use the provided store for persistence.
func WithStateStore(store StateStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithBaseContext sets the context background runs derive from. Cancelling it
// cancels the run in progress.
func WithBaseContext(ctx context.Context) Option {
	return func(r *Runner) {
		r.baseCtx = ctx
	}
}

// WithMetricsRegistry reports run outcomes and durations to registry.
func WithMetricsRegistry(registry metrics.Registry) Option {
	return func(r *Runner) {
		r.registry = registry
	}
}

// WithProgress includes the statuses in h in the status of a run in progress.
// h should be the handler the analyzer reports to.
func WithProgress(h *progress.Handler) Option {
	return func(r *Runner) {
		r.progress = h
	}
}

// New creates a new Runner.
func New(logger *slog.Logger, analyzer Analyzer, opts ...Option) (*Runner, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Runner{
		logger:    logger.With("component", "runner"),
		analyzer:  analyzer,
		store:     NewMemoryStore(0),
		baseCtx:   context.Background(),
		runStatus: RunStatus{State: RunStateIdle},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.registry != nil {
		var err error
		r.runs, err = r.registry.NewCounterVec(prometheus.CounterOpts{
			Name: metricRuns,
			Help: "Analysis runs by outcome",
		}, []string{"outcome"})
		if err != nil {
			return nil, fmt.Errorf("creating %s metric: %w", metricRuns, err)
		}
		r.lastRunTime, err = r.registry.NewGauge(prometheus.GaugeOpts{
			Name: metricLastRunDuration,
			Help: "Duration of the last completed analysis run",
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s metric: %w", metricLastRunDuration, err)
		}
	}
	return r, nil
}

// Run starts analysing manifest in the background.
// Returns ErrRunInProgress if a run is already in progress.
func (r *Runner) Run(manifest string) error {
	if !r.tryStart(manifest) {
		return ErrRunInProgress
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		report, err := r.analyzer.AnalyzeFile(r.baseCtx, manifest)
		r.finish(report, err)
	}()
	return nil
}

// RunSync analyses manifest and blocks until it completes.
// Returns ErrRunInProgress if a run is already in progress.
func (r *Runner) RunSync(ctx context.Context, manifest string) error {
	if !r.tryStart(manifest) {
		return ErrRunInProgress
	}
	report, err := r.analyzer.AnalyzeFile(ctx, manifest)
	r.finish(report, err)
	return err
}

// Wait blocks until the background run, if any, has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Status returns the current run, or the last completed one when idle.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := r.runStatus
	if status.State == RunStateRunning && r.progress != nil {
		status.Progress = r.progress.All()
	}
	return status
}

// IsRunning returns true if an analysis is in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runStatus.State == RunStateRunning
}

// History returns the completed runs, most recent first.
func (r *Runner) History() []RunStatus {
	return r.store.Runs()
}

// Analyzed returns true if manifest was analysed successfully and has not been
// modified since. It does not depend on the run history, which may be trimmed.
func (r *Runner) Analyzed(manifest string) bool {
	at, ok := r.store.AnalyzedAt(manifest)
	return ok && at.Equal(manifestModTime(manifest))
}

// manifestModTime returns the manifest's modification time, or the zero time if it
// cannot be read.
func manifestModTime(manifest string) time.Time {
	info, err := os.Stat(manifest)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// tryStart attempts to transition from idle to running.
// Returns true if successful, false if already running.
func (r *Runner) tryStart(manifest string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runStatus.State == RunStateRunning {
		return false
	}

	if r.progress != nil {
		r.progress.Reset()
	}
	r.modTime = manifestModTime(manifest)
	now := time.Now()
	r.runStatus = RunStatus{
		State:     RunStateRunning,
		Manifest:  manifest,
		StartedAt: &now,
	}
	r.logger.Info("starting analysis run", "manifest", manifest)
	return true
}

// finish transitions from running to idle and records the result.
func (r *Runner) finish(report *pipeline.Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	endTime := time.Now()
	duration := endTime.Sub(*r.runStatus.StartedAt)

	r.runStatus.State = RunStateIdle
	r.runStatus.EndedAt = &endTime
	r.runStatus.Report = report
	r.runStatus.ID = r.runStatus.CalculateID()

	outcome := "success"
	if err != nil {
		outcome = "failure"
		r.runStatus.Error = err.Error()
		r.logger.Error("analysis run failed", "manifest", r.runStatus.Manifest, "error", err, "duration", duration)
	} else {
		r.logger.Info("analysis run completed", "manifest", r.runStatus.Manifest, "duration", duration)
	}
	if r.runs != nil {
		r.runs.With(prometheus.Labels{"outcome": outcome}).Inc()
		r.lastRunTime.Set(duration.Seconds())
	}

	if err := r.store.Save(r.runStatus); err != nil {
		r.logger.Error("failed to save run to store", "error", err)
	}
	if err == nil {
		if err := r.store.MarkAnalyzed(r.runStatus.Manifest, r.modTime); err != nil {
			r.logger.Error("failed to record analysed manifest", "manifest", r.runStatus.Manifest, "error", err)
		}
	}
}
