// Package analysis assembles the configured plugins into a pipeline and runs it over
// one video at a time.
//
// Plugins hold per-video state, so every call to Analyze builds a fresh pipeline
// from the configuration. Long-lived collaborators such as the metrics are shared
// between runs.
package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nomis52/scenecap/captioner"
	"github.com/nomis52/scenecap/config"
	"github.com/nomis52/scenecap/framesource"
	"github.com/nomis52/scenecap/logging"
	"github.com/nomis52/scenecap/pipeline"
	"github.com/nomis52/scenecap/plugins/activity"
	"github.com/nomis52/scenecap/progress"
)

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the base logger for runs.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithMetrics reports activity metrics for every run.
func WithMetrics(m *activity.Metrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// WithLoader overrides how the captioner is acquired. By default the HTTP captioner
// at the configured URL is used.
func WithLoader(l captioner.Loader) Option {
	return func(a *Analyzer) {
		a.loader = l
	}
}

// WithProgress reports plugin progress of the run in flight to h.
func WithProgress(h *progress.Handler) Option {
	return func(a *Analyzer) {
		a.progress = h
	}
}

// Analyzer runs the scenecap pipeline over videos.
type Analyzer struct {
	logger       *slog.Logger
	metrics      *activity.Metrics
	loader       captioner.Loader
	progress     *progress.Handler
	batchSize    int
	captureLevel slog.Level
	policy       activity.FailurePolicy
	captioner    config.CaptionerConfig
}

// New creates an Analyzer from cfg. cfg is expected to have defaults applied.
func New(cfg *config.Config, opts ...Option) (*Analyzer, error) {
	policy, err := activity.ParseFailurePolicy(cfg.Captioner.OnError)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Pipeline.CaptureLogLevel)
	if err != nil {
		return nil, fmt.Errorf("capture log level: %w", err)
	}

	a := &Analyzer{
		logger:       logging.Discard(),
		batchSize:    cfg.Pipeline.BatchSize,
		captureLevel: level,
		policy:       policy,
		captioner:    cfg.Captioner,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.loader == nil {
		a.loader = captioner.NewHTTPLoader(cfg.Captioner.URL,
			captioner.WithMaxNewTokens(cfg.Captioner.MaxNewTokens),
			captioner.WithJPEGQuality(cfg.Captioner.JPEGQuality),
			captioner.WithLogger(a.logger),
		)
	}
	return a, nil
}

// AnalyzeFile runs the pipeline over the video described by the manifest at path.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*pipeline.Report, error) {
	src, err := framesource.Open(path)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, src)
}

// Analyze runs the pipeline over src. The report is returned even when some plugins
// failed; the error then combines their failures.
func (a *Analyzer) Analyze(ctx context.Context, src pipeline.Source) (*pipeline.Report, error) {
	collector := logging.NewLogCollector(a.captureLevel)
	hook := logging.NewPluginLoggerHook(collector)

	plugin := activity.New(a.loader,
		activity.WithLogger(hook.LoggerFor(a.logger, activity.Name)),
		activity.WithMetrics(a.metrics),
		activity.WithTimeout(a.captioner.Timeout),
		activity.WithWorkers(a.captioner.Workers),
		activity.WithFailurePolicy(a.policy),
	)

	runner := pipeline.New(
		pipeline.WithLogger(a.logger),
		pipeline.WithBatchSize(a.batchSize),
		pipeline.WithLogCollector(collector),
		pipeline.WithProgress(a.progress),
	)
	if err := runner.AddPlugin(plugin); err != nil {
		return nil, err
	}

	a.logger.Info("analysing video", "source_id", src.SourceID())
	return runner.Run(ctx, src)
}
