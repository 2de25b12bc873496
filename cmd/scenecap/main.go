package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nomis52/scenecap/analysis"
	"github.com/nomis52/scenecap/buildinfo"
	"github.com/nomis52/scenecap/config"
	"github.com/nomis52/scenecap/logging"
	"github.com/nomis52/scenecap/metrics"
	"github.com/nomis52/scenecap/plugins/activity"
)

type Args struct {
	ConfigPath   string
	ManifestPath string
	OutputPath   string
	ShowVersion  bool
	Validate     bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	if args.ShowVersion {
		showVersion()
		return nil
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if args.Validate {
		fmt.Printf("Configuration validation successful: %s\n", args.ConfigPath)
		return nil
	}

	if args.ManifestPath == "" {
		return fmt.Errorf("manifest flag (-m or --manifest) is required")
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	props := buildinfo.Get()
	logger.Info("scenecap started",
		"version", props.Version,
		"build_time", props.BuildTime,
		"git_commit", props.GitCommit,
		"config_path", args.ConfigPath,
		"manifest", args.ManifestPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, shutdownMetrics, err := newRegistry(cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer shutdownMetrics()

	m, err := activity.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	analyzer, err := analysis.New(&cfg,
		analysis.WithLogger(logger.Logger),
		analysis.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	report, runErr := analyzer.AnalyzeFile(ctx, args.ManifestPath)
	if report != nil {
		if err := writeReport(args.OutputPath, report); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("analysis failed: %w", runErr)
	}
	return nil
}

// newRegistry pushes metrics when a remote write URL is configured. Otherwise
// metrics are kept in a scrape registry, served on the monitoring listen address
// if one is set.
func newRegistry(cfg config.Config, logger *slog.Logger) (metrics.Registry, func(), error) {
	if cfg.Monitoring.VictoriaMetricsURL != "" {
		instance := cfg.Monitoring.Instance
		if instance == "" {
			hostname, err := os.Hostname()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to get hostname: %w", err)
			}
			instance = hostname
		}
		return metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.VictoriaMetricsURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: instance,
			Logger:   logger,
		}), func() {}, nil
	}

	reg, err := metrics.NewScrapeRegistry(metrics.WithNamespace(cfg.Monitoring.MetricsPrefix))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metrics registry: %w", err)
	}
	if cfg.Monitoring.ListenAddr == "" {
		return reg, func() {}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", reg.Handler())
	srv := &http.Server{Addr: cfg.Monitoring.ListenAddr, Handler: mux, ReadTimeout: 10 * time.Second}
	go func() {
		logger.Info("serving metrics", "addr", cfg.Monitoring.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "error", err)
		}
	}()
	return reg, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

func writeReport(path string, report any) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func showVersion() {
	props := buildinfo.Get()
	fmt.Printf("scenecap %s\n", props.Version)
	fmt.Printf("Built: %s\n", props.BuildTime)
	fmt.Printf("Commit: %s\n", props.GitCommit)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file (defaults apply when omitted)")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")
	manifestPath := flag.String("manifest", "", "Path to the video manifest to analyse")
	manifestPathShort := flag.String("m", "", "Path to the video manifest (shorthand)")
	outputPath := flag.String("o", "-", "Write the JSON report to this file instead of stdout")
	showVersion := flag.Bool("version", false, "Show version information")
	versionShort := flag.Bool("v", false, "Show version information (shorthand)")
	validate := flag.Bool("validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nScene-level activity detection for captioned video frames\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -c /etc/scenecap/config.yaml -m /srv/videos/clip-0001.json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --version\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --config config.yaml --validate\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}
	manifest := *manifestPath
	if manifest == "" && *manifestPathShort != "" {
		manifest = *manifestPathShort
	}

	return Args{
		ConfigPath:   path,
		ManifestPath: manifest,
		OutputPath:   *outputPath,
		ShowVersion:  *showVersion || *versionShort,
		Validate:     *validate,
	}
}
