package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nomis52/scenecap/analysis"
	"github.com/nomis52/scenecap/buildinfo"
	"github.com/nomis52/scenecap/config"
	"github.com/nomis52/scenecap/logging"
	"github.com/nomis52/scenecap/metrics"
	"github.com/nomis52/scenecap/plugins/activity"
	"github.com/nomis52/scenecap/progress"
	"github.com/nomis52/scenecap/server"
	"github.com/nomis52/scenecap/server/runner"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	listenAddr := flag.String("listen", "", "Listen address, overrides server.listen_addr")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		props := buildinfo.Get()
		fmt.Printf("scenecap-server %s\n", props.Version)
		fmt.Printf("Built: %s\n", props.BuildTime)
		fmt.Printf("Commit: %s\n", props.GitCommit)
		return
	}

	if err := run(*configPath, *listenAddr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, listenAddr string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := metrics.NewScrapeRegistry(metrics.WithNamespace(cfg.Monitoring.MetricsPrefix))
	if err != nil {
		return fmt.Errorf("failed to create metrics registry: %w", err)
	}

	m, err := activity.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	statuses := progress.NewHandler()
	analyzer, err := analysis.New(&cfg,
		analysis.WithLogger(logger.Logger),
		analysis.WithMetrics(m),
		analysis.WithProgress(statuses),
	)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	var store runner.StateStore
	if cfg.Server.StateDir != "" {
		store, err = runner.NewDiskStore(cfg.Server.StateDir, cfg.Server.MaxHistory, logger.Logger)
		if err != nil {
			return fmt.Errorf("failed to open state dir: %w", err)
		}
	} else {
		store = runner.NewMemoryStore(cfg.Server.MaxHistory)
	}

	r, err := runner.New(logger.Logger, analyzer,
		runner.WithStateStore(store),
		runner.WithBaseContext(ctx),
		runner.WithMetricsRegistry(registry),
		runner.WithProgress(statuses),
	)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	opts := []server.Option{
		server.WithListenAddr(cfg.Server.ListenAddr),
		server.WithLogger(logger.Logger),
		server.WithMetricsHandler(registry.Handler()),
	}
	if cfg.Server.WatchDir != "" {
		opts = append(opts, server.WithWatchDir(cfg.Server.WatchDir))
	}
	if cfg.Server.Schedule != "" {
		opts = append(opts, server.WithCron(cfg.Server.Schedule))
	}
	if cfg.Server.TLSCertFile != "" {
		opts = append(opts, server.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile))
	}

	srv, err := server.New(r, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	props := buildinfo.Get()
	logger.Info("scenecap-server started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"config_path", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"watch_dir", cfg.Server.WatchDir,
		"schedule", cfg.Server.Schedule,
	)

	return srv.Run(ctx)
}
