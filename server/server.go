// Package server provides the HTTP service mode of scenecap.
//
// The server analyses manifests from a watch directory, either on request or on a
// cron schedule, and keeps the history of completed runs with their reports.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /api/status - Build info, current or last run with plugin progress, next scheduled scan
//   - POST /run - Analyses {"manifest": "<name>"} from the watch directory
//   - GET /history - Completed runs, most recent first
//   - GET /history/{id} - One completed run with its report
//   - GET /metrics - Prometheus metrics, when a metrics handler is configured
//
// # Example
//
//	srv, err := server.New(r,
//	    server.WithWatchDir("/srv/videos"),
//	    server.WithCron("*/15 * * * *"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nomis52/scenecap/buildinfo"
	"github.com/nomis52/scenecap/logging"
	"github.com/nomis52/scenecap/server/cron"
	"github.com/nomis52/scenecap/server/handlers"
	"github.com/nomis52/scenecap/server/runner"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultListenAddr      = ":8080"
)

// Server is the HTTP server of the analysis service.
type Server struct {
	addr     string
	logger   *slog.Logger
	runner   *runner.Runner
	watchDir string
	cronSpec string
	metrics  http.Handler
	certFile string
	keyFile  string

	cronTrigger *cron.CronTrigger
	certs       *CertLoader
	props       handlers.ServerProperties
	httpServer  *http.Server
}

// Option configures a Server.
type Option func(*Server) error

// WithListenAddr configures the address the server listens on.
// Default is ":8080".
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithWatchDir sets the directory manifests are read from.
func WithWatchDir(dir string) Option {
	return func(s *Server) error {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("watch directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("watch directory %s is not a directory", dir)
		}
		s.watchDir = dir
		return nil
	}
}

// WithCron scans the watch directory for unanalysed manifests on a schedule.
// The spec follows standard cron format (5 fields: minute, hour, day, month, weekday).
func WithCron(spec string) Option {
	return func(s *Server) error {
		s.cronSpec = spec
		return nil
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) error {
		s.metrics = h
		return nil
	}
}

// WithTLS serves HTTPS with the given key pair, reloading it when the files change.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) error {
		s.certFile = certFile
		s.keyFile = keyFile
		return nil
	}
}

// New creates a Server that starts runs on r.
func New(r *runner.Runner, opts ...Option) (*Server, error) {
	s := &Server{
		addr:   defaultListenAddr,
		logger: logging.Discard(),
		runner: r,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")

	if s.cronSpec != "" {
		if s.watchDir == "" {
			return nil, errors.New("a cron schedule requires a watch directory")
		}
		trigger, err := cron.NewCronTrigger(s.cronSpec, runner.NewScanner(s.watchDir, r), s.logger)
		if err != nil {
			return nil, fmt.Errorf("creating cron trigger: %w", err)
		}
		s.cronTrigger = trigger
	}

	if s.certFile != "" {
		certs, err := NewCertLoader(s.certFile, s.keyFile, s.logger)
		if err != nil {
			return nil, err
		}
		s.certs = certs
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	s.props = handlers.ServerProperties{
		Build:     buildinfo.Get(),
		StartedAt: time.Now(),
		Hostname:  hostname,
		WatchDir:  s.watchDir,
	}
	return s, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Status returns the current run status by delegating to the runner.
func (s *Server) Status() runner.RunStatus {
	return s.runner.Status()
}

// History returns the completed runs by delegating to the runner.
func (s *Server) History() []runner.RunStatus {
	return s.runner.History()
}

// NextRun returns the next scheduled scan, or nil if no cron is configured.
func (s *Server) NextRun() *time.Time {
	if s.cronTrigger == nil {
		return nil
	}
	next := s.cronTrigger.NextRun()
	return &next
}

// Properties returns metadata about this server instance.
func (s *Server) Properties() handlers.ServerProperties {
	return s.props
}

// ResolveManifest maps a manifest name to a path inside the watch directory.
func (s *Server) ResolveManifest(name string) (string, error) {
	if s.watchDir == "" {
		return "", errors.New("no watch directory configured")
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("manifest %q is outside the watch directory", name)
	}
	return filepath.Join(s.watchDir, name), nil
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("POST /run", handlers.NewRunHandler(s.runner, s))
	mux.Handle("GET /history", handlers.NewHistoryHandler(s))
	mux.Handle("GET /history/{id}", handlers.NewHistoryRunHandler(s))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done, waiting for the run in
// progress to be recorded. If a cron trigger is configured it is started too.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certs != nil {
		s.httpServer.TLSConfig = &tls.Config{GetCertificate: s.certs.GetCertificate}
	}

	if s.cronTrigger != nil {
		s.logger.Info("starting cron trigger", "next_run", s.cronTrigger.NextRun())
		s.cronTrigger.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.addr, "tls", s.certs != nil, "watch_dir", s.watchDir)
		var err error
		if s.certs != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.runner.Wait()
		return err
	}
}
