// Package logging provides structured logging for scenecap on top of log/slog.
//
// Example usage:
//
//	logger, err := logging.New(logging.Config{
//		Level:  "info",
//		Format: "json",
//		Output: "stderr",
//	})
//	logger.Info("run started", "source_id", "clip.mp4", "frames", 120)
//	logger.Warn("captioning failed, skipping frame", "frame", 7, "error", err)
//
// Logs of individual plugins can additionally be captured into a LogCollector so
// that they travel with the run report (see NewPluginLoggerHook).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Config holds the configuration for the logger.
type Config struct {
	// Level is the minimum level: debug, info, warn or error. Default info.
	Level string `yaml:"level"`
	// Format is json (default) or text.
	Format string `yaml:"format"`
	// Output is stdout, stderr (default) or a file path, which is appended to.
	Output string `yaml:"output"`
	// AddSource adds the source position to every record.
	AddSource bool `yaml:"add_source"`
}

// Logger is a slog.Logger that remembers its configuration and owns its output.
type Logger struct {
	*slog.Logger
	config Config
	out    io.Closer
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// New creates a logger from cfg. Unset fields take their defaults.
func New(cfg Config) (*Logger, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	cfg.setDefaults()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	w, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: rfc3339Time,
	}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
		out:    closer,
	}, nil
}

// Config returns the effective configuration, with defaults applied.
func (l *Logger) Config() Config {
	return l.config
}

// Close closes the log file, if the logger writes to one.
func (l *Logger) Close() error {
	if l.out == nil {
		return nil
	}
	return l.out.Close()
}

// ParseLevel converts a level name (debug, info, warn, error) to slog.Level.
// Matching is case insensitive.
func ParseLevel(level string) (slog.Level, error) {
	l, ok := levels[strings.ToLower(level)]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}

func (cfg *Config) validate() error {
	if cfg.Level != "" {
		if _, err := ParseLevel(cfg.Level); err != nil {
			names := slices.Sorted(maps.Keys(levels))
			return fmt.Errorf("level must be one of: %s", strings.Join(names, ", "))
		}
	}
	if cfg.Format != "" && cfg.Format != "json" && cfg.Format != "text" {
		return fmt.Errorf("format must be one of: json, text")
	}
	return nil
}

func (cfg *Config) setDefaults() {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// rfc3339Time renders record timestamps in RFC 3339 at second precision.
func rfc3339Time(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
	}
	return a
}

// openOutput returns the writer for output and, for files, the closer that owns it.
func openOutput(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, f, nil
}
