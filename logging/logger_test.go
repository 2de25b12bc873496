package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests
// ---------------------------------------------------------------------

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "json to stdout", config: Config{Level: "info", Format: "json", Output: "stdout"}},
		{name: "text to stderr", config: Config{Level: "debug", Format: "text", Output: "stderr"}},
		{name: "upper case level", config: Config{Level: "WARN"}},
		{name: "all defaults", config: Config{}},
		{name: "unknown level", config: Config{Level: "trace"}, wantErr: "level must be one of: debug, error, info, warn"},
		{name: "unknown format", config: Config{Format: "xml"}, wantErr: "format must be one of"},
		{
			name:    "unwritable file",
			config:  Config{Output: filepath.Join(t.TempDir(), "missing", "scenecap.log")},
			wantErr: "opening log file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, logger.Close())
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenecap.log")

	logger, err := New(Config{Level: "warn", Output: path})
	require.NoError(t, err)

	logger.Info("not written")
	logger.Warn("captioner unavailable", "plugin", "activity")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "not written")
	assert.Contains(t, string(data), `"msg":"captioner unavailable"`)
	assert.Contains(t, string(data), `"plugin":"activity"`)

	// A second logger appends to the same file.
	logger, err = New(Config{Output: path, Format: "text"})
	require.NoError(t, err)
	logger.Info("second run")
	require.NoError(t, logger.Close())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "captioner unavailable")
	assert.Contains(t, string(data), "msg=\"second run\"")
}

func TestLogger_Config(t *testing.T) {
	logger, err := New(Config{Level: "debug"})
	require.NoError(t, err)

	assert.Equal(t, Config{Level: "debug", Format: "json", Output: "stderr"}, logger.Config())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    slog.Level
		wantErr bool
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "info", want: slog.LevelInfo},
		{level: "warn", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "Error", want: slog.LevelError},
		{level: "warning", wantErr: true},
		{level: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := ParseLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
		})
	}
}

func TestRFC3339Time(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: rfc3339Time}))
	logger.Info("tick")

	assert.Regexp(t, `"time":"\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(Z|[+-]\d{2}:\d{2})"`, buf.String())
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
	assert.NotPanics(t, func() { logger.Error("dropped", "error", assert.AnError) })
}
