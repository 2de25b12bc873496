package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedHandler(level slog.Level) (*bytes.Buffer, slog.Handler) {
	var buf bytes.Buffer
	return &buf, slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})
}

func TestCapturingHandler_CapturesAtCollectorLevel(t *testing.T) {
	collector := NewLogCollector(slog.LevelWarn)
	buf, underlying := newBufferedHandler(slog.LevelDebug)
	logger := slog.New(NewCapturingHandler(underlying, collector, "activity"))

	logger.Debug("frame captioned", "frame", 1)
	logger.Info("captioner acquired")
	logger.Warn("captioning failed, skipping frame", "frame", 7, "error", errors.New("timeout"))
	logger.Error("captioning failed, stopping video", "frame", 8)

	logs := collector.Logs("activity")
	require.Len(t, logs, 2)
	assert.Equal(t, "WARN", logs[0].Level)
	assert.Equal(t, "captioning failed, skipping frame", logs[0].Message)
	assert.Equal(t, int64(7), logs[0].Attributes["frame"])
	assert.Equal(t, "timeout", logs[0].Attributes["error"])
	assert.Equal(t, "ERROR", logs[1].Level)

	// Everything still reaches the underlying handler.
	assert.Contains(t, buf.String(), "frame captioned")
	assert.Contains(t, buf.String(), "captioner acquired")
	assert.Contains(t, buf.String(), "stopping video")
}

func TestCapturingHandler_CapturesBelowUnderlyingLevel(t *testing.T) {
	collector := NewLogCollector(slog.LevelInfo)
	buf, underlying := newBufferedHandler(slog.LevelError)
	handler := NewCapturingHandler(underlying, collector, "activity")
	logger := slog.New(handler)

	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelInfo))

	logger.Info("reduced")

	require.Len(t, collector.Logs("activity"), 1)
	assert.Empty(t, buf.String())
}

func TestCapturingHandler_WithAttrsAndGroups(t *testing.T) {
	collector := NewLogCollector(slog.LevelInfo)
	_, underlying := newBufferedHandler(slog.LevelInfo)
	logger := slog.New(NewCapturingHandler(underlying, collector, "activity"))

	logger.With("plugin", "activity").
		WithGroup("frame").
		With("index", 3).
		Info("captioned", "caption", "a dog running", "duration", 2*time.Second)

	logs := collector.Logs("activity")
	require.Len(t, logs, 1)
	assert.Equal(t, map[string]any{
		"plugin":         "activity",
		"frame.index":    int64(3),
		"frame.caption":  "a dog running",
		"frame.duration": "2s",
	}, logs[0].Attributes)
}

func TestCapturingHandler_WithAttrsReturnsCapturingHandler(t *testing.T) {
	collector := NewLogCollector(slog.LevelInfo)
	_, underlying := newBufferedHandler(slog.LevelInfo)
	handler := NewCapturingHandler(underlying, collector, "activity")

	_, ok := handler.WithAttrs([]slog.Attr{slog.String("k", "v")}).(*CapturingHandler)
	assert.True(t, ok)
	_, ok = handler.WithGroup("g").(*CapturingHandler)
	assert.True(t, ok)
	assert.Same(t, handler, handler.WithGroup(""))
}

func TestCapturingHandler_GroupValue(t *testing.T) {
	collector := NewLogCollector(slog.LevelInfo)
	_, underlying := newBufferedHandler(slog.LevelInfo)
	logger := slog.New(NewCapturingHandler(underlying, collector, "activity"))

	logger.Info("reduced", slog.Group("activity", slog.String("phrase", "running"), slog.Float64("confidence", 0.5)))

	logs := collector.Logs("activity")
	require.Len(t, logs, 1)
	assert.Equal(t, map[string]any{"phrase": "running", "confidence": 0.5}, logs[0].Attributes["activity"])
}

func TestLogCollector(t *testing.T) {
	collector := NewLogCollector(slog.LevelWarn)
	assert.Equal(t, slog.LevelWarn, collector.Level())
	assert.Nil(t, collector.Logs("missing"))

	collector.Add("activity", LogEntry{Message: "one"})
	collector.Add("activity", LogEntry{Message: "two"})
	collector.Add("objects", LogEntry{Message: "three"})

	logs := collector.Logs("activity")
	require.Len(t, logs, 2)
	logs[0].Message = "mutated"
	assert.Equal(t, "one", collector.Logs("activity")[0].Message)

	all := collector.All()
	assert.Len(t, all, 2)
	assert.Len(t, all["objects"], 1)

	collector.Reset()
	assert.Empty(t, collector.All())
}

func TestLogCollector_Concurrent(t *testing.T) {
	collector := NewLogCollector(slog.LevelInfo)
	_, underlying := newBufferedHandler(slog.LevelInfo)
	hook := NewPluginLoggerHook(collector)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		logger := hook.LoggerFor(slog.New(underlying), fmt.Sprintf("plugin-%d", p))
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				logger.Info("frame", "index", i)
			}()
		}
	}
	wg.Wait()

	all := collector.All()
	require.Len(t, all, 4)
	for _, entries := range all {
		assert.Len(t, entries, 25)
	}
}
