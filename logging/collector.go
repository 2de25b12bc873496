package logging

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// LogEntry is a captured log record.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogCollector stores captured records per plugin. It is safe for concurrent use.
type LogCollector struct {
	level slog.Level

	mu   sync.RWMutex
	logs map[string][]LogEntry
}

// NewLogCollector creates a collector that keeps records at or above level.
func NewLogCollector(level slog.Level) *LogCollector {
	return &LogCollector{
		level: level,
		logs:  make(map[string][]LogEntry),
	}
}

// Level returns the minimum level that is captured.
func (c *LogCollector) Level() slog.Level {
	return c.level
}

// Add stores an entry for the named plugin.
func (c *LogCollector) Add(plugin string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs[plugin] = append(c.logs[plugin], entry)
}

// Logs returns a copy of the entries captured for the named plugin, or nil.
func (c *LogCollector) Logs(plugin string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.logs[plugin])
}

// All returns a copy of every captured entry keyed by plugin.
func (c *LogCollector) All() map[string][]LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]LogEntry, len(c.logs))
	for plugin, entries := range c.logs {
		out[plugin] = slices.Clone(entries)
	}
	return out
}

// Reset drops everything captured so far.
func (c *LogCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = make(map[string][]LogEntry)
}
