package logging

import (
	"context"
	"log/slog"
	"strings"
)

// CapturingHandler passes records to an underlying handler and also copies those at or
// above the collector's level into the collector under a plugin name.
type CapturingHandler struct {
	underlying slog.Handler
	collector  *LogCollector
	plugin     string
	attrs      []slog.Attr
	groups     []string
}

// NewCapturingHandler wraps underlying so that records are captured for plugin.
func NewCapturingHandler(underlying slog.Handler, collector *LogCollector, plugin string) *CapturingHandler {
	return &CapturingHandler{
		underlying: underlying,
		collector:  collector,
		plugin:     plugin,
	}
}

// Enabled reports whether either the collector or the underlying handler wants the level.
func (h *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.collector.Level() || h.underlying.Enabled(ctx, level)
}

// Handle captures the record if its level qualifies and forwards it if the underlying
// handler is enabled for it.
func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.collector.Level() {
		entry := LogEntry{
			Time:       r.Time,
			Level:      r.Level.String(),
			Message:    r.Message,
			Attributes: make(map[string]any, r.NumAttrs()+len(h.attrs)),
		}
		for _, a := range h.attrs {
			entry.Attributes[a.Key] = resolveValue(a.Value)
		}
		prefix := strings.Join(h.groups, ".")
		r.Attrs(func(a slog.Attr) bool {
			key := a.Key
			if prefix != "" {
				key = prefix + "." + key
			}
			entry.Attributes[key] = resolveValue(a.Value)
			return true
		})
		h.collector.Add(h.plugin, entry)
	}

	if !h.underlying.Enabled(ctx, r.Level) {
		return nil
	}
	return h.underlying.Handle(ctx, r)
}

// WithAttrs returns a CapturingHandler that also records attrs.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := strings.Join(h.groups, ".")
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		merged = append(merged, a)
	}

	return &CapturingHandler{
		underlying: h.underlying.WithAttrs(attrs),
		collector:  h.collector,
		plugin:     h.plugin,
		attrs:      merged,
		groups:     h.groups,
	}
}

// WithGroup returns a CapturingHandler whose later attributes are qualified by name.
func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, len(h.groups), len(h.groups)+1)
	copy(groups, h.groups)

	return &CapturingHandler{
		underlying: h.underlying.WithGroup(name),
		collector:  h.collector,
		plugin:     h.plugin,
		attrs:      h.attrs,
		groups:     append(groups, name),
	}
}

// resolveValue converts a slog.Value to a JSON-serializable value.
func resolveValue(v slog.Value) any {
	v = v.Resolve()

	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindGroup:
		attrs := v.Group()
		group := make(map[string]any, len(attrs))
		for _, a := range attrs {
			group[a.Key] = resolveValue(a.Value)
		}
		return group
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	}
}

// PluginLoggerHook derives per-plugin loggers from a base logger.
type PluginLoggerHook interface {
	LoggerFor(base *slog.Logger, plugin string) *slog.Logger
}

type capturingHook struct {
	collector *LogCollector
}

// NewPluginLoggerHook returns a hook whose loggers capture into collector.
func NewPluginLoggerHook(collector *LogCollector) PluginLoggerHook {
	return &capturingHook{collector: collector}
}

// LoggerFor wraps base so that records are also captured for plugin.
func (h *capturingHook) LoggerFor(base *slog.Logger, plugin string) *slog.Logger {
	return slog.New(NewCapturingHandler(base.Handler(), h.collector, plugin))
}
