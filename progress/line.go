package progress

import "log/slog"

// Line reports the status of one plugin. Messages are logged at debug level and
// stored in the handler, if any.
type Line struct {
	name    string
	logger  *slog.Logger
	handler *Handler
}

// NewLine creates a status line for the named plugin. handler may be nil, in
// which case statuses are only logged.
func NewLine(name string, logger *slog.Logger, handler *Handler) *Line {
	return &Line{
		name:    name,
		logger:  logger,
		handler: handler,
	}
}

// Set records status as the plugin's current status.
func (l *Line) Set(status string) {
	if l == nil {
		return
	}
	l.logger.Debug(status, "status_line", l.name)
	if l.handler != nil {
		l.handler.Set(l.name, status)
	}
}
