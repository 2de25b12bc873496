package progress

import (
	"maps"
	"sync"
)

// Handler stores the latest status message of each plugin.
// It is safe for concurrent use.
type Handler struct {
	statuses map[string]string
	mu       sync.RWMutex
}

// NewHandler creates an empty Handler.
func NewHandler() *Handler {
	return &Handler{
		statuses: make(map[string]string),
	}
}

// Set updates the status for name.
func (h *Handler) Set(name, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses[name] = status
}

// Get returns the status for name, or "" if none was set.
func (h *Handler) Get(name string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.statuses[name]
}

// All returns a copy of every status.
func (h *Handler) All() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.statuses)
}

// Reset forgets every status. Called when a new run starts.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.statuses)
}
