package handlers

import (
	"net/http"
)

// HistoryHandler handles requests for the run history.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.provider.History())
}

// HistoryRunHandler returns a single run, including its report, by ID.
type HistoryRunHandler struct {
	provider HistoryProvider
}

// NewHistoryRunHandler creates a new HistoryRunHandler. The run ID is read from the
// {id} path wildcard.
func NewHistoryRunHandler(provider HistoryProvider) *HistoryRunHandler {
	return &HistoryRunHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryRunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}

	for _, run := range h.provider.History() {
		if run.ID == id {
			writeJSON(w, http.StatusOK, run)
			return
		}
	}
	writeError(w, http.StatusNotFound, "run not found: %s", id)
}
