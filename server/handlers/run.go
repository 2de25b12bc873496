package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nomis52/scenecap/server/runner"
)

// RunRequest defines the request body for POST /run.
type RunRequest struct {
	// Manifest is the manifest file name, relative to the watch directory.
	Manifest string `json:"manifest"`
}

// RunResponse is returned when a run was accepted.
type RunResponse struct {
	Manifest string `json:"manifest"`
}

// RunHandler handles requests to analyse a manifest.
type RunHandler struct {
	runner   ManifestRunner
	resolver ManifestResolver
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(r ManifestRunner, resolver ManifestResolver) *RunHandler {
	return &RunHandler{
		runner:   r,
		resolver: resolver,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}
	if req.Manifest == "" {
		writeError(w, http.StatusBadRequest, "manifest cannot be empty")
		return
	}

	path, err := h.resolver.ResolveManifest(req.Manifest)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	if err := h.runner.Run(path); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, runner.ErrRunInProgress) {
			status = http.StatusConflict
		}
		writeError(w, status, "%v", err)
		return
	}

	writeJSON(w, http.StatusAccepted, RunResponse{Manifest: path})
}
