// Package handlers provides HTTP handlers for the scenecap server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"time"

	"github.com/nomis52/scenecap/buildinfo"
	"github.com/nomis52/scenecap/server/runner"
)

// ServerProperties holds metadata about the running server instance.
type ServerProperties struct {
	Build     buildinfo.Properties `json:"build"`
	StartedAt time.Time            `json:"started_at"`
	Hostname  string               `json:"hostname"`
	WatchDir  string               `json:"watch_dir,omitempty"`
}

// ManifestRunner can start analysis runs.
type ManifestRunner interface {
	Run(manifest string) error
}

// ManifestResolver maps a manifest name from a request to a path on disk.
type ManifestResolver interface {
	ResolveManifest(name string) (string, error)
}

// HistoryProvider provides access to run history.
type HistoryProvider interface {
	History() []runner.RunStatus
}

// APIStatusProvider aggregates what the status endpoint reports.
type APIStatusProvider interface {
	Status() runner.RunStatus
	NextRun() *time.Time
	Properties() ServerProperties
}
