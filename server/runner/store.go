package runner

import "time"

// StateStore manages persistence of run history and of the manifests that have
// been analysed successfully.
type StateStore interface {
	// Runs returns the stored runs, most recent first.
	Runs() []RunStatus
	// Save persists a completed run. Older runs may be dropped to respect the
	// store's history limit.
	Save(RunStatus) error
	// MarkAnalyzed records that manifest was analysed successfully while its file
	// had modification time modTime. The record survives history trimming.
	MarkAnalyzed(manifest string, modTime time.Time) error
	// AnalyzedAt returns the modification time recorded by the last MarkAnalyzed
	// for manifest.
	AnalyzedAt(manifest string) (time.Time, bool)
}
