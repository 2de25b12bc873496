package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// analyzedFile holds the successfully analysed manifests. Its extension keeps it
// apart from the run files.
const analyzedFile = "analyzed.index"

// DiskStore persists run history to disk, one JSON file per run, plus an index of
// the analysed manifests that history trimming does not touch.
type DiskStore struct {
	dir      string
	logger   *slog.Logger
	maxCount int
	runs     []RunStatus          // protected by mu
	analyzed map[string]time.Time // protected by mu
	mu       sync.Mutex
}

// NewDiskStore creates a new disk-backed store.
// The directory is created if it doesn't exist, and existing runs are loaded.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	s := &DiskStore{
		dir:      dir,
		logger:   logger,
		maxCount: maxCount,
		runs:     make([]RunStatus, 0),
		analyzed: make(map[string]time.Time),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	runs, err := s.load()
	if err != nil {
		logger.Warn("failed to load existing runs", "error", err)
	} else {
		s.runs = runs
	}

	analyzed, err := s.loadAnalyzed()
	if err != nil {
		logger.Warn("failed to load analysed manifests", "error", err)
	} else {
		s.analyzed = analyzed
	}

	return s, nil
}

// MarkAnalyzed records a successful analysis of manifest and rewrites the index.
func (s *DiskStore) MarkAnalyzed(manifest string, modTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.analyzed[manifest] = modTime
	data, err := json.MarshalIndent(s.analyzed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal analysed manifests: %w", err)
	}
	path := filepath.Join(s.dir, analyzedFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write analysed manifests: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace analysed manifests: %w", err)
	}
	return nil
}

// AnalyzedAt returns the modification time manifest had when it was last analysed.
func (s *DiskStore) AnalyzedAt(manifest string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.analyzed[manifest]
	return t, ok
}

func (s *DiskStore) loadAnalyzed() (map[string]time.Time, error) {
	analyzed := make(map[string]time.Time)
	data, err := os.ReadFile(filepath.Join(s.dir, analyzedFile))
	if errors.Is(err, fs.ErrNotExist) {
		return analyzed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read analysed manifests: %w", err)
	}
	if err := json.Unmarshal(data, &analyzed); err != nil {
		return nil, fmt.Errorf("failed to parse analysed manifests: %w", err)
	}
	return analyzed, nil
}

// Runs returns all runs, most recent first.
func (s *DiskStore) Runs() []RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunStatus, len(s.runs))
	copy(result, s.runs)
	return result
}

// Save writes the run to disk and adds it to the in-memory history.
// Files beyond maxCount are removed, oldest first.
func (s *DiskStore) Save(run RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.StartedAt == nil {
		return fmt.Errorf("cannot save run without start time")
	}
	if run.ID == "" {
		run.ID = run.CalculateID()
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	path := s.path(run.ID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	s.runs = append([]RunStatus{run}, s.runs...)
	for len(s.runs) > s.maxCount {
		oldest := s.runs[len(s.runs)-1]
		if err := os.Remove(s.path(oldest.ID)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove old run file", "id", oldest.ID, "error", err)
		}
		s.runs = s.runs[:len(s.runs)-1]
	}

	s.logger.Debug("saved run to disk", "path", path)
	return nil
}

// Reload re-loads all runs from disk.
func (s *DiskStore) Reload() error {
	runs, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = runs
	return nil
}

func (s *DiskStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// load reads every run file in the state directory.
func (s *DiskStore) load() ([]RunStatus, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	runs := make([]RunStatus, 0, min(len(files), s.maxCount))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read run file", "file", path, "error", err)
			continue
		}

		var run RunStatus
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Warn("failed to parse run file", "file", path, "error", err)
			continue
		}
		if run.ID == "" {
			run.ID = run.CalculateID()
		}
		runs = append(runs, run)
	}

	// Most recent first
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt == nil {
			return false
		}
		if runs[j].StartedAt == nil {
			return true
		}
		return runs[i].StartedAt.After(*runs[j].StartedAt)
	})

	if len(runs) > s.maxCount {
		runs = runs[:s.maxCount]
	}

	s.logger.Info("loaded run history from disk", "count", len(runs))
	return runs, nil
}
