package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/multierr"
)

// Scanner analyses the manifests in a directory that have not been analysed
// successfully since they were last modified. It is what the cron trigger runs.
type Scanner struct {
	dir    string
	runner *Runner
}

// NewScanner creates a Scanner over the *.json manifests in dir.
func NewScanner(dir string, r *Runner) *Scanner {
	return &Scanner{dir: dir, runner: r}
}

// Pending returns the manifests still to analyse, in name order.
func (s *Scanner) Pending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading watch directory: %w", err)
	}
	var pending []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if !s.runner.Analyzed(path) {
			pending = append(pending, path)
		}
	}
	slices.Sort(pending)
	return pending, nil
}

// Run analyses every pending manifest in turn. A failed manifest does not stop the
// scan; it is retried on the next one.
func (s *Scanner) Run() error {
	pending, err := s.Pending()
	if err != nil {
		return err
	}
	s.runner.logger.Info("scanning watch directory", "dir", s.dir, "pending", len(pending))

	var errs error
	for _, path := range pending {
		if err := s.runner.RunSync(s.runner.baseCtx, path); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				return multierr.Append(errs, err)
			}
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
			if s.runner.baseCtx.Err() != nil {
				break
			}
		}
	}
	return errs
}
