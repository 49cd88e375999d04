package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Store persists run records as one JSON file per run. The directory is
// created lazily on the first save, so a daemon that never starts a run
// never touches disk.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes the run record atomically. Every run mutation goes through
// here, so a crash at any point leaves the last durable state on disk.
func (s *Store) Save(run *Run) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create run storage: %w", err)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run %d: %w", run.ID, err)
	}
	data = append(data, '\n')
	return writeAtomic(s.path(run.ID), data)
}

// LoadAll reads every run file in the storage directory, sorted by run id.
// Unreadable or corrupt files are skipped and reported joined into the
// returned error alongside the runs that did decode.
func (s *Store) LoadAll() ([]*Run, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "run-*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan run storage: %w", err)
	}

	var runs []*Run
	var errs []error
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", filepath.Base(path), err))
			continue
		}
		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", filepath.Base(path), err))
			continue
		}
		runs = append(runs, &run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs, errors.Join(errs...)
}

func (s *Store) path(id int) string {
	return filepath.Join(s.dir, fmt.Sprintf("run-%d.json", id))
}

// writeAtomic writes via a temp file in the same directory and renames it
// into place so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
