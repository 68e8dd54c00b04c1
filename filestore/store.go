// Package filestore is the reference filesystem PersistenceAdapter: a
// single JSON-encoded PersistentState record written atomically via a
// temp-file-then-rename, matching the original FileSystemDatabase and
// adapted from the teacher's storage.FileTxStore down to a single
// record instead of a map.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arcsign/txmanager/txmanager"
)

// Store persists exactly one txmanager.PersistentState at a time as a
// JSON file at path.
type Store struct {
	path string
}

// New returns a Store backed by path. The file (and its parent
// directory) need not exist yet; it is created on first SetState.
func New(path string) *Store {
	return &Store{path: path}
}

// SetState writes state to disk atomically: write to a temp file in the
// same directory, fsync it, then rename over the final path. The rename
// is atomic on POSIX filesystems, so a crash midway leaves either the
// previous file or the new one intact, never a torn write.
func (s *Store) SetState(ctx context.Context, state *txmanager.PersistentState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("filestore: create directory: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("filestore: encode state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: rename into place: %w", err)
	}
	return nil
}

// GetState returns the stored state, or (nil, nil) if the file does not
// exist yet.
func (s *Store) GetState(ctx context.Context) (*txmanager.PersistentState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("filestore: read file: %w", err)
	}
	var state txmanager.PersistentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("filestore: parse JSON: %w", err)
	}
	return &state, nil
}

// ClearState removes the stored record. Unlike a multi-record store's
// Delete, removing a record that does not exist is an error here: the
// Manager only ever calls ClearState once, immediately after observing
// a receipt it persisted a hash for, so a missing file at that point
// means the store was tampered with or shared with a second Manager.
func (s *Store) ClearState(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("filestore: clear state: not found")
		}
		return fmt.Errorf("filestore: clear state: %w", err)
	}
	return nil
}

var _ txmanager.PersistenceAdapter = (*Store)(nil)
