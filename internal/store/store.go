// Package store persists the coordinator's durable state: whole-system
// snapshots and per-worker resumable contexts. All writes are atomic
// (temp-file-then-rename with fsync) so a partial write is never observable.
// Reads tolerate absence and corruption: both are reported as typed errors
// the caller treats as "start empty", never as fatal.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Iron-Ham/wrangler/internal/logging"
)

// File layout under the store root.
const (
	snapshotFileName = "snapshot.json"
	contextsDirName  = "contexts"
)

// Store is the file-backed persistence layer.
// It is safe for concurrent use.
type Store struct {
	baseDir string
	mu      sync.Mutex
	logger  *logging.Logger
}

// New creates a Store rooted at baseDir, creating the directory tree as
// needed.
func New(baseDir string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(filepath.Join(baseDir, contextsDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{baseDir: baseDir, logger: logger}, nil
}

// BaseDir returns the store root.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// snapshotPath returns the snapshot file path.
func (s *Store) snapshotPath() string {
	return filepath.Join(s.baseDir, snapshotFileName)
}

// contextPath returns the resumable-context file path for a worker id.
func (s *Store) contextPath(workerID string) string {
	return filepath.Join(s.baseDir, contextsDirName, workerID+".json")
}

// atomicWriteFile writes data to path by writing a temp file in the same
// directory, syncing it, and renaming it into place.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
