package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Iron-Ham/wrangler/internal/config"
	"github.com/Iron-Ham/wrangler/internal/errors"
	"github.com/Iron-Ham/wrangler/internal/worker"
)

// SnapshotSchemaVersion is the current snapshot record version.
const SnapshotSchemaVersion = 1

// WorkUnit is one unit of work tracked in a snapshot.
type WorkUnit struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	WorkerID    string `json:"worker_id,omitempty"`
	Done        bool   `json:"done,omitempty"`
}

// Snapshot is the whole-system durable record written periodically and on
// shutdown. Pool contents are disposable cache and deliberately excluded;
// pooled workers are recreated on demand after a restart.
type Snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`

	// Workers is the active registry at snapshot time.
	Workers []*worker.Worker `json:"workers,omitempty"`

	// Work is every tracked unit of work.
	Work []WorkUnit `json:"work,omitempty"`

	// ContextIDs lists worker ids with a pending resumable context.
	ContextIDs []string `json:"context_ids,omitempty"`

	// PoolConfig and Cleanup record the configuration in force, so a
	// restart resumes with the policy the system was running under.
	PoolConfig config.PoolConfig    `json:"pool_config"`
	Cleanup    config.CleanupConfig `json:"cleanup"`
}

// SaveSnapshot atomically persists the snapshot.
func (s *Store) SaveSnapshot(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.Version = SnapshotSchemaVersion
	snap.SavedAt = time.Now()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := atomicWriteFile(s.snapshotPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved",
		"workers", len(snap.Workers),
		"contexts", len(snap.ContextIDs))
	return nil
}

// LoadSnapshot reads the persisted snapshot. An absent file returns
// errors.ErrNotFound; an undecodable one returns errors.ErrCorrupted.
// Callers treat both as an empty system.
func (s *Store) LoadSnapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrCorrupted, err)
	}
	return &snap, nil
}
