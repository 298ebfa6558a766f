package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Iron-Ham/wrangler/internal/errors"
)

// ContextSchemaVersion is the current resumable-context record version.
// Decoding ignores unknown fields and defaults missing ones, so records
// written by older and newer builds both load.
const ContextSchemaVersion = 1

// ResumableContext is the immutable snapshot written when a worker enters
// Suspended. It carries everything needed to continue the worker's external
// conversation later. Destroyed on resume or explicit discard.
type ResumableContext struct {
	Version  int    `json:"version"`
	WorkerID string `json:"worker_id"`
	Role     string `json:"role"`

	// SessionID is the external conversation identifier the subprocess
	// driver uses to continue the same conversation.
	SessionID string `json:"session_id"`

	// WorkDir is the working directory the subprocess ran in.
	WorkDir string `json:"work_dir,omitempty"`

	// WorkDescription describes the unit of work in flight at suspension.
	WorkDescription string `json:"work_description,omitempty"`

	// OutputTail is the last N output records before suspension.
	OutputTail []string `json:"output_tail,omitempty"`

	// PendingInteraction is the unanswered question, permission request, or
	// plan payload the worker was blocked on, if any.
	PendingInteraction string `json:"pending_interaction,omitempty"`

	// TeamID and IsLeader preserve team linkage across suspension.
	TeamID   string `json:"team_id,omitempty"`
	IsLeader bool   `json:"is_leader,omitempty"`

	// Reason records why the worker was suspended, e.g. "processTerminated".
	Reason string `json:"reason"`

	// SuspendedAt is when the context was written.
	SuspendedAt time.Time `json:"suspended_at"`
}

// SaveContext atomically persists a resumable context keyed by worker id.
// The write is synchronous: when SaveContext returns nil the context is
// durable, so eviction decisions made afterward can never discard a
// worker's only recovery path.
func (s *Store) SaveContext(rc *ResumableContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rc.Version = ContextSchemaVersion
	if rc.SuspendedAt.IsZero() {
		rc.SuspendedAt = time.Now()
	}

	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal resumable context: %w", err)
	}
	if err := atomicWriteFile(s.contextPath(rc.WorkerID), data, 0644); err != nil {
		return fmt.Errorf("failed to write resumable context: %w", err)
	}

	s.logger.Info("resumable context persisted",
		"worker_id", rc.WorkerID,
		"session_id", rc.SessionID,
		"reason", rc.Reason)
	return nil
}

// LoadContext retrieves the resumable context for a worker id.
// Returns errors.ErrContextNotFound when absent and errors.ErrCorrupted
// when the record fails to decode.
func (s *Store) LoadContext(workerID string) (*ResumableContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadContextLocked(workerID)
}

func (s *Store) loadContextLocked(workerID string) (*ResumableContext, error) {
	data, err := os.ReadFile(s.contextPath(workerID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrContextNotFound
		}
		return nil, fmt.Errorf("failed to read resumable context: %w", err)
	}

	var rc ResumableContext
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrCorrupted, err)
	}
	if rc.WorkerID == "" {
		rc.WorkerID = workerID
	}
	return &rc, nil
}

// DeleteContext removes the resumable context for a worker id. Deleting an
// absent context returns errors.ErrContextNotFound.
func (s *Store) DeleteContext(workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.contextPath(workerID)); err != nil {
		if os.IsNotExist(err) {
			return errors.ErrContextNotFound
		}
		return fmt.Errorf("failed to delete resumable context: %w", err)
	}

	s.logger.Debug("resumable context deleted", "worker_id", workerID)
	return nil
}

// HasContext reports whether a resumable context exists for a worker id.
func (s *Store) HasContext(workerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := os.Stat(s.contextPath(workerID))
	return err == nil
}

// ListContexts enumerates every persisted resumable context, oldest first.
// Unreadable or corrupt entries are logged and skipped; one bad file never
// hides the rest.
func (s *Store) ListContexts() ([]*ResumableContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.baseDir, contextsDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read contexts directory: %w", err)
	}

	var contexts []*ResumableContext
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		workerID := strings.TrimSuffix(entry.Name(), ".json")
		rc, err := s.loadContextLocked(workerID)
		if err != nil {
			s.logger.Warn("skipping unreadable resumable context",
				"worker_id", workerID,
				"error", err.Error())
			continue
		}
		contexts = append(contexts, rc)
	}

	sort.Slice(contexts, func(i, j int) bool {
		return contexts[i].SuspendedAt.Before(contexts[j].SuspendedAt)
	})
	return contexts, nil
}
