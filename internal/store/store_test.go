package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/wrangler/internal/errors"
	"github.com/Iron-Ham/wrangler/internal/worker"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestStore_ContextRoundTrip(t *testing.T) {
	s := newTestStore(t)

	rc := &ResumableContext{
		WorkerID:           "w-1",
		Role:               "developer",
		SessionID:          "sess-abc",
		WorkDir:            "/tmp/work",
		WorkDescription:    "refactor the parser",
		OutputTail:         []string{"line one", "line two"},
		PendingInteraction: "may I run the tests?",
		TeamID:             "team-1",
		Reason:             "processTerminated",
	}
	if err := s.SaveContext(rc); err != nil {
		t.Fatalf("SaveContext failed: %v", err)
	}

	got, err := s.LoadContext("w-1")
	if err != nil {
		t.Fatalf("LoadContext failed: %v", err)
	}
	if got.SessionID != "sess-abc" {
		t.Errorf("session id must survive the round trip, got %q", got.SessionID)
	}
	if got.Reason != "processTerminated" {
		t.Errorf("expected reason processTerminated, got %q", got.Reason)
	}
	if len(got.OutputTail) != 2 || got.OutputTail[1] != "line two" {
		t.Errorf("output tail mangled: %v", got.OutputTail)
	}
	if got.PendingInteraction != "may I run the tests?" {
		t.Errorf("pending interaction mangled: %q", got.PendingInteraction)
	}
	if got.Version != ContextSchemaVersion {
		t.Errorf("expected schema version %d, got %d", ContextSchemaVersion, got.Version)
	}
	if got.SuspendedAt.IsZero() {
		t.Error("SuspendedAt should be stamped on save")
	}
}

func TestStore_ContextDurableOnReturn(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveContext(&ResumableContext{WorkerID: "w-1", SessionID: "s", Reason: "r"}); err != nil {
		t.Fatalf("SaveContext failed: %v", err)
	}

	// The file must already be in its final place, not a temp name.
	if _, err := os.Stat(filepath.Join(s.BaseDir(), "contexts", "w-1.json")); err != nil {
		t.Errorf("context file not at final path after save: %v", err)
	}
}

func TestStore_LoadContextAbsent(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.LoadContext("nope"); !errors.Is(err, errors.ErrContextNotFound) {
		t.Errorf("expected ErrContextNotFound, got %v", err)
	}
}

func TestStore_LoadContextCorrupted(t *testing.T) {
	s := newTestStore(t)

	path := filepath.Join(s.BaseDir(), "contexts", "w-1.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.LoadContext("w-1"); !errors.Is(err, errors.ErrCorrupted) {
		t.Errorf("expected ErrCorrupted, got %v", err)
	}
}

func TestStore_DeleteContext(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveContext(&ResumableContext{WorkerID: "w-1"}); err != nil {
		t.Fatal(err)
	}
	if !s.HasContext("w-1") {
		t.Fatal("context should exist")
	}
	if err := s.DeleteContext("w-1"); err != nil {
		t.Fatalf("DeleteContext failed: %v", err)
	}
	if s.HasContext("w-1") {
		t.Error("context should be gone")
	}
	if err := s.DeleteContext("w-1"); !errors.Is(err, errors.ErrContextNotFound) {
		t.Errorf("double delete should report ErrContextNotFound, got %v", err)
	}
}

func TestStore_ListContextsSkipsCorrupt(t *testing.T) {
	s := newTestStore(t)

	older := &ResumableContext{WorkerID: "w-old", SuspendedAt: time.Now().Add(-time.Hour)}
	newer := &ResumableContext{WorkerID: "w-new", SuspendedAt: time.Now()}
	if err := s.SaveContext(newer); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveContext(older); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(s.BaseDir(), "contexts", "w-bad.json")
	if err := os.WriteFile(bad, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	contexts, err := s.ListContexts()
	if err != nil {
		t.Fatalf("ListContexts failed: %v", err)
	}
	if len(contexts) != 2 {
		t.Fatalf("expected the corrupt entry to be skipped, got %d entries", len(contexts))
	}
	if contexts[0].WorkerID != "w-old" || contexts[1].WorkerID != "w-new" {
		t.Errorf("expected oldest-first ordering, got %s then %s",
			contexts[0].WorkerID, contexts[1].WorkerID)
	}
}

func TestStore_ListContextsEmpty(t *testing.T) {
	s := newTestStore(t)

	contexts, err := s.ListContexts()
	if err != nil {
		t.Fatalf("ListContexts failed: %v", err)
	}
	if len(contexts) != 0 {
		t.Errorf("expected no contexts, got %d", len(contexts))
	}
}

func TestStore_SnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)

	w := worker.New(worker.RoleDeveloper)
	w.State = worker.StateSuspended
	snap := &Snapshot{
		Workers:    []*worker.Worker{w},
		Work:       []WorkUnit{{ID: "work-1", Description: "fix the bug", WorkerID: w.ID}},
		ContextIDs: []string{w.ID},
	}
	if err := s.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if got.Version != SnapshotSchemaVersion {
		t.Errorf("expected schema version %d, got %d", SnapshotSchemaVersion, got.Version)
	}
	if len(got.Workers) != 1 || got.Workers[0].ID != w.ID {
		t.Fatalf("workers mangled: %+v", got.Workers)
	}
	if got.Workers[0].State != worker.StateSuspended {
		t.Errorf("worker state must survive, got %s", got.Workers[0].State)
	}
	if len(got.Work) != 1 || got.Work[0].Description != "fix the bug" {
		t.Errorf("work units mangled: %+v", got.Work)
	}
}

func TestStore_LoadSnapshotAbsent(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.LoadSnapshot(); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_LoadSnapshotCorrupted(t *testing.T) {
	s := newTestStore(t)

	if err := os.WriteFile(filepath.Join(s.BaseDir(), "snapshot.json"), []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadSnapshot(); !errors.Is(err, errors.ErrCorrupted) {
		t.Errorf("expected ErrCorrupted, got %v", err)
	}
}

func TestStore_SaveOverwritesAtomically(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if err := s.SaveContext(&ResumableContext{WorkerID: "w-1", Reason: "r"}); err != nil {
			t.Fatalf("save %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(s.BaseDir(), "contexts"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("repeated saves must leave exactly one file, found %d", len(entries))
	}
}
