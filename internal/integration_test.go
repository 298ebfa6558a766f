// Package internal contains integration tests that verify the packages work
// together correctly: coordinator, pool, cleanup engine, pressure monitor,
// and store wired exactly as the run command wires them.
package internal

import (
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/wrangler/internal/config"
	"github.com/Iron-Ham/wrangler/internal/coordinator"
	"github.com/Iron-Ham/wrangler/internal/event"
	"github.com/Iron-Ham/wrangler/internal/lifecycle"
	"github.com/Iron-Ham/wrangler/internal/store"
	"github.com/Iron-Ham/wrangler/internal/worker"
)

func quietConfig(dataDir string) *config.Config {
	return &config.Config{
		Cleanup: config.CleanupConfig{
			CompletedTeamDelaySeconds:   3600,
			FailedTeamDelaySeconds:      3600,
			IdleAgentTimeoutSeconds:     3600,
			SuspendedIdleTimeoutSeconds: 3600,
			ProcessHangTimeoutSeconds:   3600,
			SweepDelaySeconds:           3600,
		},
		Pool: config.PoolConfig{MaxPerRole: 3, MaxPoolSize: 8, TTLSeconds: 3600},
		Resources: config.ResourceConfig{
			MaxConcurrentWorkers:      100,
			MaxConcurrentProcesses:    100,
			MemoryWarningThresholdMB:  1 << 20,
			MemoryCriticalThresholdMB: 1 << 21,
			SampleIntervalSeconds:     3600,
			HighPressureEvictions:     2,
		},
		Persistence: config.PersistenceConfig{
			DataDir:                 dataDir,
			SnapshotIntervalSeconds: 3600,
			OutputTailLines:         50,
		},
		Logging: config.LoggingConfig{Level: "ERROR"},
	}
}

// TestEventBusIntegration verifies that lifecycle activity inside the
// coordinator reaches bus subscribers, simulating how a presentation layer
// would observe the core.
func TestEventBusIntegration(t *testing.T) {
	cfg := quietConfig(t.TempDir())
	st, err := store.New(cfg.DataDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	bus := event.NewBus()

	var mu sync.Mutex
	var transitions []string
	bus.Subscribe("worker.state_changed", func(e event.Event) {
		sc := e.(event.WorkerStateChangedEvent)
		mu.Lock()
		transitions = append(transitions, sc.OldState+"->"+sc.NewState)
		mu.Unlock()
	})
	destroyed := make(map[string]bool)
	bus.Subscribe("worker.destroyed", func(e event.Event) {
		d := e.(event.WorkerDestroyedEvent)
		mu.Lock()
		destroyed[d.WorkerID] = true
		mu.Unlock()
	})

	coord := coordinator.New(cfg, st, bus, nil)
	t.Cleanup(func() { _ = coord.Stop() })

	tm, err := coord.CreateTeam(0)
	if err != nil {
		t.Fatal(err)
	}
	id := tm.LeaderID
	if err := coord.FireEvent(id, lifecycle.Event{Kind: lifecycle.EventStarted}); err != nil {
		t.Fatal(err)
	}
	if _, err := coord.AssignWork(id, "integration work"); err != nil {
		t.Fatal(err)
	}
	if err := coord.FireEvent(id, lifecycle.Event{Kind: lifecycle.EventProcessExited, ExitCode: 1}); err != nil {
		t.Fatal(err)
	}
	if err := coord.FireEvent(id, lifecycle.Event{Kind: lifecycle.EventDestroy}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"Initializing->Idle",
		"Idle->Working",
		"Working->Error",
		"Error->Destroying",
	}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), transitions)
	}
	for i, w := range want {
		if transitions[i] != w {
			t.Errorf("transition %d: expected %s, got %s", i, w, transitions[i])
		}
	}
	if !destroyed[id] {
		t.Error("destruction notification never reached the bus")
	}
}

// TestPressureEvictionIntegration drives the pressure path end to end: a
// High classification delivered through the coordinator's wiring evicts the
// oldest pooled workers while fresher ones survive.
func TestPressureEvictionIntegration(t *testing.T) {
	cfg := quietConfig(t.TempDir())
	st, err := store.New(cfg.DataDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	bus := event.NewBus()

	var mu sync.Mutex
	var destroyed []string
	bus.Subscribe("worker.destroyed", func(e event.Event) {
		mu.Lock()
		destroyed = append(destroyed, e.(event.WorkerDestroyedEvent).WorkerID)
		mu.Unlock()
	})

	coord := coordinator.New(cfg, st, bus, nil)
	t.Cleanup(func() { _ = coord.Stop() })

	// Three live workers first, then pool them oldest-first. Creating and
	// pooling one at a time would let the next CreateTeam reuse the entry.
	var ids []string
	for i := 0; i < 3; i++ {
		tm, err := coord.CreateTeam(0)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, tm.LeaderID)
		if err := coord.FireEvent(tm.LeaderID, lifecycle.Event{Kind: lifecycle.EventStarted}); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range ids {
		if err := coord.FireEvent(id, lifecycle.Event{Kind: lifecycle.EventPool}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond) // distinct enqueue order
	}

	coord.EvictOldestPooled(cfg.Resources.HighPressureEvictions)

	mu.Lock()
	defer mu.Unlock()
	if len(destroyed) != 2 {
		t.Fatalf("expected 2 evictions, got %v", destroyed)
	}
	if destroyed[0] != ids[0] || destroyed[1] != ids[1] {
		t.Errorf("expected oldest-first eviction of %v, got %v", ids[:2], destroyed)
	}

	// The survivor is still reusable.
	tm, err := coord.CreateTeam(0)
	if err != nil {
		t.Fatal(err)
	}
	if m := coord.PoolMetrics(); m.Hits == 0 {
		t.Error("surviving pooled worker should be reused")
	}
	if w, err := coord.Worker(tm.LeaderID); err != nil || w.State != worker.StateInitializing {
		t.Errorf("reused worker should be Initializing, got %+v err %v", w, err)
	}
}

// TestSuspendResumeAcrossStores verifies the full suspend-to-resume loop
// through the persistence layer with a fresh coordinator, as after a crash.
func TestSuspendResumeAcrossStores(t *testing.T) {
	dataDir := t.TempDir()
	cfg := quietConfig(dataDir)
	st, err := store.New(dataDir, nil)
	if err != nil {
		t.Fatal(err)
	}

	coord := coordinator.New(cfg, st, event.NewBus(), nil)
	tm, err := coord.CreateTeam(0)
	if err != nil {
		t.Fatal(err)
	}
	id := tm.LeaderID
	if err := coord.FireEvent(id, lifecycle.Event{Kind: lifecycle.EventStarted, Payload: "sess-int"}); err != nil {
		t.Fatal(err)
	}
	if err := coord.Suspend(id, "maintenance"); err != nil {
		t.Fatal(err)
	}
	// Simulate a crash: no Stop, no snapshot. The context alone must be
	// enough to recover the conversation.

	st2, err := store.New(dataDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	coord2 := coordinator.New(quietConfig(dataDir), st2, event.NewBus(), nil)
	t.Cleanup(func() { _ = coord2.Stop() })

	if err := coord2.Resume(id); err != nil {
		t.Fatalf("resume from context alone failed: %v", err)
	}
	w, err := coord2.Worker(id)
	if err != nil {
		t.Fatal(err)
	}
	if w.SessionID != "sess-int" {
		t.Errorf("session id lost across stores, got %q", w.SessionID)
	}
	if w.State != worker.StateInitializing {
		t.Errorf("context-rebuilt worker should re-enter through Initializing, got %s", w.State)
	}
	if st2.HasContext(id) {
		t.Error("resume must consume the context")
	}
	_ = coord.Stop()
}
