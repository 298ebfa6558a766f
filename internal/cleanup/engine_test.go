package cleanup

import (
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/wrangler/internal/config"
	"github.com/Iron-Ham/wrangler/internal/pressure"
)

// recordingActions captures every decision the engine delivers.
type recordingActions struct {
	mu         sync.Mutex
	timeouts   []string // "<id>/<kind>"
	teamDelays []string
	evictions  []int
	emergency  int
}

func (a *recordingActions) WorkerTimedOut(workerID string, kind TimeoutKind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timeouts = append(a.timeouts, workerID+"/"+string(kind))
}

func (a *recordingActions) TeamDelayElapsed(teamID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.teamDelays = append(a.teamDelays, teamID)
}

func (a *recordingActions) EvictOldestPooled(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.evictions = append(a.evictions, n)
}

func (a *recordingActions) EmergencyCleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.emergency++
}

func (a *recordingActions) snapshot() recordingActions {
	a.mu.Lock()
	defer a.mu.Unlock()
	return recordingActions{
		timeouts:   append([]string(nil), a.timeouts...),
		teamDelays: append([]string(nil), a.teamDelays...),
		evictions:  append([]int(nil), a.evictions...),
		emergency:  a.emergency,
	}
}

func fastConfig() config.CleanupConfig {
	// Sub-second delays are not expressible in the second-granular config,
	// so tests that need a firing use zero-delay fields.
	return config.CleanupConfig{
		CompletedTeamDelaySeconds:   0,
		FailedTeamDelaySeconds:      0,
		IdleAgentTimeoutSeconds:     0,
		SuspendedIdleTimeoutSeconds: 0,
		ProcessHangTimeoutSeconds:   0,
		SweepDelaySeconds:           0,
	}
}

func slowConfig() config.CleanupConfig {
	return config.CleanupConfig{
		CompletedTeamDelaySeconds:   3600,
		FailedTeamDelaySeconds:      3600,
		IdleAgentTimeoutSeconds:     3600,
		SuspendedIdleTimeoutSeconds: 3600,
		ProcessHangTimeoutSeconds:   3600,
		SweepDelaySeconds:           3600,
	}
}

func testResources() config.ResourceConfig {
	return config.ResourceConfig{HighPressureEvictions: 2}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEngine_IdleTimerFires(t *testing.T) {
	acts := &recordingActions{}
	e := NewEngine(fastConfig(), testResources(), acts, nil)
	defer e.Stop()

	e.OnIdle("w-1")
	waitFor(t, func() bool { return len(acts.snapshot().timeouts) == 1 })

	got := acts.snapshot().timeouts[0]
	if got != "w-1/idle" {
		t.Errorf("expected w-1/idle, got %s", got)
	}
}

func TestEngine_TimeoutKinds(t *testing.T) {
	acts := &recordingActions{}
	e := NewEngine(fastConfig(), testResources(), acts, nil)
	defer e.Stop()

	e.OnSuspended("w-1")
	waitFor(t, func() bool { return len(acts.snapshot().timeouts) == 1 })
	e.OnSuspendedIdle("w-1")
	waitFor(t, func() bool { return len(acts.snapshot().timeouts) == 2 })

	got := acts.snapshot().timeouts
	if got[0] != "w-1/suspended" || got[1] != "w-1/sweep" {
		t.Errorf("expected suspended then sweep, got %v", got)
	}
}

func TestEngine_HangTimerFires(t *testing.T) {
	acts := &recordingActions{}
	e := NewEngine(fastConfig(), testResources(), acts, nil)
	defer e.Stop()

	e.OnExecuting("w-1")
	waitFor(t, func() bool { return len(acts.snapshot().timeouts) == 1 })

	if got := acts.snapshot().timeouts[0]; got != "w-1/hang" {
		t.Errorf("expected w-1/hang, got %s", got)
	}
}

func TestEngine_HangTimerRearmsAndCancels(t *testing.T) {
	acts := &recordingActions{}
	e := NewEngine(slowConfig(), testResources(), acts, nil)
	defer e.Stop()

	e.OnExecuting("w-1")
	e.OnExecuting("w-1") // each sign of life replaces the pending timer
	if !e.HasPending("w-1") {
		t.Fatal("hang timer should be pending")
	}

	e.OnActive("w-1")
	if e.HasPending("w-1") {
		t.Error("leaving execution must cancel the hang timer")
	}
}

func TestEngine_OnActiveCancels(t *testing.T) {
	acts := &recordingActions{}
	e := NewEngine(slowConfig(), testResources(), acts, nil)
	defer e.Stop()

	e.OnIdle("w-1")
	if !e.HasPending("w-1") {
		t.Fatal("idle timer should be pending")
	}

	e.OnActive("w-1")
	if e.HasPending("w-1") {
		t.Error("leaving the guarded state must cancel the timer")
	}
}

func TestEngine_TeamDelay(t *testing.T) {
	acts := &recordingActions{}
	e := NewEngine(fastConfig(), testResources(), acts, nil)
	defer e.Stop()

	e.ScheduleTeamDelay("team-1", false)
	waitFor(t, func() bool { return len(acts.snapshot().teamDelays) == 1 })
	if acts.snapshot().teamDelays[0] != "team-1" {
		t.Errorf("expected team-1, got %v", acts.snapshot().teamDelays)
	}
}

func TestEngine_CancelTeamDelay(t *testing.T) {
	acts := &recordingActions{}
	e := NewEngine(slowConfig(), testResources(), acts, nil)
	defer e.Stop()

	e.ScheduleTeamDelay("team-1", true)
	e.CancelTeamDelay("team-1")
	if e.HasPending("team-1") {
		t.Error("cancelled team delay should not be pending")
	}
}

func TestEngine_PressureSideEffects(t *testing.T) {
	acts := &recordingActions{}
	e := NewEngine(slowConfig(), testResources(), acts, nil)
	defer e.Stop()

	e.OnPressureChange(pressure.Classification{Tier: pressure.TierHigh, Reason: "test"})
	got := acts.snapshot()
	if len(got.evictions) != 1 || got.evictions[0] != 2 {
		t.Errorf("High should evict the configured 2 oldest, got %v", got.evictions)
	}
	if e.AppliedTier() != pressure.TierHigh {
		t.Errorf("expected applied tier High, got %s", e.AppliedTier())
	}

	e.OnPressureChange(pressure.Classification{Tier: pressure.TierCritical, Reason: "test"})
	if acts.snapshot().emergency != 1 {
		t.Error("Critical should trigger exactly one emergency cleanup")
	}
}

func TestEngine_TierReapplicationIsIdempotent(t *testing.T) {
	acts := &recordingActions{}
	e := NewEngine(slowConfig(), testResources(), acts, nil)
	defer e.Stop()

	e.OnPressureChange(pressure.Classification{Tier: pressure.TierHigh, Reason: "test"})
	e.OnPressureChange(pressure.Classification{Tier: pressure.TierHigh, Reason: "test"})
	if got := acts.snapshot(); len(got.evictions) != 1 {
		t.Errorf("re-entering the same tier must not double-evict, got %v", got.evictions)
	}
}

func TestEngine_EasingHasNoSideEffects(t *testing.T) {
	acts := &recordingActions{}
	e := NewEngine(slowConfig(), testResources(), acts, nil)
	defer e.Stop()

	e.OnPressureChange(pressure.Classification{Tier: pressure.TierCritical, Reason: "test"})
	e.OnPressureChange(pressure.Classification{Tier: pressure.TierNormal, Reason: "test"})

	got := acts.snapshot()
	if got.emergency != 1 || len(got.evictions) != 0 {
		t.Errorf("easing must not add side effects, got evictions=%v emergency=%d", got.evictions, got.emergency)
	}
	if e.AppliedTier() != pressure.TierNormal {
		t.Errorf("applied tier should track easing, got %s", e.AppliedTier())
	}

	// Re-escalation after easing applies again.
	e.OnPressureChange(pressure.Classification{Tier: pressure.TierCritical, Reason: "test"})
	if acts.snapshot().emergency != 2 {
		t.Error("re-escalation after easing should re-apply side effects")
	}
}

func TestEngine_ElevatedHalvesDelays(t *testing.T) {
	acts := &recordingActions{}
	e := NewEngine(slowConfig(), testResources(), acts, nil)
	defer e.Stop()

	e.OnIdle("w-1")
	e.OnPressureChange(pressure.Classification{Tier: pressure.TierElevated, Reason: "test"})

	// Halving an hour is still far out; the timer must survive rescaling.
	if !e.HasPending("w-1") {
		t.Error("rescaled timer should still be pending")
	}
	if got := acts.snapshot(); len(got.evictions) != 0 || got.emergency != 0 {
		t.Errorf("Elevated must not evict or emergency-clean, got evictions=%v emergency=%d", got.evictions, got.emergency)
	}
}
