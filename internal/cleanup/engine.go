// Package cleanup decides when idle and finished workers advance toward
// destruction. The engine owns the per-id cleanup timers and reacts to
// pressure tier changes; it never mutates worker records itself. Every
// consequence is delivered through the Actions callbacks, which re-enter
// the coordinator's serialized path.
package cleanup

import (
	"sync"

	"github.com/Iron-Ham/wrangler/internal/config"
	"github.com/Iron-Ham/wrangler/internal/logging"
	"github.com/Iron-Ham/wrangler/internal/pressure"
	"github.com/Iron-Ham/wrangler/internal/sched"
)

// TimeoutKind identifies which guard a firing cleanup timer belonged to.
type TimeoutKind string

const (
	// TimeoutIdle fires when a worker sat Idle past idleAgentTimeout.
	TimeoutIdle TimeoutKind = "idle"
	// TimeoutSuspended fires when a Suspended worker aged past
	// suspendedIdleTimeout.
	TimeoutSuspended TimeoutKind = "suspended"
	// TimeoutSweep fires when a SuspendedIdle worker is due for the sweep.
	TimeoutSweep TimeoutKind = "sweep"
	// TimeoutHang fires when an executing worker's subprocess produced no
	// output for processHangTimeout.
	TimeoutHang TimeoutKind = "hang"
)

// Actions is how the engine's decisions reach the coordinator. Every method
// must be safe to call from a timer goroutine; the coordinator serializes
// internally and re-checks current state, so a stale firing is a no-op.
type Actions interface {
	// WorkerTimedOut reports that a worker's cleanup timer fired.
	WorkerTimedOut(workerID string, kind TimeoutKind)

	// TeamDelayElapsed reports that a finished team's grace period ended.
	TeamDelayElapsed(teamID string)

	// EvictOldestPooled asks for n oldest pooled workers to be destroyed.
	EvictOldestPooled(n int)

	// EmergencyCleanup asks for every idle and pooled worker to be
	// destroyed immediately.
	EmergencyCleanup()
}

// Engine is the adaptive cleanup policy engine.
// It is safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	cfg     config.CleanupConfig
	res     config.ResourceConfig
	timers  *sched.Scheduler
	actions Actions
	applied pressure.Tier // last tier whose side effects ran
	logger  *logging.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg config.CleanupConfig, res config.ResourceConfig, actions Actions, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Engine{
		cfg:     cfg,
		res:     res,
		timers:  sched.New(logger),
		actions: actions,
		applied: pressure.TierNormal,
		logger:  logger,
	}
}

// SetConfig hot-swaps the delays and thresholds. Already-armed timers keep
// their original delay; new schedules use the new values.
func (e *Engine) SetConfig(cfg config.CleanupConfig, res config.ResourceConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.res = res
}

// OnIdle arms the idle timer for a worker entering Idle, replacing any
// pending timer for that id.
func (e *Engine) OnIdle(workerID string) {
	e.mu.Lock()
	delay := e.cfg.IdleAgentTimeout()
	e.mu.Unlock()

	e.timers.Schedule(workerID, delay, func(id string) {
		e.actions.WorkerTimedOut(id, TimeoutIdle)
	})
}

// OnSuspended arms the suspended-idle timer for a worker entering Suspended.
func (e *Engine) OnSuspended(workerID string) {
	e.mu.Lock()
	delay := e.cfg.SuspendedIdleTimeout()
	e.mu.Unlock()

	e.timers.Schedule(workerID, delay, func(id string) {
		e.actions.WorkerTimedOut(id, TimeoutSuspended)
	})
}

// OnSuspendedIdle arms the sweep timer for a worker entering the
// SuspendedIdle funnel.
func (e *Engine) OnSuspendedIdle(workerID string) {
	e.mu.Lock()
	delay := e.cfg.SweepDelay()
	e.mu.Unlock()

	e.timers.Schedule(workerID, delay, func(id string) {
		e.actions.WorkerTimedOut(id, TimeoutSweep)
	})
}

// OnExecuting arms the hang timer for a worker entering active execution.
// Each produced-output event re-enters the executing state, so the timer is
// rearmed on every sign of life and fires only after a silent stretch of
// processHangTimeout.
func (e *Engine) OnExecuting(workerID string) {
	e.mu.Lock()
	delay := e.cfg.ProcessHangTimeout()
	e.mu.Unlock()

	e.timers.Schedule(workerID, delay, func(id string) {
		e.actions.WorkerTimedOut(id, TimeoutHang)
	})
}

// OnActive cancels the worker's pending timer. Called exactly when the
// guarding condition ends: the worker left Idle/Suspended/SuspendedIdle for
// an active state, or was destroyed.
func (e *Engine) OnActive(workerID string) {
	e.timers.Cancel(workerID)
}

// ScheduleTeamDelay arms the grace period for a finished team, using the
// failed delay when the team failed. Replaces any pending delay for the team.
func (e *Engine) ScheduleTeamDelay(teamID string, failed bool) {
	e.mu.Lock()
	delay := e.cfg.CompletedTeamDelay()
	if failed {
		delay = e.cfg.FailedTeamDelay()
	}
	e.mu.Unlock()

	e.timers.Schedule(teamID, delay, func(id string) {
		e.actions.TeamDelayElapsed(id)
	})
}

// CancelTeamDelay cancels a team's pending grace period, e.g. when a new
// assignment revives the team.
func (e *Engine) CancelTeamDelay(teamID string) {
	e.timers.Cancel(teamID)
}

// HasPending reports whether a timer is outstanding for the id. Test hook
// and diagnostics.
func (e *Engine) HasPending(id string) bool {
	return e.timers.Pending(id)
}

// OnPressureChange applies tier side effects. Side effects run once per
// entered tier: reapplying the current tier is a no-op, so double delivery
// never double-evicts.
//
//	Elevated: scale all pending delays by 0.5
//	High:     evict the N oldest pooled workers
//	Critical: destroy every idle and pooled worker immediately
func (e *Engine) OnPressureChange(c pressure.Classification) {
	e.mu.Lock()
	if c.Tier == e.applied {
		e.mu.Unlock()
		return
	}
	prev := e.applied
	e.applied = c.Tier
	evictions := e.res.HighPressureEvictions
	e.mu.Unlock()

	if c.Tier <= prev {
		// Pressure easing has no side effects; new schedules simply use
		// full delays again.
		e.logger.Info("pressure eased", "tier", c.Tier.String(), "reason", c.Reason)
		return
	}

	switch c.Tier {
	case pressure.TierElevated:
		e.logger.Warn("elevated pressure: halving pending cleanup delays", "reason", c.Reason)
		e.timers.ScaleAll(0.5)
	case pressure.TierHigh:
		e.logger.Warn("high pressure: evicting oldest pooled workers",
			"evictions", evictions, "reason", c.Reason)
		e.timers.ScaleAll(0.5)
		e.actions.EvictOldestPooled(evictions)
	case pressure.TierCritical:
		e.logger.Error("critical pressure: emergency cleanup", "reason", c.Reason)
		e.actions.EmergencyCleanup()
	}
}

// AppliedTier returns the last tier whose side effects ran.
func (e *Engine) AppliedTier() pressure.Tier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applied
}

// Stop cancels every pending timer.
func (e *Engine) Stop() {
	e.timers.Stop()
}
