// Package coordinator implements the serialized lifecycle core. A single
// mutex orders every mutation: driver events, user actions, timer firings,
// pool evictions, and pressure reactions all funnel through it, so no
// transition ever observes a half-applied peer. Everything outside the lock
// is notification: bus publications and callbacks run after state settles.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/wrangler/internal/cleanup"
	"github.com/Iron-Ham/wrangler/internal/config"
	"github.com/Iron-Ham/wrangler/internal/errors"
	"github.com/Iron-Ham/wrangler/internal/event"
	"github.com/Iron-Ham/wrangler/internal/lifecycle"
	"github.com/Iron-Ham/wrangler/internal/logging"
	"github.com/Iron-Ham/wrangler/internal/pool"
	"github.com/Iron-Ham/wrangler/internal/pressure"
	"github.com/Iron-Ham/wrangler/internal/sched"
	"github.com/Iron-Ham/wrangler/internal/store"
	"github.com/Iron-Ham/wrangler/internal/team"
	"github.com/Iron-Ham/wrangler/internal/worker"
)

// disbandTimeout bounds how long the coordinator waits for the presentation
// layer's farewell before force-finalizing a disbanding team.
const disbandTimeout = 30 * time.Second

// Coordinator owns the worker registry and drives every lifecycle
// transition. It is safe for concurrent use; all mutations are serialized
// behind one mutex.
type Coordinator struct {
	mu  sync.Mutex
	cfg *config.Config

	machine *lifecycle.Machine
	workers map[string]*worker.Worker // active registry: id -> record
	teams   map[string]*team.Team
	work    map[string]*store.WorkUnit

	// tails and pending capture recent subprocess output and the open
	// interactive request per worker, for resumable-context snapshots.
	tails   map[string][]string
	pending map[string]string

	// disbands tracks workers awaiting the farewell completion signal,
	// keyed by team id.
	disbands map[string][]string

	pool    *pool.Pool
	store   *store.Store
	cleanup *cleanup.Engine
	monitor *pressure.Monitor
	bus     *event.Bus
	timers  *sched.Scheduler // disband deadlines

	// queued collects notifications raised while c.mu is held. Exported
	// entry points flush them after unlocking, so a subscriber that calls
	// back into the coordinator never deadlocks.
	queued []event.Event

	snapCancel context.CancelFunc
	shutdown   bool

	logger *logging.Logger
}

// New wires a Coordinator from its parts. The store must already exist; the
// pool, cleanup engine, and pressure monitor are constructed here so their
// callbacks land on this coordinator.
func New(cfg *config.Config, st *store.Store, bus *event.Bus, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger()
	}

	c := &Coordinator{
		cfg:      cfg,
		machine:  lifecycle.NewMachine(),
		workers:  make(map[string]*worker.Worker),
		teams:    make(map[string]*team.Team),
		work:     make(map[string]*store.WorkUnit),
		tails:    make(map[string][]string),
		pending:  make(map[string]string),
		disbands: make(map[string][]string),
		store:    st,
		bus:      bus,
		timers:   sched.New(logger.WithComponent("coordinator")),
		logger:   logger.WithComponent("coordinator"),
	}

	c.pool = pool.New(pool.Config{
		MaxPerRole:  cfg.Pool.MaxPerRole,
		MaxPoolSize: cfg.Pool.MaxPoolSize,
		TTL:         cfg.Pool.TTL(),
	}, c.onPoolExpired, logger.WithComponent("pool"))

	c.cleanup = cleanup.NewEngine(cfg.Cleanup, cfg.Resources, c, logger.WithComponent("cleanup"))

	c.monitor = pressure.NewMonitor(pressure.Thresholds{
		MaxConcurrentWorkers:   cfg.Resources.MaxConcurrentWorkers,
		MaxConcurrentProcesses: cfg.Resources.MaxConcurrentProcesses,
		MemoryWarningMB:        cfg.Resources.MemoryWarningThresholdMB,
		MemoryCriticalMB:       cfg.Resources.MemoryCriticalThresholdMB,
	}, cfg.Resources.SampleInterval(), c.counts, bus, logger.WithComponent("pressure"))
	c.monitor.OnChange(func(old pressure.Tier, cls pressure.Classification) {
		c.cleanup.OnPressureChange(cls)
	})

	return c
}

// Start recovers persisted state, surfaces resume candidates, and launches
// the pressure monitor and the periodic snapshot loop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.recoverSnapshot()

	contexts, err := c.store.ListContexts()
	if err != nil {
		c.logger.Warn("failed to list resumable contexts", "error", err.Error())
	}
	if len(contexts) > 0 {
		candidates := make([]event.ContextSummary, 0, len(contexts))
		for _, rc := range contexts {
			candidates = append(candidates, event.ContextSummary{
				WorkerID:    rc.WorkerID,
				Role:        rc.Role,
				SessionID:   rc.SessionID,
				Reason:      rc.Reason,
				SuspendedAt: rc.SuspendedAt,
				Description: rc.WorkDescription,
			})
		}
		// Candidates are surfaced, never auto-resumed.
		c.bus.Publish(event.NewResumeCandidatesEvent(candidates))
		c.logger.Info("resume candidates discovered", "count", len(candidates))
	}

	c.monitor.Start(ctx)

	snapCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.snapCancel = cancel
	interval := c.cfg.Persistence.SnapshotInterval()
	c.mu.Unlock()
	go c.snapshotLoop(snapCtx, interval)

	return nil
}

// recoverSnapshot restores durable state from the last snapshot. Subprocesses
// did not survive the restart, so only suspended-family workers are restored
// to the registry; everything else is recoverable solely through its
// persisted context. An absent or corrupt snapshot starts empty.
func (c *Coordinator) recoverSnapshot() {
	snap, err := c.store.LoadSnapshot()
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			c.logger.Info("no snapshot found, starting empty")
		} else {
			c.logger.Warn("snapshot unreadable, starting empty", "error", err.Error())
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	restored := 0
	for _, w := range snap.Workers {
		switch w.State {
		case worker.StateSuspended, worker.StateSuspendedIdle:
			c.workers[w.ID] = w
			restored++
			if w.State == worker.StateSuspended {
				c.cleanup.OnSuspended(w.ID)
			} else {
				c.cleanup.OnSuspendedIdle(w.ID)
			}
		}
	}
	for _, wu := range snap.Work {
		u := wu
		c.work[u.ID] = &u
	}

	c.logger.Info("snapshot recovered",
		"workers_restored", restored,
		"workers_dropped", len(snap.Workers)-restored,
		"work_units", len(snap.Work))
}

// snapshotLoop persists a snapshot periodically until ctx is cancelled.
func (c *Coordinator) snapshotLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Snapshot(); err != nil {
				c.logger.Error("periodic snapshot failed", "error", err.Error())
			}
		}
	}
}

// Snapshot persists the current system state. Worker records are deep-copied
// under the lock; marshalling happens after release and must never observe a
// live record mid-transition.
func (c *Coordinator) Snapshot() error {
	c.mu.Lock()
	snap := &store.Snapshot{
		Workers: make([]*worker.Worker, 0, len(c.workers)),
		Work:    make([]store.WorkUnit, 0, len(c.work)),
		PoolConfig: config.PoolConfig{
			MaxPerRole:  c.cfg.Pool.MaxPerRole,
			MaxPoolSize: c.cfg.Pool.MaxPoolSize,
			TTLSeconds:  c.cfg.Pool.TTLSeconds,
		},
		Cleanup: c.cfg.Cleanup,
	}
	for _, w := range c.workers {
		snap.Workers = append(snap.Workers, w.Clone())
	}
	for _, u := range c.work {
		snap.Work = append(snap.Work, *u)
	}
	c.mu.Unlock()

	contexts, err := c.store.ListContexts()
	if err == nil {
		for _, rc := range contexts {
			snap.ContextIDs = append(snap.ContextIDs, rc.WorkerID)
		}
	}
	return c.store.SaveSnapshot(snap)
}

// Stop persists a final snapshot and halts every background component.
// Events arriving after Stop are rejected with ErrShuttingDown.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil
	}
	c.shutdown = true
	cancel := c.snapCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.monitor.Stop()
	c.cleanup.Stop()
	c.pool.Stop()
	c.timers.Stop()

	if err := c.Snapshot(); err != nil {
		return err
	}
	c.logger.Info("coordinator stopped")
	return nil
}

// ApplyConfig hot-swaps the running policy from a freshly validated config.
// Already-armed timers keep their original delays.
func (c *Coordinator) ApplyConfig(cfg *config.Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()

	c.pool.SetConfig(pool.Config{
		MaxPerRole:  cfg.Pool.MaxPerRole,
		MaxPoolSize: cfg.Pool.MaxPoolSize,
		TTL:         cfg.Pool.TTL(),
	})
	c.cleanup.SetConfig(cfg.Cleanup, cfg.Resources)
	c.monitor.SetThresholds(pressure.Thresholds{
		MaxConcurrentWorkers:   cfg.Resources.MaxConcurrentWorkers,
		MaxConcurrentProcesses: cfg.Resources.MaxConcurrentProcesses,
		MemoryWarningMB:        cfg.Resources.MemoryWarningThresholdMB,
		MemoryCriticalMB:       cfg.Resources.MemoryCriticalThresholdMB,
	})
	c.logger.Info("configuration applied")
}

// counts supplies the live worker and subprocess counts to the pressure
// monitor. Pooled workers count toward workers but have no live subprocess.
func (c *Coordinator) counts() (activeWorkers, activeProcesses int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	processes := 0
	for _, w := range c.workers {
		if hasLiveProcess(w.State) {
			processes++
		}
	}
	return len(c.workers) + c.pool.Size(), processes
}

// hasLiveProcess reports whether a state implies a running subprocess.
func hasLiveProcess(s worker.State) bool {
	switch s {
	case worker.StateInitializing, worker.StateIdle, worker.StateWorking,
		worker.StateThinking, worker.StateRequestingPermission,
		worker.StateWaitingForAnswer, worker.StateReviewingPlan:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Event application
// -----------------------------------------------------------------------------

// FireEvent applies one lifecycle event to a worker. Rejections come back as
// *errors.TransitionError; the worker's state is unchanged on any error.
// For events that suspend a worker, the resumable context is durable on disk
// before FireEvent returns.
func (c *Coordinator) FireEvent(workerID string, ev lifecycle.Event) error {
	c.mu.Lock()
	err := c.fireLocked(workerID, ev)
	queued := c.takeQueuedLocked()
	c.mu.Unlock()

	c.flush(queued)
	return err
}

// queueLocked defers a notification until the lock is released.
func (c *Coordinator) queueLocked(e event.Event) {
	c.queued = append(c.queued, e)
}

// takeQueuedLocked drains the pending notifications.
func (c *Coordinator) takeQueuedLocked() []event.Event {
	queued := c.queued
	c.queued = nil
	return queued
}

// flush publishes drained notifications. Must be called without c.mu held.
func (c *Coordinator) flush(queued []event.Event) {
	for _, e := range queued {
		c.bus.Publish(e)
	}
}

// fireLocked is FireEvent with c.mu held. Internal steps that cascade
// (finalize after destroy, pool fallback) re-enter here.
func (c *Coordinator) fireLocked(workerID string, ev lifecycle.Event) error {
	if c.shutdown {
		return errors.ErrShuttingDown
	}

	w, ok := c.workers[workerID]
	if !ok {
		return errors.ErrWorkerNotFound
	}
	if w.State == worker.StateDestroyed {
		return errors.ErrWorkerDestroyed
	}

	ctx := lifecycle.Context{
		WorkerID:        w.ID,
		SessionID:       w.SessionID,
		WorkID:          ev.Payload,
		PoolHasCapacity: c.pool.HasCapacity(w.Role),
	}
	if ev.Kind == lifecycle.EventAssign || ev.Kind == lifecycle.EventRetry {
		ctx.WorkID = firstWorkID(w)
		if ev.Payload != "" {
			ctx.WorkID = ev.Payload
		}
	}

	next, err := c.machine.Transition(w.State, ev, ctx)
	if err != nil {
		c.logger.Debug("event rejected",
			"worker_id", w.ID,
			"state", w.State.String(),
			"event", string(ev.Kind),
			"error", err.Error())
		return err
	}

	// Suspension durability: the context must be on disk before the new
	// state is observable. A failed write rejects the event entirely.
	if next == worker.StateSuspended ||
		(next == worker.StateSuspendedIdle && w.State == worker.StateIdle) {
		if err := c.persistContextLocked(w, suspendReason(ev, next)); err != nil {
			c.logger.Error("context persistence failed, suspension rejected",
				"worker_id", w.ID, "error", err.Error())
			return err
		}
	}

	old := w.State
	w.State = next
	// The driver reports the external conversation identifier alongside the
	// started signal; it survives suspension and pooling from then on.
	if ev.Kind == lifecycle.EventStarted && ev.Payload != "" {
		w.SessionID = ev.Payload
	}
	c.noteOutputLocked(w.ID, ev)
	c.applySideEffectsLocked(w, old, next, ev)

	c.logger.Info("worker transitioned",
		"worker_id", w.ID,
		"old_state", old.String(),
		"new_state", next.String(),
		"event", string(ev.Kind))
	c.queueLocked(event.NewWorkerStateChangedEvent(w.ID, old.String(), next.String()))
	return nil
}

// applySideEffectsLocked runs the entry actions for the new state.
func (c *Coordinator) applySideEffectsLocked(w *worker.Worker, old, next worker.State, ev lifecycle.Event) {
	switch next {
	case worker.StateIdle:
		w.IdleSince = time.Now()
		c.cleanup.OnIdle(w.ID)

	case worker.StateWorking, worker.StateThinking:
		w.IdleSince = time.Time{}
		// Executing states carry the hang timer; every re-entry (each
		// produced-output event lands back in Working) rearms it.
		c.cleanup.OnExecuting(w.ID)
		if old == worker.StateSuspended || old == worker.StateSuspendedIdle {
			c.dropContextLocked(w.ID)
		}

	case worker.StateRequestingPermission, worker.StateWaitingForAnswer,
		worker.StateReviewingPlan, worker.StateInitializing:
		w.IdleSince = time.Time{}
		// Waiting on a human (or on startup) is not a hang.
		c.cleanup.OnActive(w.ID)
		// Leaving the suspended family consumes the persisted context.
		if old == worker.StateSuspended || old == worker.StateSuspendedIdle {
			c.dropContextLocked(w.ID)
		}

	case worker.StateSuspended:
		w.IdleSince = time.Now()
		c.cleanup.OnSuspended(w.ID)

	case worker.StateSuspendedIdle:
		c.cleanup.OnSuspendedIdle(w.ID)

	case worker.StatePooled:
		c.cleanup.OnActive(w.ID)
		delete(c.workers, w.ID)
		if !c.pool.Release(w) {
			// The guard saw capacity but a concurrent release won the race.
			// Destruction is the only remaining option.
			c.logger.Warn("pool release raced to capacity, destroying worker", "worker_id", w.ID)
			w.State = worker.StateDestroyed
			c.removeLocked(w, false)
		}

	case worker.StateCompleted, worker.StateError:
		w.IdleSince = time.Now()
		c.cleanup.OnActive(w.ID)
		c.markWorkDoneLocked(w, next == worker.StateCompleted)
		c.noteTeamProgressLocked(w, next == worker.StateCompleted)

	case worker.StateDestroying:
		c.cleanup.OnActive(w.ID)
		if ev.Kind == lifecycle.EventDiscardRequested {
			c.dropContextLocked(w.ID)
		}
		// Team disband defers finalization to the farewell completion
		// signal; every other path finalizes immediately.
		if !c.awaitingFarewellLocked(w.ID) {
			fin := lifecycle.Event{Kind: lifecycle.EventFinalize}
			if next, err := c.machine.Transition(w.State, fin, lifecycle.Context{WorkerID: w.ID}); err == nil {
				w.State = next
				c.removeLocked(w, false)
			}
		}

	case worker.StateDestroyed:
		c.removeLocked(w, ev.Kind == lifecycle.EventEmergencyDestroy)
	}
}

// removeLocked deletes a destroyed worker from every in-memory map and
// notifies listeners. The persisted context is deliberately left alone here:
// it is removed only on resume or explicit discard, so destruction never
// deletes a worker's recovery path.
func (c *Coordinator) removeLocked(w *worker.Worker, emergency bool) {
	delete(c.workers, w.ID)
	delete(c.tails, w.ID)
	delete(c.pending, w.ID)
	c.cleanup.OnActive(w.ID)
	c.queueLocked(event.NewWorkerDestroyedEvent(w.ID, emergency))
	c.logger.Info("worker destroyed", "worker_id", w.ID, "emergency", emergency)
}

// noteOutputLocked records output and interactive payloads for the worker's
// resumable-context tail.
func (c *Coordinator) noteOutputLocked(id string, ev lifecycle.Event) {
	switch ev.Kind {
	case lifecycle.EventProducedOutput:
		if ev.Payload == "" {
			return
		}
		limit := c.cfg.Persistence.OutputTailLines
		if limit <= 0 {
			limit = 50
		}
		tail := append(c.tails[id], ev.Payload)
		if len(tail) > limit {
			tail = tail[len(tail)-limit:]
		}
		c.tails[id] = tail
	case lifecycle.EventRequestedPermission, lifecycle.EventAskedQuestion, lifecycle.EventProposedPlan:
		c.pending[id] = ev.Payload
	case lifecycle.EventPermissionGranted, lifecycle.EventPermissionDenied,
		lifecycle.EventAnswerReceived, lifecycle.EventPlanApproved, lifecycle.EventPlanRejected:
		delete(c.pending, id)
	}
}

// persistContextLocked writes the resumable context for a suspending worker.
func (c *Coordinator) persistContextLocked(w *worker.Worker, reason string) error {
	rc := &store.ResumableContext{
		WorkerID:           w.ID,
		Role:               string(w.Role),
		SessionID:          w.SessionID,
		WorkDir:            w.WorkDir,
		WorkDescription:    c.workDescriptionLocked(w),
		OutputTail:         append([]string(nil), c.tails[w.ID]...),
		PendingInteraction: c.pending[w.ID],
		TeamID:             w.TeamID,
		IsLeader:           w.IsLeader,
		Reason:             reason,
	}
	return c.store.SaveContext(rc)
}

// dropContextLocked removes a consumed or discarded context. Absence is fine;
// an idle worker cancelled before ever suspending has none.
func (c *Coordinator) dropContextLocked(workerID string) {
	if err := c.store.DeleteContext(workerID); err != nil && !errors.Is(err, errors.ErrContextNotFound) {
		c.logger.Warn("failed to delete resumable context", "worker_id", workerID, "error", err.Error())
	}
}

// suspendReason maps the triggering event to the recorded suspension reason.
func suspendReason(ev lifecycle.Event, next worker.State) string {
	if ev.Reason != "" {
		return ev.Reason
	}
	switch ev.Kind {
	case lifecycle.EventProcessExited:
		return "processTerminated"
	case lifecycle.EventIdleTimeout:
		return "idleTimeout"
	case lifecycle.EventHangTimeout:
		return "processHung"
	case lifecycle.EventSuspend:
		return "userRequested"
	}
	return string(ev.Kind)
}

// firstWorkID returns the worker's first assigned work unit id, if any.
func firstWorkID(w *worker.Worker) string {
	if len(w.WorkIDs) == 0 {
		return ""
	}
	return w.WorkIDs[0]
}

// workDescriptionLocked returns the description of the worker's first work
// unit.
func (c *Coordinator) workDescriptionLocked(w *worker.Worker) string {
	for _, id := range w.WorkIDs {
		if u, ok := c.work[id]; ok && u.Description != "" {
			return u.Description
		}
	}
	return ""
}

// awaitingFarewellLocked reports whether the worker is part of a disband
// waiting on the presentation layer.
func (c *Coordinator) awaitingFarewellLocked(workerID string) bool {
	for _, ids := range c.disbands {
		for _, id := range ids {
			if id == workerID {
				return true
			}
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// Worker returns a deep copy of the worker's record.
func (c *Coordinator) Worker(workerID string) (worker.Worker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.workers[workerID]
	if !ok {
		return worker.Worker{}, errors.ErrWorkerNotFound
	}
	return *w.Clone(), nil
}

// WorkerStatus is the external view of one worker.
type WorkerStatus struct {
	ID     string        `json:"id"`
	Role   string        `json:"role"`
	Status worker.Status `json:"status"`
	TeamID string        `json:"team_id,omitempty"`
}

// Status returns the external status of every registered worker. Pooled
// workers are invisible externally.
func (c *Coordinator) Status() []WorkerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]WorkerStatus, 0, len(c.workers))
	for _, w := range c.workers {
		out = append(out, WorkerStatus{
			ID:     w.ID,
			Role:   string(w.Role),
			Status: worker.ExternalStatus(w.State),
			TeamID: w.TeamID,
		})
	}
	return out
}

// PoolMetrics returns the pool's hit/miss/eviction counters.
func (c *Coordinator) PoolMetrics() pool.Metrics {
	return c.pool.MetricsSnapshot()
}

// PressureTier returns the current pressure tier.
func (c *Coordinator) PressureTier() pressure.Tier {
	return c.monitor.Current()
}
