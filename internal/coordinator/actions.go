package coordinator

import (
	"github.com/Iron-Ham/wrangler/internal/cleanup"
	"github.com/Iron-Ham/wrangler/internal/lifecycle"
	"github.com/Iron-Ham/wrangler/internal/worker"
)

// The coordinator satisfies cleanup.Actions: every policy decision the
// cleanup engine makes re-enters here, is re-validated against current
// state, and becomes a no-op when stale.

// WorkerTimedOut applies a fired cleanup timer. The worker may have left the
// guarded state between the firing and the lock; the machine rejects the
// stale event and nothing changes.
func (c *Coordinator) WorkerTimedOut(workerID string, kind cleanup.TimeoutKind) {
	var ev lifecycle.Event
	switch kind {
	case cleanup.TimeoutIdle:
		ev = lifecycle.Event{Kind: lifecycle.EventIdleTimeout}
	case cleanup.TimeoutSuspended:
		ev = lifecycle.Event{Kind: lifecycle.EventSuspendTimeout}
	case cleanup.TimeoutSweep:
		ev = lifecycle.Event{Kind: lifecycle.EventSweep}
	case cleanup.TimeoutHang:
		ev = lifecycle.Event{Kind: lifecycle.EventHangTimeout}
	default:
		return
	}

	if err := c.FireEvent(workerID, ev); err != nil {
		c.logger.Debug("cleanup timer was stale",
			"worker_id", workerID,
			"kind", string(kind),
			"error", err.Error())
	}
}

// EvictOldestPooled destroys the n globally-oldest pooled workers. High
// pressure trades cache warmth for headroom; pooled workers are never
// presented, so eviction needs no farewell.
func (c *Coordinator) EvictOldestPooled(n int) {
	evicted := c.pool.EvictOldest(n)

	c.mu.Lock()
	for _, w := range evicted {
		next, err := c.machine.Transition(w.State, lifecycle.Event{Kind: lifecycle.EventEvict},
			lifecycle.Context{WorkerID: w.ID})
		if err != nil {
			c.logger.Warn("evicted worker in unexpected state",
				"worker_id", w.ID, "state", w.State.String())
			continue
		}
		w.State = next
		c.removeLocked(w, false)
	}
	queued := c.takeQueuedLocked()
	c.mu.Unlock()
	c.flush(queued)
}

// onPoolExpired handles a pooled worker's TTL firing. The pool has already
// dropped the entry; the coordinator records the destruction.
func (c *Coordinator) onPoolExpired(w *worker.Worker) {
	c.mu.Lock()
	next, err := c.machine.Transition(w.State, lifecycle.Event{Kind: lifecycle.EventEvict},
		lifecycle.Context{WorkerID: w.ID})
	if err == nil {
		w.State = next
		c.removeLocked(w, false)
	}
	queued := c.takeQueuedLocked()
	c.mu.Unlock()
	c.flush(queued)
}

// EmergencyCleanup destroys every pooled worker and every registered worker
// in a reclaimable state, bypassing pool donation and the farewell phase.
// Actively executing workers are spared; killing in-flight work under memory
// pressure loses more than it frees. Suspended workers keep their persisted
// contexts, so nothing unrecoverable is lost.
func (c *Coordinator) EmergencyCleanup() {
	c.mu.Lock()

	drained := c.pool.DrainAll()
	for _, w := range drained {
		w.State = worker.StateDestroyed
		c.removeLocked(w, true)
	}

	var reclaim []string
	for id, w := range c.workers {
		if c.machine.CanFire(w.State, lifecycle.EventEmergencyDestroy) {
			reclaim = append(reclaim, id)
		}
	}
	for _, id := range reclaim {
		if err := c.fireLocked(id, lifecycle.Event{Kind: lifecycle.EventEmergencyDestroy}); err != nil {
			c.logger.Warn("emergency destroy rejected", "worker_id", id, "error", err.Error())
		}
	}

	c.logger.Warn("emergency cleanup complete",
		"pooled_destroyed", len(drained),
		"registered_destroyed", len(reclaim))

	queued := c.takeQueuedLocked()
	c.mu.Unlock()
	c.flush(queued)
}
