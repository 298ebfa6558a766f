package coordinator

import (
	"github.com/Iron-Ham/wrangler/internal/errors"
	"github.com/Iron-Ham/wrangler/internal/lifecycle"
	"github.com/Iron-Ham/wrangler/internal/worker"
)

// Suspend suspends a worker on explicit request. Its resumable context is
// durable on disk before Suspend returns.
func (c *Coordinator) Suspend(workerID, reason string) error {
	return c.FireEvent(workerID, lifecycle.Event{
		Kind:   lifecycle.EventSuspend,
		Reason: reason,
	})
}

// Resume continues a suspended worker's conversation. A worker still in the
// registry transitions back to Working and its context is consumed. A worker
// known only through a persisted context (after a restart) is rebuilt from
// that context instead and re-enters through Initializing, waiting for its
// driver's started signal.
func (c *Coordinator) Resume(workerID string) error {
	c.mu.Lock()

	if _, ok := c.workers[workerID]; ok {
		err := c.fireLocked(workerID, lifecycle.Event{Kind: lifecycle.EventResumeRequested})
		queued := c.takeQueuedLocked()
		c.mu.Unlock()
		c.flush(queued)
		return err
	}

	if c.shutdown {
		c.mu.Unlock()
		return errors.ErrShuttingDown
	}

	rc, err := c.store.LoadContext(workerID)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	w := &worker.Worker{
		ID:        rc.WorkerID,
		Role:      worker.Role(rc.Role),
		State:     worker.StateInitializing,
		SessionID: rc.SessionID,
		WorkDir:   rc.WorkDir,
		TeamID:    rc.TeamID,
		IsLeader:  rc.IsLeader,
		CreatedAt: rc.SuspendedAt,
	}
	c.workers[w.ID] = w
	c.tails[w.ID] = append([]string(nil), rc.OutputTail...)
	if rc.PendingInteraction != "" {
		c.pending[w.ID] = rc.PendingInteraction
	}
	c.dropContextLocked(w.ID)

	c.logger.Info("worker rebuilt from resumable context",
		"worker_id", w.ID,
		"session_id", w.SessionID)

	queued := c.takeQueuedLocked()
	c.mu.Unlock()
	c.flush(queued)
	return nil
}

// Discard permanently abandons a suspended worker's recovery path. A
// registered worker is destroyed through the machine; one known only through
// its persisted context simply loses the context.
func (c *Coordinator) Discard(workerID string) error {
	c.mu.Lock()

	if _, ok := c.workers[workerID]; ok {
		err := c.fireLocked(workerID, lifecycle.Event{Kind: lifecycle.EventDiscardRequested})
		queued := c.takeQueuedLocked()
		c.mu.Unlock()
		c.flush(queued)
		return err
	}
	c.mu.Unlock()

	return c.store.DeleteContext(workerID)
}
