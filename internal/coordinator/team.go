package coordinator

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Iron-Ham/wrangler/internal/errors"
	"github.com/Iron-Ham/wrangler/internal/event"
	"github.com/Iron-Ham/wrangler/internal/lifecycle"
	"github.com/Iron-Ham/wrangler/internal/store"
	"github.com/Iron-Ham/wrangler/internal/team"
	"github.com/Iron-Ham/wrangler/internal/worker"
)

// CreateTeam forms a team of one lead and subordinateCount developers.
// Members come from the pool when a matching worker is cached and are created
// fresh otherwise; either way every member starts in Initializing and waits
// for its driver's started signal.
func (c *Coordinator) CreateTeam(subordinateCount int) (*team.Team, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return nil, errors.ErrShuttingDown
	}

	lead, hit := c.pool.Acquire(worker.RoleLead, "")
	c.logger.Debug("lead acquired", "worker_id", lead.ID, "pool_hit", hit)

	subs := make([]*worker.Worker, 0, subordinateCount)
	subIDs := make([]string, 0, subordinateCount)
	for i := 0; i < subordinateCount; i++ {
		w, hit := c.pool.Acquire(worker.RoleDeveloper, "")
		c.logger.Debug("subordinate acquired", "worker_id", w.ID, "pool_hit", hit)
		subs = append(subs, w)
		subIDs = append(subIDs, w.ID)
	}

	t := team.New(lead.ID, subIDs)
	lead.TeamID = t.ID
	lead.IsLeader = true
	c.workers[lead.ID] = lead
	for _, w := range subs {
		w.TeamID = t.ID
		c.workers[w.ID] = w
	}
	c.teams[t.ID] = t

	c.logger.Info("team created",
		"team_id", t.ID,
		"leader_id", lead.ID,
		"subordinates", subordinateCount)
	return t, nil
}

// Team returns a team by id.
func (c *Coordinator) Team(teamID string) (*team.Team, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.teams[teamID]
	if !ok {
		return nil, errors.ErrTeamNotFound
	}
	return t, nil
}

// AssignWork creates a unit of work and assigns it to the worker, returning
// the work id. A new assignment unconditionally revives the worker's team:
// any pending team cleanup delay is cancelled before the transition fires.
func (c *Coordinator) AssignWork(workerID, description string) (string, error) {
	c.mu.Lock()

	w, ok := c.workers[workerID]
	if !ok {
		queued := c.takeQueuedLocked()
		c.mu.Unlock()
		c.flush(queued)
		return "", errors.ErrWorkerNotFound
	}

	workID := uuid.NewString()
	err := c.fireLocked(workerID, lifecycle.Event{
		Kind:    lifecycle.EventAssign,
		Payload: workID,
	})
	if err == nil {
		w.WorkIDs = append(w.WorkIDs, workID)
		c.work[workID] = &store.WorkUnit{
			ID:          workID,
			Description: description,
			WorkerID:    workerID,
		}
		if w.TeamID != "" {
			c.cleanup.CancelTeamDelay(w.TeamID)
			if t, ok := c.teams[w.TeamID]; ok {
				t.Phase = team.PhaseWorking
			}
		}
	}

	queued := c.takeQueuedLocked()
	c.mu.Unlock()
	c.flush(queued)

	if err != nil {
		return "", err
	}
	return workID, nil
}

// markWorkDoneLocked marks the worker's assigned work units finished when it
// completed successfully.
func (c *Coordinator) markWorkDoneLocked(w *worker.Worker, success bool) {
	if !success {
		return
	}
	for _, id := range w.WorkIDs {
		if u, ok := c.work[id]; ok {
			u.Done = true
		}
	}
}

// noteTeamProgressLocked records a member finishing and, when every
// subordinate is done, moves the team to its terminal phase and arms the
// cleanup grace period.
func (c *Coordinator) noteTeamProgressLocked(w *worker.Worker, success bool) {
	if w.TeamID == "" {
		return
	}
	t, ok := c.teams[w.TeamID]
	if !ok {
		return
	}

	if !t.MarkDone(w.ID, success) {
		return
	}

	failed := t.AnyFailed()
	if failed {
		t.Phase = team.PhaseFailed
	} else {
		t.Phase = team.PhaseCompleted
	}
	c.cleanup.ScheduleTeamDelay(t.ID, failed)

	c.logger.Info("team finished",
		"team_id", t.ID,
		"phase", t.Phase.String())
}

// TeamDelayElapsed runs when a finished team's grace period expires with no
// new assignment: each member is pooled when there is room and destroyed
// otherwise. Satisfies the cleanup.Actions interface.
func (c *Coordinator) TeamDelayElapsed(teamID string) {
	c.mu.Lock()

	t, ok := c.teams[teamID]
	if !ok || (t.Phase != team.PhaseCompleted && t.Phase != team.PhaseFailed) {
		// The team was revived or disbanded while the timer was in flight.
		queued := c.takeQueuedLocked()
		c.mu.Unlock()
		c.flush(queued)
		return
	}

	for _, id := range t.MemberIDs() {
		w, ok := c.workers[id]
		if !ok {
			continue
		}
		c.poolOrDestroyLocked(w)
	}
	t.Phase = team.PhaseDisbanded
	delete(c.teams, teamID)

	c.logger.Info("team cleanup complete", "team_id", teamID)

	queued := c.takeQueuedLocked()
	c.mu.Unlock()
	c.flush(queued)
}

// poolOrDestroyLocked donates a finished worker to the pool, falling back to
// destruction when the pool rejects it or its state cannot be pooled.
func (c *Coordinator) poolOrDestroyLocked(w *worker.Worker) {
	if err := c.fireLocked(w.ID, lifecycle.Event{Kind: lifecycle.EventPool}); err == nil {
		return
	}
	if err := c.fireLocked(w.ID, lifecycle.Event{Kind: lifecycle.EventDestroy}); err == nil {
		return
	}
	if err := c.fireLocked(w.ID, lifecycle.Event{Kind: lifecycle.EventUserCancelled}); err != nil {
		c.logger.Warn("worker resisted cleanup",
			"worker_id", w.ID,
			"state", w.State.String(),
			"error", err.Error())
	}
}

// DisbandTeam tears a team down in two phases. Members that can be pooled
// are pooled immediately. The rest enter Destroying and wait for the
// presentation layer's farewell: a TeamDisbandRequestedEvent carries a
// completion callback, and finalization is deferred until it is invoked or
// the disband timeout forces the issue.
func (c *Coordinator) DisbandTeam(teamID string) error {
	c.mu.Lock()

	t, ok := c.teams[teamID]
	if !ok {
		queued := c.takeQueuedLocked()
		c.mu.Unlock()
		c.flush(queued)
		return errors.ErrTeamNotFound
	}
	t.Phase = team.PhaseDisbanding
	c.cleanup.CancelTeamDelay(teamID)

	// Mark the whole roster as awaiting farewell before firing, so the
	// Destroying entry action defers finalization.
	c.disbands[teamID] = t.MemberIDs()

	var destroying []string
	for _, id := range t.MemberIDs() {
		w, ok := c.workers[id]
		if !ok {
			continue
		}
		if err := c.fireLocked(id, lifecycle.Event{Kind: lifecycle.EventPool}); err == nil {
			continue
		}
		if err := c.fireLocked(id, lifecycle.Event{Kind: lifecycle.EventUserCancelled}); err == nil {
			destroying = append(destroying, id)
			continue
		}
		c.logger.Warn("member resisted disband",
			"worker_id", id,
			"state", w.State.String())
	}
	c.disbands[teamID] = destroying

	if len(destroying) == 0 {
		c.finishDisbandLocked(teamID)
		queued := c.takeQueuedLocked()
		c.mu.Unlock()
		c.flush(queued)
		return nil
	}

	c.logger.Info("team disband awaiting farewell",
		"team_id", teamID,
		"destroying", len(destroying))

	var once sync.Once
	onComplete := func() {
		once.Do(func() {
			c.completeDisband(teamID)
		})
	}
	c.queueLocked(event.NewTeamDisbandRequestedEvent(teamID, destroying, onComplete))
	c.timers.Schedule("disband:"+teamID, disbandTimeout, func(string) {
		c.logger.Warn("farewell timed out, force-finalizing", "team_id", teamID)
		c.completeDisband(teamID)
	})

	queued := c.takeQueuedLocked()
	c.mu.Unlock()
	c.flush(queued)
	return nil
}

// completeDisband finalizes a disbanding team's workers. Invoked by the
// presentation layer's completion callback or the disband timeout; the
// second arrival finds nothing pending and is a no-op.
func (c *Coordinator) completeDisband(teamID string) {
	c.mu.Lock()
	c.finishDisbandLocked(teamID)
	queued := c.takeQueuedLocked()
	c.mu.Unlock()
	c.flush(queued)
}

func (c *Coordinator) finishDisbandLocked(teamID string) {
	ids, pending := c.disbands[teamID]
	if pending {
		delete(c.disbands, teamID)
	}
	c.timers.Cancel("disband:" + teamID)

	for _, id := range ids {
		if w, ok := c.workers[id]; ok && w.State == worker.StateDestroying {
			if err := c.fireLocked(id, lifecycle.Event{Kind: lifecycle.EventFinalize}); err != nil {
				c.logger.Warn("finalize rejected", "worker_id", id, "error", err.Error())
			}
		}
	}
	if t, ok := c.teams[teamID]; ok {
		t.Phase = team.PhaseDisbanded
		delete(c.teams, teamID)
		c.logger.Info("team disbanded", "team_id", teamID)
	}
}
