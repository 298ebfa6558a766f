// Package sched provides a cancellable per-id timer scheduler. It enforces
// the core timer discipline: at most one outstanding timer per id,
// scheduling replaces any existing timer for that id, and cancellation is
// immediate. A timer that fires after its guard ended is expected to re-check
// state in its action and become a no-op; the scheduler itself only
// guarantees that a cancelled entry never runs its action.
package sched

import (
	"sync"
	"time"

	"github.com/Iron-Ham/wrangler/internal/logging"
)

// Action is the function a timer runs when it fires. It is invoked on the
// timer's own goroutine; actions that mutate worker state must re-enter the
// coordinator's serialized path.
type Action func(id string)

// entry is one pending timer.
type entry struct {
	timer     *time.Timer
	deadline  time.Time
	delay     time.Duration
	action    Action
	cancelled bool
}

// Scheduler owns all pending per-id timers.
// It is safe for concurrent use.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *logging.Logger
	stopped bool
}

// New creates a Scheduler. A nil logger disables logging.
func New(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Schedule arms a timer for id, replacing any pending timer for the same id.
// After delay elapses, action runs once unless the entry is cancelled or
// rescheduled first. Scheduling on a stopped scheduler is a no-op.
func (s *Scheduler) Schedule(id string, delay time.Duration, action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if prev, ok := s.entries[id]; ok {
		prev.cancelled = true
		prev.timer.Stop()
	}

	e := &entry{
		deadline: time.Now().Add(delay),
		delay:    delay,
		action:   action,
	}
	e.timer = time.AfterFunc(delay, func() {
		s.fire(id, e)
	})
	s.entries[id] = e

	s.logger.Debug("timer scheduled", "id", id, "delay", delay.String())
}

// fire runs when a timer elapses. The entry may have been cancelled or
// replaced between the timer firing and the lock being acquired; both cases
// are detected and ignored.
func (s *Scheduler) fire(id string, e *entry) {
	s.mu.Lock()
	if e.cancelled || s.entries[id] != e {
		s.mu.Unlock()
		return
	}
	delete(s.entries, id)
	action := e.action
	s.mu.Unlock()

	// Run outside the lock so actions can schedule or cancel freely.
	action(id)
}

// Cancel removes the pending timer for id, if any.
// Returns true if a timer was pending.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.cancelled = true
	e.timer.Stop()
	delete(s.entries, id)

	s.logger.Debug("timer cancelled", "id", id)
	return true
}

// Pending reports whether a timer is outstanding for id.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// PendingCount returns the number of outstanding timers.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ScaleAll rescales every pending timer's remaining delay by factor,
// preserving its action. Used when pressure escalation halves all pending
// cleanup delays.
func (s *Scheduler) ScaleAll(factor float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	now := time.Now()
	for id, prev := range s.entries {
		id := id
		remaining := prev.deadline.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		scaled := time.Duration(float64(remaining) * factor)

		prev.cancelled = true
		prev.timer.Stop()

		e := &entry{
			deadline: now.Add(scaled),
			delay:    scaled,
			action:   prev.action,
		}
		e.timer = time.AfterFunc(scaled, func() {
			s.fire(id, e)
		})
		s.entries[id] = e
	}

	s.logger.Debug("rescaled pending timers", "factor", factor, "count", len(s.entries))
}

// Stop cancels every pending timer and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, e := range s.entries {
		e.cancelled = true
		e.timer.Stop()
		delete(s.entries, id)
	}
}
