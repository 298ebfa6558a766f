// Package team tracks teams: one leader worker over zero or more
// subordinate workers with correlated lifecycle. The package is pure
// bookkeeping; the coordinator owns the worker records and drives every
// transition.
package team

import (
	"time"

	"github.com/google/uuid"
)

// Phase represents the lifecycle phase of a team.
type Phase string

const (
	// PhaseForming indicates the team's workers are still initializing.
	PhaseForming Phase = "forming"

	// PhaseWorking indicates at least one member is actively executing.
	PhaseWorking Phase = "working"

	// PhaseCompleted indicates every subordinate finished successfully.
	PhaseCompleted Phase = "completed"

	// PhaseFailed indicates at least one subordinate failed.
	PhaseFailed Phase = "failed"

	// PhaseDisbanding indicates disband has begun and the presentation
	// layer's farewell is pending.
	PhaseDisbanding Phase = "disbanding"

	// PhaseDisbanded indicates every member has been pooled or destroyed.
	PhaseDisbanded Phase = "disbanded"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Team is one leader with its subordinates. Not safe for concurrent use on
// its own; access is serialized by the coordinator.
type Team struct {
	// ID uniquely identifies the team.
	ID string

	// LeaderID is the worker acting as team leader.
	LeaderID string

	// SubordinateIDs are the member workers, excluding the leader.
	SubordinateIDs []string

	// Phase is the team's current lifecycle phase.
	Phase Phase

	// CreatedAt is when the team was formed.
	CreatedAt time.Time

	// done records which subordinates have finished, and whether any failed.
	done      map[string]bool
	anyFailed bool
}

// New creates a team in the Forming phase.
func New(leaderID string, subordinateIDs []string) *Team {
	return &Team{
		ID:             uuid.NewString(),
		LeaderID:       leaderID,
		SubordinateIDs: subordinateIDs,
		Phase:          PhaseForming,
		CreatedAt:      time.Now(),
		done:           make(map[string]bool),
	}
}

// MemberIDs returns the leader followed by every subordinate.
func (t *Team) MemberIDs() []string {
	ids := make([]string, 0, len(t.SubordinateIDs)+1)
	ids = append(ids, t.LeaderID)
	ids = append(ids, t.SubordinateIDs...)
	return ids
}

// Contains reports whether workerID is a member of the team.
func (t *Team) Contains(workerID string) bool {
	if workerID == t.LeaderID {
		return true
	}
	for _, id := range t.SubordinateIDs {
		if id == workerID {
			return true
		}
	}
	return false
}

// MarkDone records a member finishing. Only subordinates count toward
// completion, but a leader failure still marks the team failed. Marking an
// unknown worker is ignored. Returns true when every subordinate is now done.
func (t *Team) MarkDone(workerID string, success bool) bool {
	if !t.Contains(workerID) {
		return t.AllDone()
	}
	if !success {
		t.anyFailed = true
	}
	if workerID != t.LeaderID {
		t.done[workerID] = true
	}
	return t.AllDone()
}

// AllDone reports whether every subordinate has finished.
func (t *Team) AllDone() bool {
	return len(t.done) == len(t.SubordinateIDs)
}

// AnyFailed reports whether any subordinate finished unsuccessfully.
func (t *Team) AnyFailed() bool {
	return t.anyFailed
}
