// Package worker defines the worker model shared across the coordinator,
// pool, cleanup engine, and persistence store. The coordinator is the only
// component that mutates a Worker; everything else holds ids and queries
// back through the coordinator.
package worker

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies what kind of task a worker performs. Pool reuse is keyed
// by role: a pooled "developer" is never handed out for a "reviewer" slot.
type Role string

// Roles used by the default team composition.
const (
	RoleLead      Role = "lead"
	RoleDeveloper Role = "developer"
	RoleReviewer  Role = "reviewer"
)

// Worker is one externally-executing task performer. The subprocess itself
// is owned by the driver layer; the Worker record tracks identity, lifecycle
// state, and linkage.
type Worker struct {
	// ID uniquely identifies the worker for its whole lifetime, across
	// pooling and reuse.
	ID string `json:"id"`

	// Role is the worker's assignment category.
	Role Role `json:"role"`

	// State is the current lifecycle state. Mutated only by the coordinator.
	State State `json:"state"`

	// TeamID links the worker to its team; empty for unaffiliated workers
	// and for pooled workers (pooling strips linkage).
	TeamID string `json:"team_id,omitempty"`

	// IsLeader marks the team leader.
	IsLeader bool `json:"is_leader,omitempty"`

	// WorkIDs are the units of work currently assigned to this worker.
	WorkIDs []string `json:"work_ids,omitempty"`

	// SessionID is the external conversation identifier used by the
	// subprocess driver. Preserved across suspend/resume so the driver
	// continues the same conversation.
	SessionID string `json:"session_id,omitempty"`

	// WorkDir is the working directory the subprocess runs in.
	WorkDir string `json:"work_dir,omitempty"`

	// CreatedAt is when the worker record was first created.
	CreatedAt time.Time `json:"created_at"`

	// IdleSince is when the worker last entered Idle or Suspended; zero
	// while the worker is active.
	IdleSince time.Time `json:"idle_since,omitzero"`
}

// New creates a worker in the Initializing state.
func New(role Role) *Worker {
	return &Worker{
		ID:        uuid.NewString(),
		Role:      role,
		State:     StateInitializing,
		CreatedAt: time.Now(),
	}
}

// ResetForAssignment clears per-assignment linkage so a pooled worker can be
// handed to a new team. Identity, role, and session history survive.
func (w *Worker) ResetForAssignment(teamID string) {
	w.TeamID = teamID
	w.IsLeader = false
	w.WorkIDs = nil
	w.IdleSince = time.Time{}
	w.State = StateInitializing
}

// Clone returns a deep copy of the record. The WorkIDs slice is cloned too,
// so the copy never shares backing storage with the live record the
// coordinator keeps mutating.
func (w *Worker) Clone() *Worker {
	c := *w
	c.WorkIDs = append([]string(nil), w.WorkIDs...)
	return &c
}

// StripLinkage removes team and work associations when the worker is donated
// to the pool.
func (w *Worker) StripLinkage() {
	w.TeamID = ""
	w.IsLeader = false
	w.WorkIDs = nil
}

// IdleDuration returns how long the worker has been idle, or zero if it is
// not idle.
func (w *Worker) IdleDuration(now time.Time) time.Duration {
	if w.IdleSince.IsZero() {
		return 0
	}
	return now.Sub(w.IdleSince)
}
