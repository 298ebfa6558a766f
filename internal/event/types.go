// Package event defines the event bus and the notification types flowing
// out of the lifecycle core. Outbound notifications are fire-and-forget: the
// core never consumes a return value from the presentation layer, with the
// single exception of the disband completion callback, which the
// presentation layer invokes when its farewell finishes.
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "worker.state_changed").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Worker Lifecycle Notifications
// -----------------------------------------------------------------------------

// WorkerStateChangedEvent is emitted after every applied transition.
type WorkerStateChangedEvent struct {
	baseEvent
	WorkerID string // worker whose state changed
	OldState string // previous lifecycle state
	NewState string // new lifecycle state
}

// NewWorkerStateChangedEvent creates a WorkerStateChangedEvent.
func NewWorkerStateChangedEvent(workerID, oldState, newState string) WorkerStateChangedEvent {
	return WorkerStateChangedEvent{
		baseEvent: newBaseEvent("worker.state_changed"),
		WorkerID:  workerID,
		OldState:  oldState,
		NewState:  newState,
	}
}

// WorkerDestroyedEvent is emitted when a worker is finalized and removed
// from every internal map. Emergency distinguishes critical-pressure
// cleanup from ordinary disband in logs and notifications.
type WorkerDestroyedEvent struct {
	baseEvent
	WorkerID  string // worker that was destroyed
	Emergency bool   // true when destroyed by critical-pressure cleanup
}

// NewWorkerDestroyedEvent creates a WorkerDestroyedEvent.
func NewWorkerDestroyedEvent(workerID string, emergency bool) WorkerDestroyedEvent {
	return WorkerDestroyedEvent{
		baseEvent: newBaseEvent("worker.destroyed"),
		WorkerID:  workerID,
		Emergency: emergency,
	}
}

// -----------------------------------------------------------------------------
// Team Notifications
// -----------------------------------------------------------------------------

// TeamDisbandRequestedEvent asks the presentation layer to run its farewell
// for the listed workers. The presentation layer must invoke OnComplete when
// finished; the coordinator defers finalization until then. A presentation
// layer that never answers is handled by the coordinator's disband timeout.
type TeamDisbandRequestedEvent struct {
	baseEvent
	TeamID     string   // team being disbanded
	WorkerIDs  []string // workers entering Destroying
	OnComplete func()   // completion signal, safe to call once from any goroutine
}

// NewTeamDisbandRequestedEvent creates a TeamDisbandRequestedEvent.
func NewTeamDisbandRequestedEvent(teamID string, workerIDs []string, onComplete func()) TeamDisbandRequestedEvent {
	return TeamDisbandRequestedEvent{
		baseEvent:  newBaseEvent("team.disband_requested"),
		TeamID:     teamID,
		WorkerIDs:  workerIDs,
		OnComplete: onComplete,
	}
}

// -----------------------------------------------------------------------------
// Resume Notifications
// -----------------------------------------------------------------------------

// ContextSummary describes one persisted resumable context for display.
type ContextSummary struct {
	WorkerID    string    // suspended worker id
	Role        string    // worker role
	SessionID   string    // external conversation identifier
	Reason      string    // why the worker was suspended
	SuspendedAt time.Time // when the context was written
	Description string    // unit-of-work description
}

// ResumeCandidatesEvent is emitted at startup when persisted resumable
// contexts are discovered. The core never auto-resumes; candidates are
// surfaced for an explicit user decision.
type ResumeCandidatesEvent struct {
	baseEvent
	Candidates []ContextSummary
}

// NewResumeCandidatesEvent creates a ResumeCandidatesEvent.
func NewResumeCandidatesEvent(candidates []ContextSummary) ResumeCandidatesEvent {
	return ResumeCandidatesEvent{
		baseEvent:  newBaseEvent("resume.candidates_available"),
		Candidates: candidates,
	}
}

// -----------------------------------------------------------------------------
// Pressure Notifications
// -----------------------------------------------------------------------------

// PressureChangedEvent is emitted when the resource monitor classifies a new
// pressure tier. The cleanup engine reacts through the coordinator's
// serialized entry point, never directly.
type PressureChangedEvent struct {
	baseEvent
	OldTier string // previous tier name
	NewTier string // new tier name
	Reason  string // which threshold tripped
}

// NewPressureChangedEvent creates a PressureChangedEvent.
func NewPressureChangedEvent(oldTier, newTier, reason string) PressureChangedEvent {
	return PressureChangedEvent{
		baseEvent: newBaseEvent("pressure.changed"),
		OldTier:   oldTier,
		NewTier:   newTier,
		Reason:    reason,
	}
}
