// Package errors provides centralized error definitions and error handling
// utilities for Wrangler. It defines domain-specific errors, semantic error
// types, and classification helpers used across the lifecycle core.
//
// The taxonomy mirrors how failures propagate:
//   - Protocol violations (an event with no matching transition) surface as
//     a *TransitionError wrapping ErrNoTransition or ErrGuardFailed. They are
//     returned to the caller and never corrupt current state.
//   - Resource exhaustion (pool full, worker caps) is a normal return value
//     on the pool API, not an error.
//   - Persistence failures are absorbed: a corrupt snapshot or context is
//     treated as absent and logged.
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience so callers can
// import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Lifecycle sentinel errors.
var (
	// ErrNoTransition indicates an event has no registered edge from the
	// worker's current state.
	ErrNoTransition = New("no transition registered for event in current state")
	// ErrGuardFailed indicates a registered edge exists but its guard
	// rejected the transition.
	ErrGuardFailed = New("transition guard rejected event")
	// ErrWorkerNotFound indicates the worker id is not in the active registry.
	ErrWorkerNotFound = New("worker not found")
	// ErrWorkerDestroyed indicates the worker has reached its terminal state.
	ErrWorkerDestroyed = New("worker is destroyed")
	// ErrTeamNotFound indicates the team id is unknown.
	ErrTeamNotFound = New("team not found")
	// ErrNotLeader indicates a team operation was addressed to a non-leader.
	ErrNotLeader = New("worker is not a team leader")
)

// Persistence sentinel errors.
var (
	// ErrNotFound indicates a persisted record could not be found.
	ErrNotFound = New("record not found")
	// ErrCorrupted indicates persisted data failed to decode. Treated as
	// absence at startup, never fatal.
	ErrCorrupted = New("persisted data corrupted")
	// ErrContextNotFound indicates no resumable context exists for the id.
	ErrContextNotFound = New("resumable context not found")
)

// Coordinator sentinel errors.
var (
	// ErrShuttingDown indicates the coordinator is draining and rejects new work.
	ErrShuttingDown = New("coordinator is shutting down")
)

// -----------------------------------------------------------------------------
// TransitionError
// -----------------------------------------------------------------------------

// TransitionError is the explicit rejection returned when an event cannot be
// applied to a worker's current state. It carries enough context to log and
// report without consulting the transition table again.
type TransitionError struct {
	WorkerID string // worker the event was addressed to
	State    string // state the worker was in
	Event    string // event that was rejected
	Err      error  // ErrNoTransition or ErrGuardFailed
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q rejected in state %q for worker %s: %v",
		e.Event, e.State, e.WorkerID, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *TransitionError) Unwrap() error { return e.Err }

// NewTransitionError creates a TransitionError.
func NewTransitionError(workerID, state, event string, err error) *TransitionError {
	return &TransitionError{WorkerID: workerID, State: state, Event: event, Err: err}
}

// IsRejection reports whether err is a protocol-violation rejection
// (unknown edge or failed guard) rather than an internal failure.
func IsRejection(err error) bool {
	return Is(err, ErrNoTransition) || Is(err, ErrGuardFailed)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError indicates a resource could not be found.
type NotFoundError struct {
	Resource string // resource type, e.g. "worker", "team", "context"
	ID       string // resource identifier
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// Is allows matching against the ErrNotFound sentinel.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError indicates invalid input or configuration.
type ValidationError struct {
	Field   string // field that failed validation
	Message string // why it failed
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
