// Package lifecycle implements the worker lifecycle state machine as a pure
// transition function. The machine holds no worker records and performs no
// side effects: the coordinator reads a worker's current state, asks the
// machine for the next one, and applies it. Any event without a registered
// edge, or whose guard fails, returns an explicit rejection so protocol
// violations are visible to the caller and never corrupt state.
package lifecycle

import (
	"github.com/Iron-Ham/wrangler/internal/errors"
	"github.com/Iron-Ham/wrangler/internal/worker"
)

// guard validates a transition before it is taken. Returning an error
// rejects the event with ErrGuardFailed.
type guard func(ev Event, ctx Context) error

// edge is one registered (state, event) transition. Exactly one of target
// and resolve is set; resolve computes the destination from the event, for
// edges like processExited whose destination depends on the exit code.
type edge struct {
	target  worker.State
	resolve func(ev Event, ctx Context) worker.State
	guard   guard
}

// Machine is the transition table. It is immutable after construction and
// safe for concurrent use.
type Machine struct {
	edges map[worker.State]map[EventKind]edge
}

// guardHasWork requires the context to carry a unit of work.
func guardHasWork(ev Event, ctx Context) error {
	if ctx.WorkID == "" {
		return errors.NewValidationError("work_id", "assignment requires a unit of work")
	}
	return nil
}

// guardPoolCapacity requires the pool to have room for this worker.
func guardPoolCapacity(ev Event, ctx Context) error {
	if !ctx.PoolHasCapacity {
		return errors.NewValidationError("pool", "pool is at capacity")
	}
	return nil
}

// resolveExit maps a process exit to Completed or Error based on exit code.
// Used only from the active Working/Thinking states; interactive waits have
// their own fixed edge to Suspended.
func resolveExit(ev Event, ctx Context) worker.State {
	if ev.ExitCode == 0 {
		return worker.StateCompleted
	}
	return worker.StateError
}

// NewMachine builds the full transition table.
func NewMachine() *Machine {
	m := &Machine{edges: make(map[worker.State]map[EventKind]edge)}

	// Initializing: per-assignment setup. The driver reports started when
	// the subprocess is ready for input.
	m.add(worker.StateInitializing, EventStarted, edge{target: worker.StateIdle})
	m.add(worker.StateInitializing, EventProcessExited, edge{resolve: func(ev Event, ctx Context) worker.State {
		// A subprocess dying during setup is a failure; a clean exit is an
		// expected termination and stays resumable.
		if ev.ExitCode == 0 {
			return worker.StateSuspended
		}
		return worker.StateError
	}})
	m.add(worker.StateInitializing, EventUserCancelled, edge{target: worker.StateDestroying})

	// Idle: ready, subprocess alive, no active work.
	m.add(worker.StateIdle, EventAssign, edge{target: worker.StateWorking, guard: guardHasWork})
	m.add(worker.StateIdle, EventProducedOutput, edge{target: worker.StateWorking})
	m.add(worker.StateIdle, EventIdleTimeout, edge{target: worker.StateSuspendedIdle})
	m.add(worker.StateIdle, EventProcessExited, edge{target: worker.StateSuspended})
	m.add(worker.StateIdle, EventSuspend, edge{target: worker.StateSuspended})
	m.add(worker.StateIdle, EventPool, edge{target: worker.StatePooled, guard: guardPoolCapacity})
	m.add(worker.StateIdle, EventUserCancelled, edge{target: worker.StateDestroying})
	m.add(worker.StateIdle, EventEmergencyDestroy, edge{target: worker.StateDestroyed})

	// Working and Thinking share the active-execution edges.
	for _, s := range []worker.State{worker.StateWorking, worker.StateThinking} {
		m.add(s, EventProducedOutput, edge{target: worker.StateWorking})
		m.add(s, EventThinking, edge{target: worker.StateThinking})
		m.add(s, EventRequestedPermission, edge{target: worker.StateRequestingPermission})
		m.add(s, EventAskedQuestion, edge{target: worker.StateWaitingForAnswer})
		m.add(s, EventProposedPlan, edge{target: worker.StateReviewingPlan})
		m.add(s, EventProcessExited, edge{resolve: resolveExit})
		m.add(s, EventSuspend, edge{target: worker.StateSuspended})
		// A hung subprocess suspends rather than errors: the persisted
		// context keeps the conversation resumable after the driver
		// replaces the process.
		m.add(s, EventHangTimeout, edge{target: worker.StateSuspended})
		m.add(s, EventUserCancelled, edge{target: worker.StateDestroying})
	}

	// Interactive waits: the subprocess terminating itself while waiting on
	// a human is expected, not a failure. Exit code is irrelevant here.
	m.add(worker.StateRequestingPermission, EventPermissionGranted, edge{target: worker.StateWorking})
	m.add(worker.StateRequestingPermission, EventPermissionDenied, edge{target: worker.StateWorking})
	m.add(worker.StateWaitingForAnswer, EventAnswerReceived, edge{target: worker.StateWorking})
	m.add(worker.StateReviewingPlan, EventPlanApproved, edge{target: worker.StateWorking})
	m.add(worker.StateReviewingPlan, EventPlanRejected, edge{target: worker.StateWorking})
	for _, s := range []worker.State{
		worker.StateRequestingPermission,
		worker.StateWaitingForAnswer,
		worker.StateReviewingPlan,
	} {
		m.add(s, EventProcessExited, edge{target: worker.StateSuspended})
		m.add(s, EventSuspend, edge{target: worker.StateSuspended})
		m.add(s, EventUserCancelled, edge{target: worker.StateDestroying})
	}

	// Suspended: subprocess gone, resumable context persisted.
	m.add(worker.StateSuspended, EventResumeRequested, edge{target: worker.StateWorking})
	m.add(worker.StateSuspended, EventDiscardRequested, edge{target: worker.StateDestroying})
	m.add(worker.StateSuspended, EventSuspendTimeout, edge{target: worker.StateSuspendedIdle})
	m.add(worker.StateSuspended, EventUserCancelled, edge{target: worker.StateDestroying})
	m.add(worker.StateSuspended, EventEmergencyDestroy, edge{target: worker.StateDestroyed})

	// SuspendedIdle: the single funnel for cleanup sweeps. Still resumable
	// until swept or discarded.
	m.add(worker.StateSuspendedIdle, EventResumeRequested, edge{target: worker.StateWorking})
	m.add(worker.StateSuspendedIdle, EventDiscardRequested, edge{target: worker.StateDestroying})
	m.add(worker.StateSuspendedIdle, EventSweep, edge{target: worker.StateDestroying})
	m.add(worker.StateSuspendedIdle, EventUserCancelled, edge{target: worker.StateDestroying})
	m.add(worker.StateSuspendedIdle, EventEmergencyDestroy, edge{target: worker.StateDestroyed})

	// Completed and Error are reusable: reassign, pool, or destroy at the
	// coordinator's discretion, informed by cleanup policy.
	for _, s := range []worker.State{worker.StateCompleted, worker.StateError} {
		m.add(s, EventAssign, edge{target: worker.StateWorking, guard: guardHasWork})
		m.add(s, EventPool, edge{target: worker.StatePooled, guard: guardPoolCapacity})
		m.add(s, EventDestroy, edge{target: worker.StateDestroying})
		m.add(s, EventUserCancelled, edge{target: worker.StateDestroying})
		m.add(s, EventEmergencyDestroy, edge{target: worker.StateDestroyed})
	}
	m.add(worker.StateError, EventRetry, edge{target: worker.StateWorking})

	// Pooled: reacquire restarts per-assignment setup. Eviction skips the
	// farewell phase; pooled workers are not presented.
	m.add(worker.StatePooled, EventReacquire, edge{target: worker.StateInitializing})
	m.add(worker.StatePooled, EventEvict, edge{target: worker.StateDestroyed})
	m.add(worker.StatePooled, EventEmergencyDestroy, edge{target: worker.StateDestroyed})

	// Destroying: waiting on the presentation layer's completion signal.
	m.add(worker.StateDestroying, EventFinalize, edge{target: worker.StateDestroyed})
	m.add(worker.StateDestroying, EventEmergencyDestroy, edge{target: worker.StateDestroyed})

	// Destroyed is terminal: no edges.

	return m
}

// add registers an edge. Panics on duplicate registration; the table is
// built once at startup and a duplicate is a programming error.
func (m *Machine) add(from worker.State, kind EventKind, e edge) {
	if m.edges[from] == nil {
		m.edges[from] = make(map[EventKind]edge)
	}
	if _, dup := m.edges[from][kind]; dup {
		panic("lifecycle: duplicate edge " + from.String() + "/" + string(kind))
	}
	m.edges[from][kind] = e
}

// Transition computes the next state for (state, event, ctx).
// It returns a *errors.TransitionError wrapping ErrNoTransition when no edge
// is registered, or ErrGuardFailed when the edge's guard rejects the event.
// The input state is returned unchanged alongside any rejection.
func (m *Machine) Transition(state worker.State, ev Event, ctx Context) (worker.State, error) {
	e, ok := m.edges[state][ev.Kind]
	if !ok {
		return state, errors.NewTransitionError(ctx.WorkerID, state.String(), string(ev.Kind), errors.ErrNoTransition)
	}
	if e.guard != nil {
		if err := e.guard(ev, ctx); err != nil {
			return state, errors.NewTransitionError(ctx.WorkerID, state.String(), string(ev.Kind),
				errors.Join(errors.ErrGuardFailed, err))
		}
	}
	if e.resolve != nil {
		return e.resolve(ev, ctx), nil
	}
	return e.target, nil
}

// CanFire reports whether an edge is registered for (state, kind), ignoring
// guards. Used by callers that want to probe without building a context.
func (m *Machine) CanFire(state worker.State, kind EventKind) bool {
	_, ok := m.edges[state][kind]
	return ok
}

// EventsFrom returns the event kinds registered for a state. Order is not
// specified. Useful for diagnostics and table tests.
func (m *Machine) EventsFrom(state worker.State) []EventKind {
	kinds := make([]EventKind, 0, len(m.edges[state]))
	for k := range m.edges[state] {
		kinds = append(kinds, k)
	}
	return kinds
}
