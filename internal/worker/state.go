package worker

// State represents the lifecycle state of a worker.
// A worker is in exactly one state at any instant; all transitions go
// through the coordinator and the lifecycle machine.
type State int

const (
	// StateInitializing indicates the worker is performing per-assignment setup.
	// This is the initial state for fresh and reacquired workers alike.
	StateInitializing State = iota

	// StateIdle indicates the worker is ready but has no active work.
	StateIdle

	// StateWorking indicates the worker's subprocess is executing its task.
	StateWorking

	// StateThinking indicates the subprocess is reasoning without producing output.
	StateThinking

	// StateRequestingPermission indicates the subprocess asked for permission
	// and is waiting on a grant or denial.
	StateRequestingPermission

	// StateWaitingForAnswer indicates the subprocess asked the user a question.
	StateWaitingForAnswer

	// StateReviewingPlan indicates a proposed plan is awaiting approval.
	StateReviewingPlan

	// StateSuspended indicates the subprocess has terminated but the worker's
	// conversation is resumable via its persisted context.
	StateSuspended

	// StateSuspendedIdle indicates a suspended or idle worker has aged past
	// its timeout and is eligible for cleanup sweeps.
	StateSuspendedIdle

	// StateCompleted indicates the task finished successfully. Not terminal:
	// the worker may be reassigned, pooled, or destroyed.
	StateCompleted

	// StateError indicates the subprocess failed. Not terminal: a retry
	// transition back to Working exists.
	StateError

	// StatePooled indicates the worker is parked in the reuse pool.
	StatePooled

	// StateDestroying indicates teardown has begun; the presentation layer
	// is given a chance to run its farewell before finalization.
	StateDestroying

	// StateDestroyed is the terminal state. The worker no longer exists in
	// any registry, pool, or persisted set.
	StateDestroyed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	case StateThinking:
		return "thinking"
	case StateRequestingPermission:
		return "requesting_permission"
	case StateWaitingForAnswer:
		return "waiting_for_answer"
	case StateReviewingPlan:
		return "reviewing_plan"
	case StateSuspended:
		return "suspended"
	case StateSuspendedIdle:
		return "suspended_idle"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	case StatePooled:
		return "pooled"
	case StateDestroying:
		return "destroying"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is terminal.
// Only Destroyed is terminal; Completed and Error remain reusable.
func (s State) IsTerminal() bool {
	return s == StateDestroyed
}

// IsInteractiveWait reports whether the worker is blocked on a human.
// A subprocess exiting from any of these states is expected behavior,
// not a failure, and lands in Suspended.
func (s State) IsInteractiveWait() bool {
	switch s {
	case StateRequestingPermission, StateWaitingForAnswer, StateReviewingPlan:
		return true
	default:
		return false
	}
}

// AllStates returns every defined lifecycle state in declaration order.
// Used by the external status view and by transition-table tests.
func AllStates() []State {
	return []State{
		StateInitializing,
		StateIdle,
		StateWorking,
		StateThinking,
		StateRequestingPermission,
		StateWaitingForAnswer,
		StateReviewingPlan,
		StateSuspended,
		StateSuspendedIdle,
		StateCompleted,
		StateError,
		StatePooled,
		StateDestroying,
		StateDestroyed,
	}
}
