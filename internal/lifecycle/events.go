package lifecycle

// EventKind identifies a lifecycle event. Driver events originate from the
// external subprocess driver and the user-interaction layer; control events
// originate inside the coordinator (timers, pool, cleanup).
type EventKind string

// Driver and user-interaction events.
const (
	EventStarted             EventKind = "started"
	EventProducedOutput      EventKind = "produced_output"
	EventThinking            EventKind = "thinking"
	EventRequestedPermission EventKind = "requested_permission"
	EventPermissionGranted   EventKind = "permission_granted"
	EventPermissionDenied    EventKind = "permission_denied"
	EventAskedQuestion       EventKind = "asked_question"
	EventAnswerReceived      EventKind = "answer_received"
	EventProposedPlan        EventKind = "proposed_plan"
	EventPlanApproved        EventKind = "plan_approved"
	EventPlanRejected        EventKind = "plan_rejected"
	EventProcessExited       EventKind = "process_exited"
	EventUserCancelled       EventKind = "user_cancelled"
	EventResumeRequested     EventKind = "user_resume_requested"
	EventDiscardRequested    EventKind = "user_discard_requested"
)

// Control events fired by the coordinator itself.
const (
	// EventAssign gives the worker a new unit of work. Guarded on the
	// context carrying a work id. Always cancels pending cleanup.
	EventAssign EventKind = "assign"
	// EventRetry re-runs a failed worker's task.
	EventRetry EventKind = "retry"
	// EventSuspend suspends a worker on explicit request.
	EventSuspend EventKind = "suspend"
	// EventPool donates the worker to the reuse pool. Guarded on capacity.
	EventPool EventKind = "pool"
	// EventReacquire pulls a pooled worker back out for reuse.
	EventReacquire EventKind = "reacquire"
	// EventEvict removes a pooled worker whose TTL expired or that was
	// selected by LRU eviction.
	EventEvict EventKind = "evict"
	// EventDestroy begins teardown of an active worker.
	EventDestroy EventKind = "destroy"
	// EventFinalize completes teardown after the presentation layer's
	// farewell finishes.
	EventFinalize EventKind = "finalize"
	// EventIdleTimeout fires when a worker sat in Idle past the policy limit.
	EventIdleTimeout EventKind = "idle_timeout"
	// EventSuspendTimeout fires when a Suspended worker aged past the limit.
	EventSuspendTimeout EventKind = "suspend_timeout"
	// EventHangTimeout fires when an executing subprocess produced no output
	// past the hang limit.
	EventHangTimeout EventKind = "hang_timeout"
	// EventSweep is the cleanup sweep acting on the SuspendedIdle funnel.
	EventSweep EventKind = "sweep"
	// EventEmergencyDestroy destroys the worker immediately under critical
	// pressure, bypassing pool return and the farewell phase.
	EventEmergencyDestroy EventKind = "emergency_destroy"
)

// Event is one lifecycle event addressed to a single worker.
type Event struct {
	Kind EventKind

	// ExitCode is the subprocess exit code. Only meaningful for
	// EventProcessExited.
	ExitCode int

	// Reason carries the permission reason, suspension reason, or similar
	// free-form context.
	Reason string

	// Payload carries the question or plan content for interactive events.
	Payload string

	// Answer carries the user's answer for EventAnswerReceived.
	Answer string
}

// Context is the guard context the coordinator builds before asking the
// machine for a transition. It is a read-only snapshot; guards never mutate
// worker records.
type Context struct {
	// WorkerID identifies the worker, for error reporting.
	WorkerID string

	// SessionID is the worker's external conversation identifier.
	SessionID string

	// WorkID is the unit of work being assigned, if any.
	WorkID string

	// PoolHasCapacity reports whether the pool would accept this worker.
	PoolHasCapacity bool
}
