package worker

// Status is the coarse externally-visible view of a worker, kept as a
// separate translation layer so the internal State enum can evolve without
// breaking external consumers.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusReady     Status = "ready"
	StatusBusy      Status = "busy"
	StatusBlocked   Status = "blocked"
	StatusSuspended Status = "suspended"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusGone      Status = "gone"
)

// ExternalStatus translates an internal lifecycle state to the coarse
// external Status. The function is total: every defined State maps to a
// Status, and unknown values degrade to StatusGone rather than panicking.
func ExternalStatus(s State) Status {
	switch s {
	case StateInitializing:
		return StatusStarting
	case StateIdle, StatePooled:
		return StatusReady
	case StateWorking, StateThinking:
		return StatusBusy
	case StateRequestingPermission, StateWaitingForAnswer, StateReviewingPlan:
		return StatusBlocked
	case StateSuspended, StateSuspendedIdle:
		return StatusSuspended
	case StateCompleted:
		return StatusDone
	case StateError:
		return StatusFailed
	case StateDestroying, StateDestroyed:
		return StatusGone
	default:
		return StatusGone
	}
}
