package lifecycle

import (
	"testing"

	"github.com/Iron-Ham/wrangler/internal/errors"
	"github.com/Iron-Ham/wrangler/internal/worker"
)

func TestMachine_HappyPath(t *testing.T) {
	m := NewMachine()

	steps := []struct {
		ev   Event
		ctx  Context
		want worker.State
	}{
		{Event{Kind: EventStarted}, Context{}, worker.StateIdle},
		{Event{Kind: EventAssign}, Context{WorkID: "w-1"}, worker.StateWorking},
		{Event{Kind: EventThinking}, Context{}, worker.StateThinking},
		{Event{Kind: EventProducedOutput}, Context{}, worker.StateWorking},
		{Event{Kind: EventProcessExited, ExitCode: 0}, Context{}, worker.StateCompleted},
		{Event{Kind: EventPool}, Context{PoolHasCapacity: true}, worker.StatePooled},
		{Event{Kind: EventReacquire}, Context{}, worker.StateInitializing},
	}

	state := worker.StateInitializing
	for i, step := range steps {
		next, err := m.Transition(state, step.ev, step.ctx)
		if err != nil {
			t.Fatalf("step %d: unexpected rejection: %v", i, err)
		}
		if next != step.want {
			t.Fatalf("step %d: expected %s, got %s", i, step.want, next)
		}
		state = next
	}
}

func TestMachine_ExitCodeResolution(t *testing.T) {
	m := NewMachine()

	tests := []struct {
		name     string
		from     worker.State
		exitCode int
		want     worker.State
	}{
		{"working clean exit", worker.StateWorking, 0, worker.StateCompleted},
		{"working dirty exit", worker.StateWorking, 1, worker.StateError},
		{"thinking clean exit", worker.StateThinking, 0, worker.StateCompleted},
		{"thinking dirty exit", worker.StateThinking, 137, worker.StateError},
		{"initializing clean exit", worker.StateInitializing, 0, worker.StateSuspended},
		{"initializing dirty exit", worker.StateInitializing, 1, worker.StateError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := m.Transition(tt.from, Event{Kind: EventProcessExited, ExitCode: tt.exitCode}, Context{})
			if err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
			if next != tt.want {
				t.Errorf("expected %s, got %s", tt.want, next)
			}
		})
	}
}

func TestMachine_InteractiveWaitExitSuspends(t *testing.T) {
	m := NewMachine()

	// A subprocess terminating while blocked on a human is expected and must
	// stay resumable regardless of exit code.
	waits := []worker.State{
		worker.StateRequestingPermission,
		worker.StateWaitingForAnswer,
		worker.StateReviewingPlan,
	}
	for _, from := range waits {
		for _, code := range []int{0, 1} {
			next, err := m.Transition(from, Event{Kind: EventProcessExited, ExitCode: code}, Context{})
			if err != nil {
				t.Fatalf("%s exit %d: unexpected rejection: %v", from, code, err)
			}
			if next != worker.StateSuspended {
				t.Errorf("%s exit %d: expected Suspended, got %s", from, code, next)
			}
		}
	}
}

func TestMachine_InteractiveResponses(t *testing.T) {
	m := NewMachine()

	tests := []struct {
		from worker.State
		ev   EventKind
	}{
		{worker.StateRequestingPermission, EventPermissionGranted},
		{worker.StateRequestingPermission, EventPermissionDenied},
		{worker.StateWaitingForAnswer, EventAnswerReceived},
		{worker.StateReviewingPlan, EventPlanApproved},
		{worker.StateReviewingPlan, EventPlanRejected},
	}
	for _, tt := range tests {
		next, err := m.Transition(tt.from, Event{Kind: tt.ev}, Context{})
		if err != nil {
			t.Fatalf("%s/%s: unexpected rejection: %v", tt.from, tt.ev, err)
		}
		if next != worker.StateWorking {
			t.Errorf("%s/%s: expected Working, got %s", tt.from, tt.ev, next)
		}
	}
}

func TestMachine_HangSuspendsExecutingStates(t *testing.T) {
	m := NewMachine()

	for _, from := range []worker.State{worker.StateWorking, worker.StateThinking} {
		next, err := m.Transition(from, Event{Kind: EventHangTimeout}, Context{})
		if err != nil {
			t.Fatalf("%s: unexpected rejection: %v", from, err)
		}
		if next != worker.StateSuspended {
			t.Errorf("%s: hung subprocess should suspend, got %s", from, next)
		}
	}

	// Waiting on a human is not a hang, and idle workers have no hang timer.
	if m.CanFire(worker.StateWaitingForAnswer, EventHangTimeout) {
		t.Error("interactive waits must not accept a hang timeout")
	}
	if m.CanFire(worker.StateIdle, EventHangTimeout) {
		t.Error("Idle must not accept a hang timeout")
	}
}

func TestMachine_GuardRejections(t *testing.T) {
	m := NewMachine()

	// Assignment without a unit of work.
	next, err := m.Transition(worker.StateIdle, Event{Kind: EventAssign}, Context{})
	if !errors.Is(err, errors.ErrGuardFailed) {
		t.Errorf("expected ErrGuardFailed, got %v", err)
	}
	if next != worker.StateIdle {
		t.Errorf("rejected transition must not change state, got %s", next)
	}

	// Pooling without capacity.
	next, err = m.Transition(worker.StateCompleted, Event{Kind: EventPool}, Context{PoolHasCapacity: false})
	if !errors.Is(err, errors.ErrGuardFailed) {
		t.Errorf("expected ErrGuardFailed, got %v", err)
	}
	if next != worker.StateCompleted {
		t.Errorf("rejected transition must not change state, got %s", next)
	}
}

func TestMachine_RejectsEveryUnregisteredPair(t *testing.T) {
	m := NewMachine()

	allEvents := []EventKind{
		EventStarted, EventProducedOutput, EventThinking,
		EventRequestedPermission, EventPermissionGranted, EventPermissionDenied,
		EventAskedQuestion, EventAnswerReceived,
		EventProposedPlan, EventPlanApproved, EventPlanRejected,
		EventProcessExited, EventUserCancelled,
		EventResumeRequested, EventDiscardRequested,
		EventAssign, EventRetry, EventSuspend, EventPool,
		EventReacquire, EventEvict, EventDestroy, EventFinalize,
		EventIdleTimeout, EventSuspendTimeout, EventHangTimeout, EventSweep,
		EventEmergencyDestroy,
	}

	ctx := Context{WorkID: "w-1", PoolHasCapacity: true}
	for _, state := range worker.AllStates() {
		for _, kind := range allEvents {
			next, err := m.Transition(state, Event{Kind: kind}, ctx)
			if m.CanFire(state, kind) {
				if err != nil {
					t.Errorf("%s/%s: registered edge rejected with valid context: %v", state, kind, err)
				}
				continue
			}
			if !errors.Is(err, errors.ErrNoTransition) {
				t.Errorf("%s/%s: expected ErrNoTransition, got %v", state, kind, err)
			}
			if next != state {
				t.Errorf("%s/%s: rejection changed state to %s", state, kind, next)
			}
			var te *errors.TransitionError
			if !errors.As(err, &te) {
				t.Errorf("%s/%s: rejection is not a TransitionError", state, kind)
			}
		}
	}
}

func TestMachine_DestroyedIsTerminal(t *testing.T) {
	m := NewMachine()

	if kinds := m.EventsFrom(worker.StateDestroyed); len(kinds) != 0 {
		t.Errorf("Destroyed must have no outgoing edges, found %v", kinds)
	}
}

func TestMachine_SuspendedFunnel(t *testing.T) {
	m := NewMachine()

	next, err := m.Transition(worker.StateSuspended, Event{Kind: EventSuspendTimeout}, Context{})
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if next != worker.StateSuspendedIdle {
		t.Errorf("expected SuspendedIdle, got %s", next)
	}

	next, err = m.Transition(worker.StateSuspendedIdle, Event{Kind: EventSweep}, Context{})
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if next != worker.StateDestroying {
		t.Errorf("expected Destroying, got %s", next)
	}

	// Both suspended states remain resumable until swept.
	for _, from := range []worker.State{worker.StateSuspended, worker.StateSuspendedIdle} {
		next, err := m.Transition(from, Event{Kind: EventResumeRequested}, Context{})
		if err != nil {
			t.Fatalf("%s: unexpected rejection: %v", from, err)
		}
		if next != worker.StateWorking {
			t.Errorf("%s: expected Working, got %s", from, next)
		}
	}
}

func TestMachine_ErrorIsRetryable(t *testing.T) {
	m := NewMachine()

	next, err := m.Transition(worker.StateError, Event{Kind: EventRetry}, Context{})
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if next != worker.StateWorking {
		t.Errorf("expected Working, got %s", next)
	}

	// Completed workers have nothing to retry.
	if m.CanFire(worker.StateCompleted, EventRetry) {
		t.Error("Completed must not accept retry")
	}
}
