package errors

import "testing"

func TestTransitionError_Unwrap(t *testing.T) {
	err := NewTransitionError("w-1", "Idle", "evict", ErrNoTransition)

	if !Is(err, ErrNoTransition) {
		t.Error("TransitionError should unwrap to its sentinel")
	}

	var te *TransitionError
	if !As(err, &te) {
		t.Fatal("expected errors.As to match *TransitionError")
	}
	if te.WorkerID != "w-1" || te.State != "Idle" || te.Event != "evict" {
		t.Errorf("fields mangled: %+v", te)
	}
}

func TestIsRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no transition", NewTransitionError("w", "s", "e", ErrNoTransition), true},
		{"guard failed", NewTransitionError("w", "s", "e", Join(ErrGuardFailed, New("pool full"))), true},
		{"worker not found", ErrWorkerNotFound, false},
		{"unrelated", New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRejection(tt.err); got != tt.want {
				t.Errorf("IsRejection(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNotFoundError_Is(t *testing.T) {
	err := NewNotFoundError("worker", "w-1")

	if !Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
	if err.Error() != `worker "w-1" not found` {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestValidationError_Message(t *testing.T) {
	err := NewValidationError("pool.max_per_role", "must be positive")
	if err.Error() != "invalid pool.max_per_role: must be positive" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	bare := NewValidationError("", "just wrong")
	if bare.Error() != "just wrong" {
		t.Errorf("unexpected message: %s", bare.Error())
	}
}
