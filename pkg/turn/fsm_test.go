package turn

import (
	"errors"
	"testing"
)

func TestTrackerSingleTerminalTransition(t *testing.T) {
	var seen []StateChange
	tr := NewTracker(3, StateListenerFunc(func(ev StateChange) { seen = append(seen, ev) }))

	if tr.State() != StateAwaitingResponse {
		t.Fatalf("expected AWAITING_RESPONSE, got %s", tr.State())
	}
	if err := tr.Transition(StateNeedsInput, "ElicitSlot"); err != nil {
		t.Fatalf("transition error: %v", err)
	}
	err := tr.Transition(StateFulfilled, "late")
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.From != StateNeedsInput || invalid.To != StateFulfilled {
		t.Fatalf("unexpected error fields %+v", invalid)
	}
	if len(seen) != 1 || seen[0].Turn != 3 || seen[0].Reason != "ElicitSlot" {
		t.Fatalf("expected one change event for turn 3, got %+v", seen)
	}
	if !tr.State().Terminal() {
		t.Fatalf("expected terminal state")
	}
}

func TestTrackerRejectsAwaitingAgain(t *testing.T) {
	tr := NewTracker(1)
	if err := tr.Transition(StateAwaitingResponse, "noop"); err == nil {
		t.Fatalf("expected error for self transition")
	}
	if tr.Duration() != 0 {
		t.Fatalf("expected zero duration while awaiting")
	}
}

func TestListenerCanReadStateDuringNotify(t *testing.T) {
	tr := NewTracker(1)
	var observed State
	tr.AddListener(StateListenerFunc(func(StateChange) { observed = tr.State() }))
	if err := tr.Transition(StateErrored, "boom"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if observed != StateErrored {
		t.Fatalf("expected listener to see ERRORED, got %s", observed)
	}
}
