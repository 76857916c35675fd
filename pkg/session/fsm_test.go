package session

import (
	"errors"
	"testing"
)

func TestStateMachineHappyPath(t *testing.T) {
	m := newStateMachine()
	if m.State() != StateIdle {
		t.Fatalf("expected initial IDLE, got %v", m.State())
	}

	steps := []struct {
		to     State
		reason string
	}{
		{StateListening, "first frame"},
		{StateFinalizing, "stop"},
		{StateIdle, "final"},
		{StateListening, "first frame"},
		{StateIdle, "final"},
		{StateClosed, "client gone"},
	}
	for _, step := range steps {
		if err := m.Transition(step.to, step.reason); err != nil {
			t.Fatalf("transition to %v: %v", step.to, err)
		}
	}
	if m.State() != StateClosed {
		t.Fatalf("expected CLOSED, got %v", m.State())
	}
	if got := len(m.History()); got != len(steps) {
		t.Fatalf("expected %d history entries, got %d", len(steps), got)
	}
}

func TestStateMachineRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		from State
		to   State
	}{
		{StateIdle, StateFinalizing},
		{StateFinalizing, StateListening},
		{StateClosed, StateIdle},
		{StateClosed, StateListening},
	}
	for _, tc := range cases {
		m := &stateMachine{currentState: tc.from}
		err := m.Transition(tc.to, "test")
		if err == nil {
			t.Fatalf("transition %v -> %v allowed", tc.from, tc.to)
		}
		var ite *InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("expected InvalidTransitionError, got %T", err)
		}
		if m.State() != tc.from {
			t.Fatalf("state moved despite invalid transition")
		}
	}
}

func TestStateMachineSameStateIsNoop(t *testing.T) {
	m := newStateMachine()
	if err := m.Transition(StateIdle, "noop"); err != nil {
		t.Fatalf("same-state transition errored: %v", err)
	}
	if got := len(m.History()); got != 0 {
		t.Fatalf("noop recorded in history: %d entries", got)
	}
}
