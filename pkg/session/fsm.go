package session

import (
	"sync"
	"time"
)

// StateChange records one state transition.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// stateMachine validates and tracks session state transitions. Audio ingress
// and provider callbacks race against each other, so every transition goes
// through the lock.
type stateMachine struct {
	mu           sync.RWMutex
	currentState State
	history      []StateChange
}

func newStateMachine() *stateMachine {
	return &stateMachine{currentState: StateIdle}
}

func (m *stateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentState
}

// transitionValid checks if a state transition is allowed (lock held).
func (m *stateMachine) transitionValid(from, to State) bool {
	validTransitions := map[State][]State{
		StateIdle:       {StateListening, StateClosed},
		StateListening:  {StateFinalizing, StateIdle, StateClosed},
		StateFinalizing: {StateIdle, StateClosed},
	}

	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state with validation.
func (m *stateMachine) Transition(to State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentState == to {
		return nil
	}
	if !m.transitionValid(m.currentState, to) {
		return &InvalidTransitionError{From: m.currentState, To: to}
	}
	m.history = append(m.history, StateChange{
		FromState: m.currentState,
		ToState:   to,
		Timestamp: time.Now(),
		Reason:    reason,
	})
	m.currentState = to
	return nil
}

// History returns a snapshot of recorded transitions.
func (m *stateMachine) History() []StateChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StateChange(nil), m.history...)
}

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
