package workflows

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a step change is not allowed.
var ErrInvalidTransition = errors.New("invalid transition")

// StateMachine enforces wizard step transitions
type StateMachine struct {
	initial            string
	allowedTransitions map[string][]string
}

// NewStateMachine creates a state machine starting at initial with the given allowed transitions
func NewStateMachine(initial string, transitions map[string][]string) *StateMachine {
	allowed := make(map[string][]string, len(transitions))
	for from, to := range transitions {
		allowed[from] = append([]string(nil), to...)
	}
	return &StateMachine{
		initial:            initial,
		allowedTransitions: allowed,
	}
}

// NewLinearStateMachine builds a wizard where each step may advance to the
// next one or return to the previous one.
func NewLinearStateMachine(steps ...string) *StateMachine {
	transitions := make(map[string][]string, len(steps))
	for i, step := range steps {
		var next []string
		if i+1 < len(steps) {
			next = append(next, steps[i+1])
		}
		if i > 0 {
			next = append(next, steps[i-1])
		}
		transitions[step] = next
	}
	initial := ""
	if len(steps) > 0 {
		initial = steps[0]
	}
	return NewStateMachine(initial, transitions)
}

// Initial returns the starting state
func (sm *StateMachine) Initial() string {
	return sm.initial
}

// CanTransition checks if a transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns ErrInvalidTransition when it is not allowed.
func (sm *StateMachine) Transition(from, to string) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// GetAllowedTransitions returns the allowed next states for a given state
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}

// Allow adds a transition after construction.
func (sm *StateMachine) Allow(from string, to ...string) {
	sm.allowedTransitions[from] = append(sm.allowedTransitions[from], to...)
}
