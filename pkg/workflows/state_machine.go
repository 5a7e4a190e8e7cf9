package workflows

import "fmt"

// StateMachine enforces status transitions from a fixed table
type StateMachine[S comparable] struct {
	allowedTransitions map[S][]S
}

// NewStateMachine creates a new state machine with allowed transitions
func NewStateMachine[S comparable](transitions map[S][]S) *StateMachine[S] {
	allowed := make(map[S][]S, len(transitions))
	for from, to := range transitions {
		allowed[from] = append([]S(nil), to...)
	}
	return &StateMachine[S]{allowedTransitions: allowed}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine[S]) CanTransition(from, to S) bool {
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

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine[S]) GetAllowedTransitions(from S) []S {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []S{}
	}
	return append([]S(nil), allowed...)
}

// Transition returns to when the move is allowed and a TransitionError otherwise
func (sm *StateMachine[S]) Transition(from, to S) (S, error) {
	if !sm.CanTransition(from, to) {
		return from, &TransitionError[S]{From: from, To: to}
	}
	return to, nil
}

// TransitionError reports a move the table does not allow
type TransitionError[S comparable] struct {
	From S
	To   S
}

func (e *TransitionError[S]) Error() string {
	return fmt.Sprintf("transition from %v to %v is not allowed", e.From, e.To)
}
