package session

import (
	"errors"
	"fmt"
)

// State is the stage of a review session.
type State string

// Session states. Closed is the only terminal state; Failed waits for the
// reviewer to retry with a new photo or cancel.
const (
	StateAwaitingImage State = "awaiting_image"
	StateProcessing    State = "processing"
	StateReviewing     State = "reviewing"
	StatePersisting    State = "persisting"
	StateClosed        State = "closed"
	StateFailed        State = "failed"
)

var transitions = map[State][]State{
	StateAwaitingImage: {StateProcessing, StateClosed},
	StateFailed:        {StateAwaitingImage, StateClosed},
	StateProcessing:    {StateReviewing, StateFailed, StateClosed},
	StateReviewing:     {StateReviewing, StatePersisting, StateClosed},
	StatePersisting:    {StateReviewing, StateClosed},
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateClosed
}

// CanTransition reports whether the state machine allows s -> to.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned for an unknown session handle.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidTransition is wrapped by every TransitionError.
	ErrInvalidTransition = errors.New("operation not allowed in the current session state")
	// ErrUnknownStudent means the student has no decision in the session.
	ErrUnknownStudent = errors.New("student is not on the session roster")
	// ErrDiscarded is returned to a submitter whose recognition result
	// arrived after the session was cancelled or superseded.
	ErrDiscarded = errors.New("recognition result discarded")
)

// TransitionError rejects an operation the current state does not allow.
type TransitionError struct {
	Op    string
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Op, e.State)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
