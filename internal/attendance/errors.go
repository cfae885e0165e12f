package attendance

import (
	"errors"
	"fmt"
)

// ErrEmptyRoster is returned when there are no students to reconcile against.
var ErrEmptyRoster = errors.New("roster is empty")

// ValidationError rejects a submitted image. The session stays where it was.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid image: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RecognitionErrorKind classifies recognizer failures.
type RecognitionErrorKind string

const (
	RecognitionTimeout      RecognitionErrorKind = "timeout"
	RecognitionUnavailable  RecognitionErrorKind = "unavailable"
	RecognitionInvalidImage RecognitionErrorKind = "invalid_image"
)

// RecognitionError is a failed recognizer call.
type RecognitionError struct {
	Kind    RecognitionErrorKind
	Message string
	Err     error
}

func (e *RecognitionError) Error() string {
	msg := fmt.Sprintf("recognition failed (%s)", e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// InvariantError means reconciliation could not produce a complete decision
// list. It is fatal to the session that hit it.
type InvariantError struct {
	Reason string
	Err    error
}

func (e *InvariantError) Error() string {
	if e.Err != nil {
		return "reconciliation invariant violated: " + e.Reason + ": " + e.Err.Error()
	}
	return "reconciliation invariant violated: " + e.Reason
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// PersistenceErrorKind classifies per-student write failures.
type PersistenceErrorKind string

const (
	PersistenceConflict    PersistenceErrorKind = "conflict"
	PersistenceRejected    PersistenceErrorKind = "rejected"
	PersistenceUnavailable PersistenceErrorKind = "unavailable"
)

// PersistenceError is the failure of one student's record write.
type PersistenceError struct {
	StudentID string
	Kind      PersistenceErrorKind
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.StudentID, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
