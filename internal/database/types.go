package database

import (
	"errors"
	"time"
)

// Store error sentinels. Implementations wrap the driver error with one of
// these so callers can classify failures with errors.Is.
var (
	// ErrConflict means a concurrent write for the same key won the race.
	ErrConflict = errors.New("write conflict")
	// ErrRejected means the store refused the write (constraint, bad data).
	ErrRejected = errors.New("write rejected")
	// ErrUnavailable means the store could not be reached.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNotFound means the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrClassNotFound means the roster source does not know the class.
	ErrClassNotFound = errors.New("class not found")
)

// RecordKey identifies one persisted attendance row.
type RecordKey struct {
	StudentID string
	Date      string // YYYY-MM-DD
	Subject   string
	FacultyID string
}

// AttendanceRecord is one persisted attendance row.
type AttendanceRecord struct {
	StudentID         string
	StudentName       string
	ClassID           string
	Date              string // YYYY-MM-DD
	Subject           string
	ClassType         string
	Status            string
	ConfidenceScore   *float64
	RecognitionMethod string // face_recognition or manual
	FacultyID         string
	FacultyName       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Key returns the upsert key of the record.
func (r *AttendanceRecord) Key() RecordKey {
	return RecordKey{
		StudentID: r.StudentID,
		Date:      r.Date,
		Subject:   r.Subject,
		FacultyID: r.FacultyID,
	}
}

// RecognitionLog is an audit entry written after each recognition run.
type RecognitionLog struct {
	ID             int64
	SessionID      string
	ClassID        string
	Subject        string
	FacultyID      string
	FacesDetected  int
	Matched        int
	Unmatched      int
	Unknown        int
	BelowThreshold int
	ProcessingTime time.Duration
	CreatedAt      time.Time
}
