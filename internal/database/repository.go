package database

import "context"

// AttendanceReader provides read access to persisted attendance rows
type AttendanceReader interface {
	// GetAttendance returns the row for key, or nil if there is none
	GetAttendance(ctx context.Context, key RecordKey) (*AttendanceRecord, error)
}

// AttendanceWriter provides keyed write access to attendance rows
type AttendanceWriter interface {
	AttendanceReader

	// UpsertAttendance inserts the record or overwrites the row with the same key
	UpsertAttendance(ctx context.Context, rec AttendanceRecord) error

	// UpdateAttendance overwrites an existing row; ErrNotFound if the key has no row
	UpdateAttendance(ctx context.Context, rec AttendanceRecord) error
}

// RecognitionLogWriter stores recognition audit entries
type RecognitionLogWriter interface {
	SaveRecognitionLog(ctx context.Context, entry RecognitionLog) error
}

// AttendanceLister reads back the rows written for a lecture
type AttendanceLister interface {
	// ListAttendance returns every row of a class on a date and subject, ordered by student
	ListAttendance(ctx context.Context, classID, date, subject string) ([]AttendanceRecord, error)
}

// RecognitionLogReader reads recognition audit entries
type RecognitionLogReader interface {
	ListRecognitionLogs(ctx context.Context, sessionID string) ([]RecognitionLog, error)
}
