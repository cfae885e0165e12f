// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

// MockAttendanceStore is an in-memory implementation of database.AttendanceWriter
type MockAttendanceStore struct {
	mu      sync.Mutex
	records map[database.RecordKey]database.AttendanceRecord

	// Error injection
	//
	// FailFor makes every write for a student id fail with the given error.
	FailFor map[string]error
	// ConflictOnce makes the first upsert for a student id fail with
	// database.ErrConflict after storing the row, as if a concurrent writer won.
	ConflictOnce map[string]bool
	// UpsertError fails every upsert.
	UpsertError error
	GetError    error

	// Delay is slept before each write; the sleep is cut short by ctx.
	Delay time.Duration

	upserts     int
	updates     int
	inFlight    int
	maxInFlight int
}

// NewMockAttendanceStore creates a new empty attendance store
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{
		records:      make(map[database.RecordKey]database.AttendanceRecord),
		FailFor:      make(map[string]error),
		ConflictOnce: make(map[string]bool),
	}
}

func (m *MockAttendanceStore) enter(ctx context.Context) error {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.leave()
			return fmt.Errorf("%w: %w", database.ErrUnavailable, ctx.Err())
		}
	}
	return nil
}

func (m *MockAttendanceStore) leave() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

// UpsertAttendance stores the record, replacing any row with the same key
func (m *MockAttendanceStore) UpsertAttendance(ctx context.Context, rec database.AttendanceRecord) error {
	if err := m.enter(ctx); err != nil {
		return err
	}
	defer m.leave()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++

	if m.UpsertError != nil {
		return m.UpsertError
	}
	if err := m.FailFor[rec.StudentID]; err != nil {
		return err
	}
	m.store(rec)
	if m.ConflictOnce[rec.StudentID] {
		delete(m.ConflictOnce, rec.StudentID)
		return fmt.Errorf("upsert %s: %w", rec.StudentID, database.ErrConflict)
	}
	return nil
}

// UpdateAttendance overwrites an existing row
func (m *MockAttendanceStore) UpdateAttendance(ctx context.Context, rec database.AttendanceRecord) error {
	if err := m.enter(ctx); err != nil {
		return err
	}
	defer m.leave()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++

	if err := m.FailFor[rec.StudentID]; err != nil {
		return err
	}
	if _, ok := m.records[rec.Key()]; !ok {
		return fmt.Errorf("update %s: %w", rec.StudentID, database.ErrNotFound)
	}
	m.store(rec)
	return nil
}

// store must be called with mu held.
func (m *MockAttendanceStore) store(rec database.AttendanceRecord) {
	now := time.Now()
	if existing, ok := m.records[rec.Key()]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.records[rec.Key()] = rec
}

// GetAttendance returns the row for key, or nil
func (m *MockAttendanceStore) GetAttendance(ctx context.Context, key database.RecordKey) (*database.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Records returns a copy of every stored row
func (m *MockAttendanceStore) Records() []database.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.AttendanceRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out
}

// ListAttendance returns the rows of a class on a date and subject, ordered by student
func (m *MockAttendanceStore) ListAttendance(ctx context.Context, classID, date, subject string) ([]database.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.AttendanceRecord
	for _, rec := range m.records {
		if rec.ClassID == classID && rec.Date == date && rec.Subject == subject {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

// UpsertCount returns the number of upsert calls
func (m *MockAttendanceStore) UpsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// UpdateCount returns the number of update calls
func (m *MockAttendanceStore) UpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// MaxInFlight returns the highest number of concurrent writes observed
func (m *MockAttendanceStore) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// MockRosterReader serves rosters registered with SetRoster
type MockRosterReader struct {
	mu      sync.Mutex
	rosters map[string][]attendance.Student
	calls   int

	GetRosterError error
}

// NewMockRosterReader creates a new mock roster reader
func NewMockRosterReader() *MockRosterReader {
	return &MockRosterReader{rosters: make(map[string][]attendance.Student)}
}

// SetRoster registers the roster of a class
func (m *MockRosterReader) SetRoster(classID string, students []attendance.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rosters[classID] = students
}

// GetRoster returns a copy of the registered roster
func (m *MockRosterReader) GetRoster(ctx context.Context, classID string) ([]attendance.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.GetRosterError != nil {
		return nil, m.GetRosterError
	}
	students, ok := m.rosters[classID]
	if !ok {
		return nil, fmt.Errorf("class %s: %w", classID, database.ErrClassNotFound)
	}
	return append([]attendance.Student(nil), students...), nil
}

// Calls returns the number of GetRoster calls
func (m *MockRosterReader) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockRecognitionLogWriter collects recognition log entries
type MockRecognitionLogWriter struct {
	mu      sync.Mutex
	entries []database.RecognitionLog

	SaveError error
}

// NewMockRecognitionLogWriter creates a new mock log writer
func NewMockRecognitionLogWriter() *MockRecognitionLogWriter {
	return &MockRecognitionLogWriter{}
}

// SaveRecognitionLog records the entry
func (m *MockRecognitionLogWriter) SaveRecognitionLog(ctx context.Context, entry database.RecognitionLog) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// ListRecognitionLogs returns the entries of a session in insertion order
func (m *MockRecognitionLogWriter) ListRecognitionLogs(ctx context.Context, sessionID string) ([]database.RecognitionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.RecognitionLog
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns a copy of the recorded entries
func (m *MockRecognitionLogWriter) Entries() []database.RecognitionLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.RecognitionLog(nil), m.entries...)
}

// Compile-time interface checks
var (
	_ database.AttendanceWriter     = (*MockAttendanceStore)(nil)
	_ database.AttendanceLister     = (*MockAttendanceStore)(nil)
	_ database.RecognitionLogWriter = (*MockRecognitionLogWriter)(nil)
	_ database.RecognitionLogReader = (*MockRecognitionLogWriter)(nil)
)
