package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kozaktomas/rollcall/internal/database"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AttendanceQuery selects the saved rows of one lecture.
type AttendanceQuery struct {
	ClassID string `validate:"required,max=64"`
	Date    string `validate:"required,datetime=2006-01-02"`
	Subject string `validate:"required,max=128"`
}

// RecordResponse is one saved attendance row.
type RecordResponse struct {
	StudentID         string    `json:"student_id"`
	StudentName       string    `json:"student_name"`
	ClassID           string    `json:"class_id"`
	Date              string    `json:"date"`
	Subject           string    `json:"subject"`
	ClassType         string    `json:"class_type"`
	Status            string    `json:"status"`
	ConfidenceScore   *float64  `json:"confidence_score"`
	RecognitionMethod string    `json:"recognition_method"`
	FacultyID         string    `json:"faculty_id"`
	FacultyName       string    `json:"faculty_name"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RecognitionLogResponse is one recognition audit entry.
type RecognitionLogResponse struct {
	SessionID        string    `json:"session_id"`
	FacesDetected    int       `json:"faces_detected"`
	Matched          int       `json:"matched"`
	Unmatched        int       `json:"unmatched"`
	Unknown          int       `json:"unknown"`
	BelowThreshold   int       `json:"below_threshold"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// AttendanceHandler reads back what committed sessions wrote.
type AttendanceHandler struct {
	records database.AttendanceLister
	logs    database.RecognitionLogReader
}

// NewAttendanceHandler creates an attendance read handler. logs may be nil.
func NewAttendanceHandler(records database.AttendanceLister, logs database.RecognitionLogReader) *AttendanceHandler {
	return &AttendanceHandler{records: records, logs: logs}
}

// List handles GET /attendance?class_id=&date=&subject=.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := AttendanceQuery{
		ClassID: r.URL.Query().Get("class_id"),
		Date:    r.URL.Query().Get("date"),
		Subject: r.URL.Query().Get("subject"),
	}
	if err := validate.Struct(q); err != nil {
		respondErrorKind(w, http.StatusBadRequest, "validation", "class_id, subject and date (YYYY-MM-DD) are required")
		return
	}

	rows, err := h.records.ListAttendance(r.Context(), q.ClassID, q.Date, q.Subject)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	out := make([]RecordResponse, len(rows))
	for i, rec := range rows {
		out[i] = RecordResponse{
			StudentID:         rec.StudentID,
			StudentName:       rec.StudentName,
			ClassID:           rec.ClassID,
			Date:              rec.Date,
			Subject:           rec.Subject,
			ClassType:         rec.ClassType,
			Status:            rec.Status,
			ConfidenceScore:   rec.ConfidenceScore,
			RecognitionMethod: rec.RecognitionMethod,
			FacultyID:         rec.FacultyID,
			FacultyName:       rec.FacultyName,
			CreatedAt:         rec.CreatedAt,
			UpdatedAt:         rec.UpdatedAt,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// RecognitionLogs handles GET /sessions/{id}/recognition-logs. Entries
// outlive the session, so an expired handle still answers.
func (h *AttendanceHandler) RecognitionLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing session ID")
		return
	}
	if h.logs == nil {
		respondJSON(w, http.StatusOK, []RecognitionLogResponse{})
		return
	}

	entries, err := h.logs.ListRecognitionLogs(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	out := make([]RecognitionLogResponse, len(entries))
	for i, e := range entries {
		out[i] = RecognitionLogResponse{
			SessionID:        e.SessionID,
			FacesDetected:    e.FacesDetected,
			Matched:          e.Matched,
			Unmatched:        e.Unmatched,
			Unknown:          e.Unknown,
			BelowThreshold:   e.BelowThreshold,
			ProcessingTimeMS: e.ProcessingTime.Milliseconds(),
			CreatedAt:        e.CreatedAt,
		}
	}
	respondJSON(w, http.StatusOK, out)
}
