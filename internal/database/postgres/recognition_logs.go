package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// RecognitionLogRepository stores recognition audit entries
type RecognitionLogRepository struct {
	pool *Pool
}

// NewRecognitionLogRepository creates a new PostgreSQL recognition log repository
func NewRecognitionLogRepository(pool *Pool) *RecognitionLogRepository {
	return &RecognitionLogRepository{pool: pool}
}

// SaveRecognitionLog appends an audit entry
func (r *RecognitionLogRepository) SaveRecognitionLog(ctx context.Context, entry database.RecognitionLog) error {
	query := `
		INSERT INTO recognition_logs (session_id, class_id, subject, marked_by, faces_detected,
			matched, unmatched, unknown, below_threshold, processing_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.SessionID, entry.ClassID, entry.Subject, entry.FacultyID, entry.FacesDetected,
		entry.Matched, entry.Unmatched, entry.Unknown, entry.BelowThreshold,
		entry.ProcessingTime.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save recognition log: %w", classify(err))
	}
	return nil
}

// ListRecognitionLogs returns the entries written for a session, oldest first
func (r *RecognitionLogRepository) ListRecognitionLogs(ctx context.Context, sessionID string) ([]database.RecognitionLog, error) {
	query := `
		SELECT id, session_id, class_id, subject, marked_by, faces_detected,
			matched, unmatched, unknown, below_threshold, processing_time_ms, created_at
		FROM recognition_logs
		WHERE session_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list recognition logs: %w", classify(err))
	}
	defer rows.Close()

	var entries []database.RecognitionLog
	for rows.Next() {
		var e database.RecognitionLog
		var ms int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ClassID, &e.Subject, &e.FacultyID, &e.FacesDetected,
			&e.Matched, &e.Unmatched, &e.Unknown, &e.BelowThreshold, &ms, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recognition log: %w", err)
		}
		e.ProcessingTime = time.Duration(ms) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recognition logs: %w", classify(err))
	}
	return entries, nil
}
