package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// UpsertAttendance inserts a row or overwrites the row with the same
// (user_id, date, subject, marked_by) key. created_at survives the overwrite.
func (r *AttendanceRepository) UpsertAttendance(ctx context.Context, rec database.AttendanceRecord) error {
	query := `
		INSERT INTO attendance (user_id, student_name, class_id, date, subject, class_type,
			status, confidence_score, recognition_method, marked_by, faculty_name, updated_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (user_id, date, subject, marked_by) DO UPDATE SET
			student_name = EXCLUDED.student_name,
			class_id = EXCLUDED.class_id,
			class_type = EXCLUDED.class_type,
			status = EXCLUDED.status,
			confidence_score = EXCLUDED.confidence_score,
			recognition_method = EXCLUDED.recognition_method,
			faculty_name = EXCLUDED.faculty_name,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		rec.StudentID, rec.StudentName, rec.ClassID, rec.Date, rec.Subject, rec.ClassType,
		rec.Status, rec.ConfidenceScore, rec.RecognitionMethod, rec.FacultyID, rec.FacultyName,
	)
	if err != nil {
		return fmt.Errorf("upsert attendance for %s: %w", rec.StudentID, classify(err))
	}
	return nil
}

// UpdateAttendance overwrites an existing row. Returns database.ErrNotFound
// when no row has the record's key.
func (r *AttendanceRepository) UpdateAttendance(ctx context.Context, rec database.AttendanceRecord) error {
	query := `
		UPDATE attendance SET
			student_name = $5,
			class_id = $6,
			class_type = $7,
			status = $8,
			confidence_score = $9,
			recognition_method = $10,
			faculty_name = $11,
			updated_at = NOW()
		WHERE user_id = $1 AND date = $2::date AND subject = $3 AND marked_by = $4
	`

	result, err := r.pool.Exec(ctx, query,
		rec.StudentID, rec.Date, rec.Subject, rec.FacultyID,
		rec.StudentName, rec.ClassID, rec.ClassType, rec.Status,
		rec.ConfidenceScore, rec.RecognitionMethod, rec.FacultyName,
	)
	if err != nil {
		return fmt.Errorf("update attendance for %s: %w", rec.StudentID, classify(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attendance for %s: %w", rec.StudentID, classify(err))
	}
	if n == 0 {
		return fmt.Errorf("update attendance for %s: %w", rec.StudentID, database.ErrNotFound)
	}
	return nil
}

// GetAttendance returns the row for key, or nil if there is none
func (r *AttendanceRepository) GetAttendance(ctx context.Context, key database.RecordKey) (*database.AttendanceRecord, error) {
	query := `
		SELECT user_id, student_name, class_id, to_char(date, 'YYYY-MM-DD'), subject, class_type,
			status, confidence_score, recognition_method, marked_by, faculty_name, created_at, updated_at
		FROM attendance
		WHERE user_id = $1 AND date = $2::date AND subject = $3 AND marked_by = $4
	`

	var rec database.AttendanceRecord
	var confidence sql.NullFloat64
	err := r.pool.QueryRow(ctx, query, key.StudentID, key.Date, key.Subject, key.FacultyID).Scan(
		&rec.StudentID,
		&rec.StudentName,
		&rec.ClassID,
		&rec.Date,
		&rec.Subject,
		&rec.ClassType,
		&rec.Status,
		&confidence,
		&rec.RecognitionMethod,
		&rec.FacultyID,
		&rec.FacultyName,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", classify(err))
	}
	if confidence.Valid {
		rec.ConfidenceScore = &confidence.Float64
	}
	return &rec, nil
}

// ListAttendance returns every row written for a class on a date and subject,
// ordered by student.
func (r *AttendanceRepository) ListAttendance(ctx context.Context, classID, date, subject string) ([]database.AttendanceRecord, error) {
	query := `
		SELECT user_id, student_name, class_id, to_char(date, 'YYYY-MM-DD'), subject, class_type,
			status, confidence_score, recognition_method, marked_by, faculty_name, created_at, updated_at
		FROM attendance
		WHERE class_id = $1 AND date = $2::date AND subject = $3
		ORDER BY user_id
	`

	rows, err := r.pool.Query(ctx, query, classID, date, subject)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", classify(err))
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		var confidence sql.NullFloat64
		if err := rows.Scan(
			&rec.StudentID, &rec.StudentName, &rec.ClassID, &rec.Date, &rec.Subject, &rec.ClassType,
			&rec.Status, &confidence, &rec.RecognitionMethod, &rec.FacultyID, &rec.FacultyName,
			&rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		if confidence.Valid {
			v := confidence.Float64
			rec.ConfidenceScore = &v
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", classify(err))
	}
	return records, nil
}
