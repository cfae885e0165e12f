package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

// GetRoster reads a class roster from the campus student information system.
// The schema mirrors the attendance database: classes and student_records.
// Students come ordered by roll number, shorter roll numbers first.
func (p *Pool) GetRoster(ctx context.Context, classID string) ([]attendance.Student, error) {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM classes WHERE id = ?`, classID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("class %s: %w", classID, database.ErrClassNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("check class %s: %w", classID, unavailable(err))
	}

	query := `
		SELECT user_id, fname, lname, roll_number
		FROM student_records
		WHERE class_id = ?
		ORDER BY CHAR_LENGTH(roll_number), roll_number, user_id
	`

	rows, err := p.db.QueryContext(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", unavailable(err))
	}
	defer rows.Close()

	var students []attendance.Student
	for rows.Next() {
		var s attendance.Student
		var fname, lname string
		if err := rows.Scan(&s.ID, &fname, &lname, &s.RollNumber); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		s.Name = strings.TrimSpace(fname + " " + lname)
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", unavailable(err))
	}
	p.logger.Debug("loaded roster", zap.String("class_id", classID), zap.Int("students", len(students)))
	return students, nil
}

// unavailable marks transport failures so callers can tell them from a
// missing class. Server-side errors are passed through unclassified.
func unavailable(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return err
	}
	return fmt.Errorf("%w: %w", database.ErrUnavailable, err)
}
