package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

// RosterRepository reads class rosters from the student_records table
type RosterRepository struct {
	pool *Pool
}

// NewRosterRepository creates a new PostgreSQL roster repository
func NewRosterRepository(pool *Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

// GetRoster returns the students of a class ordered by roll number. Shorter
// roll numbers sort first, so numeric rolls come out as 1, 2, 10.
// Returns database.ErrClassNotFound when the class does not exist.
func (r *RosterRepository) GetRoster(ctx context.Context, classID string) ([]attendance.Student, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM classes WHERE id = $1)`, classID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check class %s: %w", classID, classify(err))
	}
	if !exists {
		return nil, fmt.Errorf("class %s: %w", classID, database.ErrClassNotFound)
	}

	query := `
		SELECT user_id, fname, lname, roll_number
		FROM student_records
		WHERE class_id = $1
		ORDER BY length(roll_number), roll_number, user_id
	`

	rows, err := r.pool.Query(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", classify(err))
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
		return nil, fmt.Errorf("iterate roster: %w", classify(err))
	}
	return students, nil
}

// SaveClass creates or renames a class.
func (r *RosterRepository) SaveClass(ctx context.Context, classID, name string) error {
	query := `
		INSERT INTO classes (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`
	if _, err := r.pool.Exec(ctx, query, classID, name); err != nil {
		return fmt.Errorf("save class: %w", classify(err))
	}
	return nil
}

// SaveStudent enrolls a student in a class, moving them if already enrolled elsewhere.
func (r *RosterRepository) SaveStudent(ctx context.Context, classID string, s attendance.Student) error {
	fname, lname, _ := strings.Cut(s.Name, " ")
	query := `
		INSERT INTO student_records (user_id, fname, lname, roll_number, class_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			fname = EXCLUDED.fname,
			lname = EXCLUDED.lname,
			roll_number = EXCLUDED.roll_number,
			class_id = EXCLUDED.class_id
	`
	if _, err := r.pool.Exec(ctx, query, s.ID, fname, lname, s.RollNumber, classID); err != nil {
		return fmt.Errorf("save student %s: %w", s.ID, classify(err))
	}
	return nil
}
