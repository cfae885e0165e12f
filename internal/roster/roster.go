// Package roster provides class rosters to attendance sessions.
package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

// Provider returns the ordered list of students enrolled in a class.
// An unknown class fails with an error wrapping database.ErrClassNotFound.
type Provider interface {
	GetRoster(ctx context.Context, classID string) ([]attendance.Student, error)
}

// ErrNoMatch is returned by Find when no student matches the query.
var ErrNoMatch = errors.New("no matching student")

// AmbiguousError is returned by Find when a name matches several students.
type AmbiguousError struct {
	Query      string
	StudentIDs []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%q matches several students: %s", e.Query, strings.Join(e.StudentIDs, ", "))
}

// Find resolves a student by id, roll number or name. Ids and roll numbers
// must match exactly; names are compared normalized and may match a unique
// prefix of the full name.
func Find(students []attendance.Student, query string) (attendance.Student, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return attendance.Student{}, fmt.Errorf("empty query: %w", ErrNoMatch)
	}

	for _, s := range students {
		if s.ID == query {
			return s, nil
		}
	}
	for _, s := range students {
		if s.RollNumber != "" && s.RollNumber == query {
			return s, nil
		}
	}

	q := NormalizeName(query)
	var exact, prefix []attendance.Student
	for _, s := range students {
		name := NormalizeName(s.Name)
		switch {
		case name == q:
			exact = append(exact, s)
		case strings.HasPrefix(name, q+" "):
			prefix = append(prefix, s)
		}
	}

	candidates := exact
	if len(candidates) == 0 {
		candidates = prefix
	}
	switch len(candidates) {
	case 0:
		return attendance.Student{}, fmt.Errorf("%q: %w", query, ErrNoMatch)
	case 1:
		return candidates[0], nil
	}
	ids := make([]string, len(candidates))
	for i, s := range candidates {
		ids[i] = s.ID
	}
	return attendance.Student{}, &AmbiguousError{Query: query, StudentIDs: ids}
}
