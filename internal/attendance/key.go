package attendance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Key binds an attendance session to one lecture. The persisted rows of the
// session are keyed by (student, Date, Subject, FacultyID).
type Key struct {
	ClassID     string `json:"class_id" validate:"required,max=64"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Subject     string `json:"subject" validate:"required,max=128"`
	ClassType   string `json:"class_type" validate:"omitempty,max=32"`
	FacultyID   string `json:"faculty_id" validate:"required,max=64"`
	FacultyName string `json:"faculty_name" validate:"omitempty,max=128"`
}

// Normalize trims surrounding whitespace from every field.
func (k Key) Normalize() Key {
	return Key{
		ClassID:     strings.TrimSpace(k.ClassID),
		Date:        strings.TrimSpace(k.Date),
		Subject:     strings.TrimSpace(k.Subject),
		ClassType:   strings.TrimSpace(k.ClassType),
		FacultyID:   strings.TrimSpace(k.FacultyID),
		FacultyName: strings.TrimSpace(k.FacultyName),
	}
}

// Validate checks required fields and the date layout.
func (k Key) Validate() error {
	err := validate.Struct(k)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate key: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "datetime":
			msgs = append(msgs, fe.Field()+" must be YYYY-MM-DD")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return &KeyError{Reasons: msgs}
}

// Slot identifies the lecture regardless of class type and faculty display
// name. At most one session may be active per slot.
func (k Key) Slot() string {
	return strings.Join([]string{k.ClassID, k.Date, k.Subject, k.FacultyID}, "|")
}

// KeyError lists the problems of an invalid session key.
type KeyError struct {
	Reasons []string
}

func (e *KeyError) Error() string {
	return "invalid session key: " + strings.Join(e.Reasons, "; ")
}
