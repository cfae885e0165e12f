// Package attendance holds the attendance domain types and the reconciliation
// of recognizer detections against a class roster.
package attendance

import (
	"fmt"
	"strings"
)

// Status is the attendance status recorded for a student.
type Status string

// Status values accepted by the reviewer and the record store.
const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	}
	return false
}

// ParseStatus parses a status case-insensitively.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("invalid status %q (want present, absent or late)", s)
	}
	return status, nil
}

// Source tells whether a decision came from the recognizer or from the reviewer.
type Source string

const (
	SourceAutoDetected Source = "auto_detected"
	SourceManual       Source = "manual"
)

// RecognitionMethod is the persisted form of a decision source.
func (s Source) RecognitionMethod() string {
	if s == SourceManual {
		return "manual"
	}
	return "face_recognition"
}

// Student is one roster entry as returned by the roster provider.
type Student struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number"`
}

// Region is a face bounding box in relative [0,1] image coordinates.
// Pixel is set when the recognizer reported raw pixels and the image
// dimensions were unknown.
type Region struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Pixel bool    `json:"pixel,omitempty"`
}

// Detection is one face found in the submitted photo.
// StudentID is empty when the recognizer could not match the face.
type Detection struct {
	Index      int     `json:"index"`
	Region     Region  `json:"region"`
	StudentID  string  `json:"student_id,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Matched reports whether the recognizer attached an identity to the face.
func (d Detection) Matched() bool {
	return d.StudentID != ""
}

// Decision is the attendance decision for one roster student.
type Decision struct {
	StudentID   string   `json:"student_id"`
	StudentName string   `json:"student_name"`
	RollNumber  string   `json:"roll_number,omitempty"`
	Status      Status   `json:"status"`
	Source      Source   `json:"source"`
	Confidence  *float64 `json:"confidence"`
	// DetectionIndex links back to the detection that produced the decision.
	DetectionIndex *int `json:"detection_index,omitempty"`
}
