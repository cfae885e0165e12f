package recognizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrFaceDataNotFound means the service holds no face data for the student.
var ErrFaceDataNotFound = errors.New("face data not found")

// recognizeResponse is the body of POST /recognize.
type recognizeResponse struct {
	Success       bool         `json:"success"`
	Message       string       `json:"message"`
	FacesDetected int          `json:"faces_detected"`
	Results       []faceResult `json:"recognition_results"`
}

// faceResult is one detected face. The service reports unmatched faces with
// a null student_id and a zero confidence.
type faceResult struct {
	StudentID      json.RawMessage `json:"student_id"`
	Confidence     *float64        `json:"confidence"`
	BBox           []float64       `json:"bbox"` // [x1, y1, x2, y2] in pixels
	DetectionScore float64         `json:"detection_score"`
}

// studentID returns the matched id, accepting both JSON strings and numbers.
func (f faceResult) studentID() string {
	raw := bytes.TrimSpace(f.StudentID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// errorResponse is the error body of the recognition service.
type errorResponse struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// TrainingStatus tells whether a student has a usable face embedding.
type TrainingStatus struct {
	StudentID          string  `json:"student_id"`
	Trained            bool    `json:"trained"`
	EmbeddingAvailable bool    `json:"embedding_available"`
	TrainingDate       *string `json:"training_date"`
	ImagesCount        int     `json:"images_count"`
	RecognitionEnabled *bool   `json:"recognition_enabled,omitempty"`
	PersonName         string  `json:"person_name,omitempty"`
}

// StudentInfo is the student_data of an enrollment.
type StudentInfo struct {
	StudentID  string `json:"student_id"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number,omitempty"`
	ClassID    string `json:"class_id,omitempty"`
}

// TrainingResult is the answer to an enrollment.
type TrainingResult struct {
	Success             bool    `json:"success"`
	Message             string  `json:"message"`
	StudentID           string  `json:"student_id"`
	ImagesProcessed     int     `json:"images_processed"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}
