package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/imagecheck"
	"github.com/kozaktomas/rollcall/internal/recognizer"
)

// FaceTrainer manages student face enrollment on the recognition service.
type FaceTrainer interface {
	TrainingStatus(ctx context.Context, studentID string) (*recognizer.TrainingStatus, error)
	TrainStudent(ctx context.Context, info recognizer.StudentInfo, images []*imagecheck.Image) (*recognizer.TrainingResult, error)
	DeleteFaceData(ctx context.Context, studentID string) error
}

// TrainingHandler forwards face enrollment requests to the recognition service.
type TrainingHandler struct {
	trainer   FaceTrainer
	images    *imagecheck.Checker
	maxUpload int64
	logger    *zap.Logger
}

// NewTrainingHandler creates a training handler. Enrollment portraits are
// validated with images; the upload may carry up to
// constants.MaxTrainingImages of them.
func NewTrainingHandler(trainer FaceTrainer, images *imagecheck.Checker, maxImageBytes int64, logger *zap.Logger) *TrainingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrainingHandler{
		trainer:   trainer,
		images:    images,
		maxUpload: maxImageBytes*constants.MaxTrainingImages + constants.UploadOverhead,
		logger:    logger.Named("training"),
	}
}

// Status handles GET /students/{id}/face-training-status.
func (h *TrainingHandler) Status(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	if studentID == "" {
		respondError(w, http.StatusBadRequest, "missing student ID")
		return
	}

	status, err := h.trainer.TrainingStatus(r.Context(), studentID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Train handles POST /students/{id}/face-training. The form carries the
// student's name plus optional roll_number and class_id fields, and one or
// more portraits as "images" files.
func (h *TrainingHandler) Train(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	if studentID == "" {
		respondError(w, http.StatusBadRequest, "missing student ID")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(constants.MultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondErrorKind(w, http.StatusRequestEntityTooLarge, "validation", "images exceed the upload limit")
			return
		}
		respondErrorKind(w, http.StatusBadRequest, "validation", "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	info := recognizer.StudentInfo{
		StudentID:  studentID,
		Name:       strings.TrimSpace(r.FormValue("name")),
		RollNumber: strings.TrimSpace(r.FormValue("roll_number")),
		ClassID:    strings.TrimSpace(r.FormValue("class_id")),
	}
	if info.Name == "" {
		respondErrorKind(w, http.StatusBadRequest, "validation", "name is required")
		return
	}

	images, err := h.readImages(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	result, err := h.trainer.TrainStudent(r.Context(), info, images)
	if err != nil {
		h.logger.Warn("face enrollment failed",
			zap.String("student_id", sanitizeForLog(studentID)),
			zap.Error(err),
		)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *TrainingHandler) readImages(r *http.Request) ([]*imagecheck.Image, error) {
	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		return nil, &attendance.ValidationError{Field: "images", Reason: "at least one image is required"}
	}
	if len(files) > constants.MaxTrainingImages {
		return nil, &attendance.ValidationError{Field: "images", Reason: fmt.Sprintf("at most %d images are accepted", constants.MaxTrainingImages)}
	}

	images := make([]*imagecheck.Image, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, &attendance.ValidationError{Field: "images", Reason: "failed to read " + fh.Filename}
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, &attendance.ValidationError{Field: "images", Reason: "failed to read " + fh.Filename}
		}
		img, err := h.images.Check(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// DeleteFaceData handles DELETE /students/{id}/face-data.
func (h *TrainingHandler) DeleteFaceData(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	if studentID == "" {
		respondError(w, http.StatusBadRequest, "missing student ID")
		return
	}

	if err := h.trainer.DeleteFaceData(r.Context(), studentID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
