package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/gateway"
	"github.com/kozaktomas/rollcall/internal/roster"
	"github.com/kozaktomas/rollcall/internal/session"
)

// SessionsHandler handles the attendance review session endpoints.
type SessionsHandler struct {
	registry  *session.Registry
	maxUpload int64
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewSessionsHandler creates a sessions handler. maxImageBytes bounds the
// uploaded photo; multipart framing gets a small allowance on top.
func NewSessionsHandler(registry *session.Registry, maxImageBytes int64, logger *zap.Logger) *SessionsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionsHandler{
		registry:  registry,
		maxUpload: maxImageBytes + constants.UploadOverhead,
		heartbeat: constants.SSEHeartbeatInterval,
		logger:    logger.Named("sessions"),
	}
}

// StartRequest opens a session for a lecture.
type StartRequest struct {
	attendance.Key
	// Supersede cancels an active session for the same lecture instead of
	// resuming it.
	Supersede bool `json:"supersede"`
}

// DecisionsResponse is the reviewable state of a session.
type DecisionsResponse struct {
	State     session.State         `json:"state"`
	Decisions []attendance.Decision `json:"decisions"`
	Failed    []gateway.Failure     `json:"failed,omitempty"`
	Summary   *session.Summary      `json:"summary,omitempty"`
}

// UpdateDecisionRequest changes one student's status.
type UpdateDecisionRequest struct {
	Status string `json:"status"`
}

// ConfirmResponse reports the commit outcome.
type ConfirmResponse struct {
	State  session.State         `json:"state"`
	Result *gateway.CommitResult `json:"result"`
}

// Start handles POST /sessions. 201 for a new session, 200 when an active
// session for the lecture is resumed.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	s, created, err := h.registry.Start(r.Context(), req.Key, session.StartOptions{Supersede: req.Supersede})
	if err != nil {
		h.logger.Warn("failed to start session",
			zap.String("class_id", sanitizeForLog(req.ClassID)),
			zap.Error(err),
		)
		respondDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, s.Snapshot())
}

// Get handles GET /sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.Snapshot())
}

// Cancel handles DELETE /sessions/{id}.
func (h *SessionsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := s.Cancel(); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// SubmitImage handles POST /sessions/{id}/image. The photo is either the
// "image" field of a multipart form or the raw request body. Recognition
// runs to completion even if the client goes away; the outcome stays
// readable through the session and its event stream.
func (h *SessionsHandler) SubmitImage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	data, err := h.readImage(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondErrorKind(w, http.StatusRequestEntityTooLarge, "validation", "image exceeds the upload limit")
			return
		}
		respondErrorKind(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	snap, err := s.SubmitImage(context.WithoutCancel(r.Context()), data)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *SessionsHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		return io.ReadAll(r.Body)
	}

	if err := r.ParseMultipartForm(constants.MultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, errors.New("failed to parse multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, errors.New("image file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

// Decisions handles GET /sessions/{id}/decisions.
func (h *SessionsHandler) Decisions(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	snap := s.Snapshot()
	respondJSON(w, http.StatusOK, DecisionsResponse{
		State:     snap.State,
		Decisions: snap.Decisions,
		Failed:    snap.Failed,
		Summary:   snap.Summary,
	})
}

// UpdateDecision handles PUT /sessions/{id}/decisions/{studentId}. The
// student may be addressed by id, roll number or name.
func (h *SessionsHandler) UpdateDecision(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req UpdateDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		respondErrorKind(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	student, err := roster.Find(s.Roster(), chi.URLParam(r, "studentId"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	decision, err := s.SetStatus(student.ID, status)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, decision)
}

// Confirm handles POST /sessions/{id}/confirm. A partial failure still
// answers 200; the failed students are in the result and the session is back
// in reviewing. A client disconnect does not abort the writes.
func (h *SessionsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	result, err := s.Confirm(context.WithoutCancel(r.Context()), nil)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ConfirmResponse{State: s.State(), Result: result})
}

// Events handles GET /sessions/{id}/events.
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) (SSESource, error) {
			s, err := h.registry.Get(id)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		func(src SSESource) any {
			return src.(*session.Session).Snapshot()
		},
		h.heartbeat,
	)
}

func (h *SessionsHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing session ID")
		return nil, false
	}
	s, err := h.registry.Get(id)
	if err != nil {
		respondDomainError(w, err)
		return nil, false
	}
	return s, true
}
