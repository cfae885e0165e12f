package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/recognizer"
	"github.com/kozaktomas/rollcall/internal/roster"
	"github.com/kozaktomas/rollcall/internal/session"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErrorKind sends an error response with a machine readable kind.
func respondErrorKind(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, map[string]string{"error": message, "kind": kind})
}

// respondDomainError maps session, recognition and store errors to HTTP
// responses. The kind lets a client tell a bad photo from a service outage.
func respondDomainError(w http.ResponseWriter, err error) {
	var (
		verr   *attendance.ValidationError
		kerr   *attendance.KeyError
		recErr *attendance.RecognitionError
		inv    *attendance.InvariantError
		terr   *session.TransitionError
		amb    *roster.AmbiguousError
	)

	switch {
	case errors.As(err, &verr):
		respondErrorKind(w, http.StatusBadRequest, "validation", err.Error())
	case errors.As(err, &kerr):
		respondErrorKind(w, http.StatusBadRequest, "validation", err.Error())
	case errors.As(err, &amb):
		respondErrorKind(w, http.StatusBadRequest, "ambiguous", err.Error())
	case errors.As(err, &recErr):
		status := http.StatusBadGateway
		switch recErr.Kind {
		case attendance.RecognitionTimeout:
			status = http.StatusGatewayTimeout
		case attendance.RecognitionInvalidImage:
			status = http.StatusUnprocessableEntity
		}
		respondErrorKind(w, status, "recognition_"+string(recErr.Kind), err.Error())
	case errors.As(err, &inv):
		respondErrorKind(w, http.StatusUnprocessableEntity, "invariant", err.Error())
	case errors.As(err, &terr):
		respondErrorKind(w, http.StatusConflict, "state", err.Error())
	case errors.Is(err, session.ErrDiscarded):
		respondErrorKind(w, http.StatusConflict, "discarded", err.Error())
	case errors.Is(err, session.ErrNotFound):
		respondErrorKind(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, session.ErrUnknownStudent), errors.Is(err, roster.ErrNoMatch):
		respondErrorKind(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, recognizer.ErrFaceDataNotFound):
		respondErrorKind(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, database.ErrClassNotFound):
		respondErrorKind(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, database.ErrUnavailable):
		respondErrorKind(w, http.StatusServiceUnavailable, "unavailable", "record store unavailable")
	default:
		respondErrorKind(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthHandler reports the health of the service and its dependencies.
type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler creates a health handler probing the given dependencies.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Check handles the health check endpoint. Any failing dependency turns the
// response into 503.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body[name] = err.Error()
			continue
		}
		body[name] = "ok"
	}
	respondJSON(w, status, body)
}

// HealthCheck handles the liveness endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
