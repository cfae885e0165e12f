package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/imagecheck"
	"github.com/kozaktomas/rollcall/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Create handlers
	sessionsHandler := handlers.NewSessionsHandler(s.deps.Registry, s.config.Image.MaxBytes, s.deps.Logger)
	configHandler := handlers.NewConfigHandler(s.config)
	healthHandler := handlers.NewHealthHandler(s.deps.Health)

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics)
	}

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)
		r.Get("/health/live", handlers.HealthCheck)
		r.Get("/config", configHandler.Get)

		// Review sessions
		r.Post("/sessions", sessionsHandler.Start)
		r.Get("/sessions/{id}", sessionsHandler.Get)
		r.Delete("/sessions/{id}", sessionsHandler.Cancel)
		r.Post("/sessions/{id}/image", sessionsHandler.SubmitImage)
		r.Get("/sessions/{id}/decisions", sessionsHandler.Decisions)
		r.Put("/sessions/{id}/decisions/{studentId}", sessionsHandler.UpdateDecision)
		r.Post("/sessions/{id}/confirm", sessionsHandler.Confirm)
		r.Get("/sessions/{id}/events", sessionsHandler.Events)

		// Saved attendance
		if s.deps.Records != nil {
			attendanceHandler := handlers.NewAttendanceHandler(s.deps.Records, s.deps.Logs)
			r.Get("/attendance", attendanceHandler.List)
			r.Get("/sessions/{id}/recognition-logs", attendanceHandler.RecognitionLogs)
		}

		// Face enrollment
		if s.deps.Training != nil {
			trainingHandler := handlers.NewTrainingHandler(s.deps.Training, imagecheck.New(s.config.Image), s.config.Image.MaxBytes, s.deps.Logger)
			r.Get("/students/{id}/face-training-status", trainingHandler.Status)
			r.Post("/students/{id}/face-training", trainingHandler.Train)
			r.Delete("/students/{id}/face-data", trainingHandler.DeleteFaceData)
		}
	})
}
