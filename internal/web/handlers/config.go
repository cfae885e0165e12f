package handlers

import (
	"net/http"

	"github.com/kozaktomas/rollcall/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	ConfidenceThreshold float64    `json:"confidence_threshold"`
	SessionIdleTimeout  string     `json:"session_idle_timeout"`
	Image               ImageLimit `json:"image"`
	RosterSource        string     `json:"roster_source"`
}

// ImageLimit describes what the upload endpoint accepts
type ImageLimit struct {
	MaxBytes     int64    `json:"max_bytes"`
	MinDimension int      `json:"min_dimension"`
	MaxDimension int      `json:"max_dimension"`
	Formats      []string `json:"formats"`
}

// Get returns the policy a client needs to drive a session
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response := ConfigResponse{
		ConfidenceThreshold: h.config.Policy.ConfidenceThreshold,
		SessionIdleTimeout:  h.config.Policy.SessionIdleTimeout.String(),
		Image: ImageLimit{
			MaxBytes:     h.config.Image.MaxBytes,
			MinDimension: h.config.Image.MinDimension,
			MaxDimension: h.config.Image.MaxDimension,
			Formats:      []string{"jpeg", "png", "bmp", "webp"},
		},
		RosterSource: h.config.Roster.Source,
	}

	respondJSON(w, http.StatusOK, response)
}
