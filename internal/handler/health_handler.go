package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/service"
)

const healthTimeout = 5 * time.Second

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	state  *service.State
	logger zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(state *service.State, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		state:  state,
		logger: logger.With().Str("handler", "health").Logger(),
	}
}

// RegisterRoutes registers health routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
}

// handleHealth reports that the process is serving requests.
func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// handleReady reports whether the storage backend is initialized and reachable.
func (h *HealthHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	services, err := h.state.Services()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "initializing"})
		return
	}

	if services.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := services.Health(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Error: err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ready"})
}
