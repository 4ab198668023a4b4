// Package handler provides HTTP handlers for Alexander DocStore.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/metrics"
	"github.com/prn-tf/alexander-docstore/internal/service"
)

// Router handles HTTP routing for the document API.
type Router struct {
	documentHandler *DocumentHandler
	healthHandler   *HealthHandler
	metrics         *metrics.Metrics
	corsOrigins     []string
	logger          zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	// State is the readiness gate shared with the server startup.
	State *service.State

	// MaxUploadSize caps uploaded files in bytes.
	MaxUploadSize int64

	// Metrics records request metrics. Optional.
	Metrics *metrics.Metrics

	// CORSOrigins lists allowed origins. Empty disables CORS headers.
	CORSOrigins []string

	Logger zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	return &Router{
		documentHandler: NewDocumentHandler(DocumentHandlerConfig{
			State:         config.State,
			MaxUploadSize: config.MaxUploadSize,
			Logger:        config.Logger,
		}),
		healthHandler: NewHealthHandler(config.State, config.Logger),
		metrics:       config.Metrics,
		corsOrigins:   config.CORSOrigins,
		logger:        config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(rt.logger))
	r.Use(Recoverer(rt.logger))
	r.Use(Instrument(rt.metrics))
	if len(rt.corsOrigins) > 0 {
		r.Use(CORS(rt.corsOrigins))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
	})

	rt.healthHandler.RegisterRoutes(r)
	rt.documentHandler.RegisterRoutes(r)

	return r
}
