// Package handler exposes the sync socket and the operational endpoints over
// HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"facestore/internal/facestore/health"
	"facestore/internal/facestore/metrics"
	"facestore/internal/facestore/session"
)

const (
	defaultMaxMessageBytes = 5 * 1024 * 1024
	readyTimeout           = 2 * time.Second
)

// RequestHandler processes inbound text frames.
type RequestHandler interface {
	Handle(ctx context.Context, sess *session.Session, text []byte)
}

// Snapshotter provides the health view.
type Snapshotter interface {
	Snapshot() health.Snapshot
}

// Check probes one backing dependency.
type Check func(ctx context.Context) error

// Config bounds socket traffic and lists readiness checks.
type Config struct {
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	Checks          map[string]Check
}

// Handler wires the socket and health endpoints to the sync engine.
type Handler struct {
	registry *session.Registry
	requests RequestHandler
	health   Snapshotter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cfg      Config
}

// New constructs a handler with its dependencies.
func New(registry *session.Registry, requests RequestHandler, snap Snapshotter, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Handler {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	return &Handler{
		registry: registry,
		requests: requests,
		health:   snap,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
	}
}

// Register mounts the facestore endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/face-store", h.HandleSocket)
	r.Get("/health", h.HandleHealth)
	r.Get("/health/ready", h.HandleReady)
}

// HandleHealth handles GET /health. Both UP and UNKNOWN answer 200.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Snapshot())
}

// HandleReady handles GET /health/ready. It answers 503 when any dependency
// check fails.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.cfg.Checks))
	for name, check := range h.cfg.Checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			h.logger.WarnContext(ctx, "readiness check failed",
				"request_id", middleware.GetReqID(r.Context()),
				"check", name,
				"error", err.Error(),
			)
			continue
		}
		results[name] = "ok"
	}
	ready := "UP"
	if status != http.StatusOK {
		ready = "DOWN"
	}
	writeJSON(w, status, map[string]any{"status": ready, "checks": results})
}

// NewRouter builds the process router. metricsHandler is mounted at /metrics
// when non-nil.
func NewRouter(h *Handler, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	h.Register(r)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
