package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/hongminglow/channel-be/internal/apperr"
	"github.com/hongminglow/channel-be/internal/http/respond"
	"github.com/hongminglow/channel-be/internal/logger"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler returns uptime and readiness status.
type HealthHandler struct {
	startedAt time.Time
	store     Pinger
	log       *logger.Logger
}

// NewHealthHandler creates a health endpoint handler.
func NewHealthHandler(startedAt time.Time, store Pinger, log *logger.Logger) *HealthHandler {
	return &HealthHandler{startedAt: startedAt, store: store, log: log.Named("health")}
}

// Register wires the handler into a ServeMux.
func (h *HealthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /readyz", handle(h.log, h.handleReady))
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, "ok", map[string]string{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}

func (h *HealthHandler) handleReady(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		return apperr.Internal("store unavailable", err)
	}
	respond.JSON(w, http.StatusOK, "ready", map[string]string{"status": "ready"})
	return nil
}
