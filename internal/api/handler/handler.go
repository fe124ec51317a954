// Package handler provides HTTP handlers for the scheduler's status API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/albapepper/stock-notifier/internal/api/respond"
	"github.com/albapepper/stock-notifier/internal/notifications"
)

// Pinger checks database connectivity. *db.Pool implements it.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	db       Pinger
	runs     *RunHistory
	channels []notifications.Channel
	schedule string
}

// New creates a Handler.
func New(db Pinger, runs *RunHistory, channels []notifications.Channel, schedule string) *Handler {
	return &Handler{db: db, runs: runs, channels: channels, schedule: schedule}
}

// Root serves service info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":     "Stock Notifier",
		"status":   "running",
		"schedule": h.schedule,
		"channels": h.channels,
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// LastRun returns the most recent run record.
func (h *Handler) LastRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.runs.Last()
	if !ok {
		respond.WriteError(w, http.StatusNotFound, "NO_RUNS", "No run has completed yet")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, rec)
}

// Runs returns recent run records, newest first.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"runs": h.runs.Recent(),
	})
}
