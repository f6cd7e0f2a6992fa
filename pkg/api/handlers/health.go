package handlers

import (
	"net/http"
	"time"

	"github.com/dirlistener/dirlistener/internal/cli/health"
)

// HealthHandler serves the unauthenticated liveness probe.
type HealthHandler struct {
	startTime time.Time
}

// NewHealthHandler creates a health handler whose uptime is measured
// from the moment it is constructed (process start).
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startTime: time.Now()}
}

// Liveness handles GET /healthz. It always returns 200 as long as the
// HTTP server itself is answering requests; it says nothing about
// whether the dispatcher is making progress (see StatusHandler for
// that).
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)

	resp := health.Response{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	resp.Data.Service = "dirlistener"
	resp.Data.StartedAt = h.startTime.UTC().Format(time.RFC3339)
	resp.Data.Uptime = uptime.Round(time.Second).String()
	resp.Data.UptimeSec = int64(uptime.Seconds())

	writeJSON(w, http.StatusOK, resp)
}
