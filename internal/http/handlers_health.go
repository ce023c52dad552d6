package httpx

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/target/receiptq/internal/service"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// MonitoringHandlers serves the deep health check and queue depth.
type MonitoringHandlers struct {
	Health *service.HealthService
	Jobs   *service.JobService
	Logger *slog.Logger
}

// DeepHealth probes the database and the broker.
func (h *MonitoringHandlers) DeepHealth(w http.ResponseWriter, r *http.Request) {
	report := h.Health.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, report)
}

// QueueStats reports broker queue counters.
func (h *MonitoringHandlers) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Jobs.QueueStats(r.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("queue stats unavailable", "error", err)
		}
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
