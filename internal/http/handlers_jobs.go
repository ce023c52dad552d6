// Package httpx provides the HTTP API for the receipt job queue.
package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/receiptq/internal/domain/model"
	apperrors "github.com/target/receiptq/internal/errors"
	"github.com/target/receiptq/internal/service"
)

// CallbackTokenHeader carries the shared secret on workflow callbacks.
const CallbackTokenHeader = "X-Callback-Token"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// JobHandlers serves job status queries and workflow callbacks.
type JobHandlers struct {
	Svc    *service.JobService
	Auth   *service.CallbackAuthenticator
	Logger *slog.Logger
}

// CallbackResponse acknowledges an accepted callback.
type CallbackResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

// GetJob returns the record for the job id in the path.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.PathValue("id"))
	if jobID == "" {
		WriteAppError(w, apperrors.ValidationField("id", "job id is required"))
		return
	}

	rec, err := h.Svc.QueryStatus(r.Context(), jobID)
	if err != nil {
		h.logServerError(r, "get job failed", err)
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// ListJobs returns recent records, optionally filtered by status.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	opts := model.JobListOptions{Limit: parseLimit(r, defaultListLimit, maxListLimit)}
	if raw := r.URL.Query().Get("status"); raw != "" {
		var status model.JobStatus
		if err := status.UnmarshalText([]byte(raw)); err != nil {
			WriteAppError(w, apperrors.ValidationField("status", err.Error()))
			return
		}
		opts.Status = &status
	}

	recs, err := h.Svc.ListJobs(r.Context(), opts)
	if err != nil {
		h.logServerError(r, "list jobs failed", err)
		WriteAppError(w, err)
		return
	}
	if recs == nil {
		recs = []*model.JobRecord{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": recs, "count": len(recs)})
}

// Callback applies a workflow completion report after checking the shared secret.
func (h *JobHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Auth.VerifyToken(r.Header.Get(CallbackTokenHeader)); err != nil {
		h.log().Warn("callback rejected", "path", r.URL.Path, "error", err)
		WriteAppError(w, err)
		return
	}

	jobID := strings.TrimSpace(r.PathValue("id"))
	if jobID == "" {
		WriteAppError(w, apperrors.ValidationField("id", "job id is required"))
		return
	}

	var report model.CompletionReport
	if !DecodeJSON(w, r, &report) {
		return
	}

	rec, err := h.Svc.ReportCompletion(r.Context(), jobID, report)
	if err != nil {
		h.logServerError(r, "callback failed", err)
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, CallbackResponse{Status: "ok", JobID: rec.JobID})
}

func (h *JobHandlers) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *JobHandlers) logServerError(r *http.Request, msg string, err error) {
	if ErrorStatus(err) < http.StatusInternalServerError {
		return
	}
	h.log().Error(msg, "path", r.URL.Path, "error", err)
}
