package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/receiptq/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs     *service.JobService
	Callback *service.CallbackAuthenticator
	// Optional: deep health check; /health is not served when nil.
	Health *service.HealthService
	// MaxUploadSize caps receipt images; DefaultMaxUploadSize when zero.
	MaxUploadSize int64
	Logger        *slog.Logger
}

// NewRouter creates and configures the HTTP router wrapped in the middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	receipts := &ReceiptHandlers{Svc: services.Jobs, MaxFileSize: services.MaxUploadSize, Logger: logger}
	jobs := &JobHandlers{Svc: services.Jobs, Auth: services.Callback, Logger: logger}
	monitoring := &MonitoringHandlers{Health: services.Health, Jobs: services.Jobs, Logger: logger}

	mux.HandleFunc("POST /api/v1/receipts/upload", receipts.Upload)
	mux.HandleFunc("GET /api/v1/jobs", jobs.ListJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", jobs.GetJob)
	if services.Callback != nil {
		mux.HandleFunc("POST /api/v1/jobs/{id}/callback", jobs.Callback)
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if services.Health != nil {
		mux.HandleFunc("GET /health", monitoring.DeepHealth)
	}
	mux.HandleFunc("GET /monitoring/queue", monitoring.QueueStats)

	return Chain(mux, Recover(logger), Logging(logger), ServerTiming())
}
