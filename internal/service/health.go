package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/receiptq/internal/core"
)

// Component health states.
const (
	HealthOK       = "ok"
	HealthDegraded = "unavailable"
)

const defaultHealthTimeout = 3 * time.Second

// ComponentHealth is the outcome of a single dependency check.
type ComponentHealth struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// HealthReport aggregates dependency checks.
type HealthReport struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

// Healthy reports whether every component is ok.
func (r *HealthReport) Healthy() bool { return r.Status == HealthOK }

// HealthServiceOptions groups dependencies for HealthService.
type HealthServiceOptions struct {
	DB      core.Pinger    // Required: job record database
	Queue   core.TaskQueue // Required: broker, probed through QueueStats
	Timeout time.Duration  // Optional: per-check deadline
	Logger  *slog.Logger   // Optional: structured logger
}

// HealthService runs the deep health check behind /health.
type HealthService struct {
	checks  map[string]func(context.Context) error
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthService constructs a new HealthService.
func NewHealthService(opts HealthServiceOptions) (*HealthService, error) {
	if opts.DB == nil {
		return nil, errors.New("database pinger is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("TaskQueue is required")
	}
	s := &HealthService{
		checks: map[string]func(context.Context) error{
			"database": opts.DB.PingContext,
			"broker": func(ctx context.Context) error {
				_, err := opts.Queue.QueueStats(ctx)
				return err
			},
		},
		timeout: opts.Timeout,
	}
	if s.timeout <= 0 {
		s.timeout = defaultHealthTimeout
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With("component", "health_service")
	}
	return s, nil
}

// Check probes every dependency concurrently. It never returns an error;
// failures are reported per component.
func (s *HealthService) Check(ctx context.Context) *HealthReport {
	report := &HealthReport{Status: HealthOK, Components: make(map[string]ComponentHealth, len(s.checks))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for name, check := range s.checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			start := time.Now()
			err := check(cctx)
			ch := ComponentHealth{Status: HealthOK, Latency: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				ch.Status = HealthDegraded
				ch.Error = err.Error()
				if s.logger != nil {
					s.logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			report.Components[name] = ch
			if err != nil {
				report.Status = HealthDegraded
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}
