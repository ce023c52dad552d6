// Package reaper runs the orphan sweep, stalled-task reclaim and retention loop as a standalone service mode.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/receiptq/config"
	"github.com/target/receiptq/internal/core"
	"github.com/target/receiptq/internal/observability/statsd"
	"github.com/target/receiptq/internal/service"
)

// Runner adapts service.ReaperService to the process supervisor.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Store     core.JobRecordMaintenance
	Reporter  core.CompletionReporter
	Inspector core.TaskInspector
	Reclaimer core.TaskReclaimer
	Config    config.ReaperConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Store:     opts.Store,
		Reporter:  opts.Reporter,
		Inspector: opts.Inspector,
		Reclaimer: opts.Reclaimer,
		Config:    opts.Config,
		Logger:    opts.Logger,
		Metrics:   opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger.With("component", "reaper_runner")}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Store == nil {
		return errors.New("job record store is required")
	}
	if opts.Config.Interval <= 0 {
		return errors.New("reaper interval must be positive")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
