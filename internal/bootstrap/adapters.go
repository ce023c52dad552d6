package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/receiptq/config"
	"github.com/target/receiptq/internal/adapters/jobrunner"
	"github.com/target/receiptq/internal/adapters/reaper"
	"github.com/target/receiptq/internal/broker"
	"github.com/target/receiptq/internal/core"
	"github.com/target/receiptq/internal/domain/model"
	"github.com/target/receiptq/internal/observability/statsd"
	"github.com/target/receiptq/internal/observability/tracing"
)

// WorkerConfig contains configuration for the queue worker.
type WorkerConfig struct {
	Broker   *broker.Client
	Reporter core.CompletionReporter
	Worker   config.WorkerConfig
	Workflow config.WorkflowConfig
	BaseURL  string
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Tracer   *tracing.Tracer
}

// RunWorker drains the broker queue and triggers the workflow webhook for each task.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	if cfg.Broker == nil {
		return errors.New("broker client is required")
	}

	trigger, err := jobrunner.NewWorkflowTrigger(jobrunner.WorkflowTriggerOptions{
		WebhookURL: cfg.Workflow.WebhookURL,
		APIKey:     cfg.Workflow.APIKey,
		BaseURL:    cfg.BaseURL,
		VerifySSL:  cfg.Workflow.VerifySSL,
		Timeout:    cfg.Workflow.Timeout,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create workflow trigger: %w", err)
	}

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Source:   cfg.Broker,
		Reporter: cfg.Reporter,
		Handlers: map[model.Operation]jobrunner.HandlerFunc{
			model.OperationTriggerWorkflow: trigger.Handle,
		},
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
		Tracer:      cfg.Tracer,
		Reconnect:   cfg.Broker.Connect,
		Concurrency: cfg.Worker.Concurrency,
		PollWait:    cfg.Worker.PollWait,
	})
	if err != nil {
		return fmt.Errorf("create job runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for the reaper service.
type ReaperConfig struct {
	Store     core.JobRecordMaintenance
	Reporter  core.CompletionReporter
	Inspector core.TaskInspector
	Reclaimer core.TaskReclaimer
	Config    config.ReaperConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// RunReaper fails orphaned records, requeues stalled tasks and purges expired records on an interval.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Store:     cfg.Store,
		Reporter:  cfg.Reporter,
		Inspector: cfg.Inspector,
		Reclaimer: cfg.Reclaimer,
		Config:    cfg.Config,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper: %w", err)
	}

	return runner.Run(ctx)
}
