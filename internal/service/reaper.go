package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/receiptq/config"
	"github.com/target/receiptq/internal/core"
	"github.com/target/receiptq/internal/domain/model"
	apperrors "github.com/target/receiptq/internal/errors"
	"github.com/target/receiptq/internal/observability/metrics"
	"github.com/target/receiptq/internal/observability/statsd"
)

// OrphanMessage is the result message recorded on jobs failed by the orphan sweep.
const OrphanMessage = "enqueue never confirmed"

// StalledMessage is the result message recorded on jobs whose started task expired from the broker.
const StalledMessage = "task lost while processing"

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Store     core.JobRecordMaintenance // Required: stale listing and retention
	Reporter  core.CompletionReporter   // Required: applies the failure status to orphans
	Inspector core.TaskInspector        // Required: broker lookup for queued records
	Reclaimer core.TaskReclaimer        // Optional: requeues started tasks whose worker vanished
	Config    config.ReaperConfig       // Required: reaper configuration
	Logger    *slog.Logger              // Optional: structured logger
	Metrics   statsd.Sink               // Optional: metrics sink (StatsD-compatible)
	Now       func() time.Time          // Optional: clock, time.Now by default
}

// ReaperService fails orphaned QUEUED records, requeues stalled started
// tasks and purges old terminal records.
//
// An orphan is a record still QUEUED after Config.OrphanAfter whose task the
// broker no longer holds, typically because the submit-time enqueue failed.
// A stalled task is one a worker popped but never acked or failed within its
// timeout plus Config.StallGrace, typically because the worker died.
type ReaperService struct {
	store     core.JobRecordMaintenance
	reporter  core.CompletionReporter
	inspector core.TaskInspector
	reclaimer core.TaskReclaimer
	config    config.ReaperConfig
	logger    *slog.Logger
	metrics   statsd.Sink
	now       func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("JobRecordMaintenance is required")
	case opts.Reporter == nil:
		return nil, errors.New("CompletionReporter is required")
	case opts.Inspector == nil:
		return nil, errors.New("TaskInspector is required")
	}

	s := &ReaperService{
		store:     opts.Store,
		reporter:  opts.Reporter,
		inspector: opts.Inspector,
		reclaimer: opts.Reclaimer,
		config:    opts.Config,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With("component", "reaper_service")
		s.logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"orphan_after", opts.Config.OrphanAfter,
			"stall_grace", opts.Config.StallGrace,
			"reclaim", opts.Reclaimer != nil,
			"retention", opts.Config.Retention,
		)
	}
	return s, nil
}

// Run sweeps at the configured interval until ctx is cancelled.
// It returns nil on graceful shutdown.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return fmt.Errorf("reaper interval must be positive, got %s", s.config.Interval)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logSweepError(err)
		}
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitWithJitter delays up to 10% of the interval so replicas do not sweep in lockstep.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	t := time.NewTimer(jitter)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// RunOnce performs one orphan sweep, one stalled-task reclaim when a
// reclaimer is configured, and one retention purge.
// A failing step does not prevent the next one from running.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	type step struct {
		label      string
		transition string
		fn         func(context.Context) (int64, error)
	}
	steps := []step{{label: "orphan sweep", transition: metrics.TransitionOrphan, fn: s.SweepOrphans}}
	if s.reclaimer != nil {
		steps = append(steps, step{label: "stalled reclaim", transition: metrics.TransitionReclaim, fn: s.ReclaimStalled})
	}
	steps = append(steps, step{label: "retention purge", transition: metrics.TransitionPurge, fn: s.PurgeExpired})

	var errs []error
	for _, step := range steps {
		start := s.now()
		n, err := step.fn(ctx)
		s.emitStep(step.transition, n, s.now().Sub(start), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
		}
	}
	return errors.Join(errs...)
}

// SweepOrphans fails one batch of stale QUEUED records whose task is missing
// from the broker. All lookups happen before any record is touched, so a
// broker error leaves the whole batch untouched.
func (s *ReaperService) SweepOrphans(ctx context.Context) (int64, error) {
	stale, err := s.store.ListStale(ctx, model.StaleJobQuery{
		Status:    model.JobStatusQueued,
		OlderThan: s.now().Add(-s.config.OrphanAfter),
		Limit:     s.config.BatchSize,
	})
	if err != nil {
		return 0, err
	}

	orphans := make([]string, 0, len(stale))
	for _, rec := range stale {
		held, err := s.inspector.TaskExists(ctx, rec.JobID)
		if err != nil {
			return 0, fmt.Errorf("check task %s: %w", rec.JobID, err)
		}
		if !held {
			orphans = append(orphans, rec.JobID)
		}
	}

	var failed int64
	for _, jobID := range orphans {
		_, err := s.reporter.ReportCompletion(ctx, jobID, model.CompletionReport{
			Status:  model.JobStatusFailure,
			Message: OrphanMessage,
		})
		switch {
		case err == nil:
			failed++
		case apperrors.IsConflict(err), apperrors.IsNotFound(err):
			// Completed or purged since it was listed.
			continue
		default:
			return failed, fmt.Errorf("fail orphan %s: %w", jobID, err)
		}
	}

	if failed > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed orphaned jobs",
			"count", failed,
			"checked", len(stale),
			"orphan_after", s.config.OrphanAfter,
		)
	}
	return failed, nil
}

// ReclaimStalled returns one batch of stalled started tasks to the queue so
// another worker runs them. A stalled task whose hash already expired cannot
// be rerun; its job is failed instead. It returns the number of tasks requeued
// plus jobs failed.
func (s *ReaperService) ReclaimStalled(ctx context.Context) (int64, error) {
	if s.reclaimer == nil {
		return 0, nil
	}
	ids, err := s.reclaimer.StalledTasks(ctx, s.config.StallGrace, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	var requeued, lost int64
	for _, jobID := range ids {
		res, err := s.reclaimer.ReclaimTask(ctx, jobID, s.config.StallGrace)
		if err != nil {
			return requeued + lost, fmt.Errorf("reclaim task %s: %w", jobID, err)
		}
		switch res {
		case model.ReclaimRequeued:
			requeued++
		case model.ReclaimLost:
			_, err := s.reporter.ReportCompletion(ctx, jobID, model.CompletionReport{
				Status:  model.JobStatusFailure,
				Message: StalledMessage,
			})
			switch {
			case err == nil:
				lost++
			case apperrors.IsConflict(err), apperrors.IsNotFound(err):
				continue
			default:
				return requeued + lost, fmt.Errorf("fail lost task %s: %w", jobID, err)
			}
		case model.ReclaimNotStalled:
			// Acked, failed or reclaimed by another replica since it was listed.
		}
	}

	if requeued+lost > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "reclaimed stalled tasks",
			"requeued", requeued,
			"failed", lost,
			"checked", len(ids),
			"stall_grace", s.config.StallGrace,
		)
	}
	return requeued + lost, nil
}

// PurgeExpired deletes terminal records completed more than Config.Retention ago.
// A zero retention disables purging.
func (s *ReaperService) PurgeExpired(ctx context.Context) (int64, error) {
	if s.config.Retention <= 0 {
		return 0, nil
	}
	n, err := s.store.PurgeCompleted(ctx, model.PurgeJobsParams{
		CompletedBefore: s.now().Add(-s.config.Retention),
		BatchSize:       s.config.BatchSize,
	})
	if err != nil {
		return n, err
	}
	if n > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "purged completed jobs", "count", n, "retention", s.config.Retention)
	}
	metrics.EmitPurged(s.metrics, n)
	return n, nil
}

func (s *ReaperService) emitStep(transition string, n int64, elapsed time.Duration, err error) {
	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case n == 0:
		result = metrics.ResultNoop
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: transition,
		Result:     result,
		Duration:   elapsed,
		Err:        suppressContextCancellation(err),
	})
}

func (s *ReaperService) logSweepError(err error) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug("reaper sweep cancelled by context", "error", err)
		return
	}
	s.logger.Error("reaper sweep failed", "error", err)
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
