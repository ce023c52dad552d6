package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/receiptq/internal/core"
	"github.com/target/receiptq/internal/domain/model"
	apperrors "github.com/target/receiptq/internal/errors"
	"github.com/target/receiptq/internal/observability/metrics"
	"github.com/target/receiptq/internal/observability/statsd"
	"github.com/target/receiptq/internal/observability/tracing"
)

// DefaultTaskTimeout bounds worker execution when no timeout is configured.
const DefaultTaskTimeout = 300 * time.Second

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Store          core.JobRecordStore // Required: job record store
	Queue          core.TaskQueue      // Required: broker producer
	Inspector      core.TaskInspector  // Optional: lets Requeue refuse jobs whose task is still held
	DefaultTimeout time.Duration       // Optional: worker execution bound for new tasks
	Logger         *slog.Logger        // Optional: structured logger
	Metrics        statsd.Sink         // Optional: metrics sink
	Tracer         *tracing.Tracer     // Optional: span helper; global provider when nil
	NewID          func() string       // Optional: job id generator, uuid v4 by default
	Now            func() time.Time    // Optional: clock for duration metrics
}

// JobService coordinates the job lifecycle: it persists the record, hands the
// task to the broker and applies completion reports.
//
// It holds no goroutines and is safe for concurrent use.
type JobService struct {
	store          core.JobRecordStore
	queue          core.TaskQueue
	inspector      core.TaskInspector
	defaultTimeout time.Duration
	logger         *slog.Logger
	metrics        statsd.Sink
	tracer         *tracing.Tracer
	newID          func() string
	now            func() time.Time
}

var _ core.CompletionReporter = (*JobService)(nil)

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobRecordStore is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("TaskQueue is required")
	}

	s := &JobService{
		store:          opts.Store,
		queue:          opts.Queue,
		inspector:      opts.Inspector,
		defaultTimeout: opts.DefaultTimeout,
		metrics:        opts.Metrics,
		tracer:         opts.Tracer,
		newID:          opts.NewID,
		now:            opts.Now,
	}
	if s.defaultTimeout <= 0 {
		s.defaultTimeout = DefaultTaskTimeout
	}
	if s.tracer == nil {
		s.tracer = tracing.NewTracer(nil)
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With("component", "job_service")
		s.logger.Debug("JobService initialized", "default_timeout", s.defaultTimeout)
	}
	return s, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Submit records a new QUEUED job and enqueues its task.
//
// When the enqueue fails the error is returned and the record stays QUEUED;
// the reaper later fails it if the broker never received the task.
func (s *JobService) Submit(ctx context.Context, req model.SubmitRequest) (res *model.SubmitResult, err error) {
	start := s.now()
	jobID, err := s.resolveJobID(req.JobID)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.StartSubmit(ctx, jobID, len(req.Payload))
	defer func() {
		tracing.End(span, err)
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Operation:  model.OperationTriggerWorkflow,
			Transition: metrics.TransitionSubmit,
			Status:     model.JobStatusQueued,
			Duration:   s.now().Sub(start),
			Err:        err,
		})
	}()

	if len(req.Payload) == 0 {
		return nil, apperrors.ValidationField("payload", "payload is required")
	}

	rec, err := s.createRecord(ctx, req, jobID)
	if err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, req, rec.JobID); err != nil {
		s.logWarn(ctx, "enqueue failed, record left queued", "job_id", rec.JobID, "error", err)
		return nil, err
	}

	s.logDebug(ctx, "job submitted", "job_id", rec.JobID, "bytes", len(req.Payload))
	return &model.SubmitResult{JobID: rec.JobID, Status: rec.Status}, nil
}

// ReportCompletion applies a status report to the job's record.
func (s *JobService) ReportCompletion(
	ctx context.Context,
	jobID string,
	report model.CompletionReport,
) (rec *model.JobRecord, err error) {
	ctx, span := s.tracer.StartReport(ctx, jobID, string(report.Status))
	defer func() {
		tracing.End(span, err)
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: metrics.TransitionReport,
			Status:     report.Status,
			Err:        err,
		})
	}()

	if !report.Status.Reportable() {
		return nil, apperrors.ValidationField("status",
			fmt.Sprintf("status must be one of processing, success, failure; got %q", report.Status))
	}

	timing := tracing.StartTiming(ctx, "store", "update job record")
	rec, err = s.store.UpdateStatus(ctx, model.UpdateJobStatusRequest{
		JobID:        jobID,
		Status:       report.Status,
		Message:      strings.TrimSpace(report.Message),
		ReferenceURL: strings.TrimSpace(report.ReferenceURL),
	})
	timing.Stop()
	if err != nil {
		return nil, err
	}

	s.logInfo(ctx, "job status updated", "job_id", jobID, "status", rec.Status)
	return rec, nil
}

// QueryStatus returns the current record for jobID.
func (s *JobService) QueryStatus(ctx context.Context, jobID string) (rec *model.JobRecord, err error) {
	ctx, span := s.tracer.StartQuery(ctx, "receiptq.query_status", jobID)
	defer func() { tracing.End(span, err) }()

	timing := tracing.StartTiming(ctx, "store", "get job record")
	defer timing.Stop()
	return s.store.Get(ctx, jobID)
}

// ListJobs returns recent records, newest first.
func (s *JobService) ListJobs(ctx context.Context, opts model.JobListOptions) (recs []*model.JobRecord, err error) {
	ctx, span := s.tracer.StartQuery(ctx, "receiptq.list_jobs", "")
	defer func() { tracing.End(span, err) }()

	if opts.Status != nil && !opts.Status.Valid() {
		return nil, apperrors.ValidationField("status", fmt.Sprintf("unknown status %q", *opts.Status))
	}

	timing := tracing.StartTiming(ctx, "store", "list job records")
	defer timing.Stop()
	return s.store.List(ctx, opts)
}

// QueueStats returns the broker's queue counters.
func (s *JobService) QueueStats(ctx context.Context) (stats *model.QueueStats, err error) {
	ctx, span := s.tracer.StartQuery(ctx, "receiptq.queue_stats", "")
	defer func() { tracing.End(span, err) }()

	timing := tracing.StartTiming(ctx, "broker", "queue stats")
	defer timing.Stop()
	stats, err = s.queue.QueueStats(ctx)
	if err != nil {
		return nil, err
	}
	metrics.EmitQueueDepth(s.metrics, stats)
	return stats, nil
}

// Requeue enqueues a fresh task for an existing QUEUED record, typically an
// orphan whose original enqueue failed. req supplies the payload again.
func (s *JobService) Requeue(ctx context.Context, jobID string, req model.SubmitRequest) (err error) {
	ctx, span := s.tracer.StartSubmit(ctx, jobID, len(req.Payload))
	defer func() {
		tracing.End(span, err)
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Operation:  model.OperationTriggerWorkflow,
			Transition: metrics.TransitionRequeue,
			Err:        err,
		})
	}()

	if len(req.Payload) == 0 {
		return apperrors.ValidationField("payload", "payload is required")
	}

	rec, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if rec.Status != model.JobStatusQueued {
		return apperrors.Conflictf("job %s is %s, only queued jobs can be requeued", jobID, rec.Status)
	}
	if s.inspector != nil {
		held, err := s.inspector.TaskExists(ctx, jobID)
		if err != nil {
			return err
		}
		if held {
			return apperrors.Conflictf("job %s still has a task in the broker", jobID)
		}
	}

	if req.Filename == "" && rec.Filename != nil {
		req.Filename = *rec.Filename
	}
	if req.ExternalReferenceID == "" && rec.ExternalReferenceID != nil {
		req.ExternalReferenceID = *rec.ExternalReferenceID
	}
	if err := s.enqueue(ctx, req, jobID); err != nil {
		return err
	}

	s.logInfo(ctx, "job requeued", "job_id", jobID)
	return nil
}

func (s *JobService) resolveJobID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.newID(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", apperrors.ValidationField("job_id", "job id must be a UUID")
	}
	return id.String(), nil
}

func (s *JobService) createRecord(
	ctx context.Context,
	req model.SubmitRequest,
	jobID string,
) (*model.JobRecord, error) {
	timing := tracing.StartTiming(ctx, "store", "create job record")
	defer timing.Stop()

	return s.store.Create(ctx, model.CreateJobRecordRequest{
		JobID:               jobID,
		Filename:            optional(req.Filename),
		ExternalReferenceID: optional(req.ExternalReferenceID),
	})
}

func (s *JobService) enqueue(ctx context.Context, req model.SubmitRequest, jobID string) error {
	timing := tracing.StartTiming(ctx, "broker", "enqueue task")
	defer timing.Stop()

	return s.queue.Enqueue(ctx, &model.QueueTask{
		JobID:               jobID,
		Operation:           model.OperationTriggerWorkflow,
		Payload:             req.Payload,
		Filename:            req.Filename,
		ExternalReferenceID: req.ExternalReferenceID,
		ContentType:         req.ContentType,
		Timeout:             s.defaultTimeout,
	})
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *JobService) logDebug(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.DebugContext(ctx, msg, args...)
	}
}

func (s *JobService) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, msg, args...)
	}
}

func (s *JobService) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, args...)
	}
}
