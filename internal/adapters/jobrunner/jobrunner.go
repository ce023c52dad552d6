// Package jobrunner drains the broker queue and executes receipt tasks.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/target/receiptq/internal/backoff"
	"github.com/target/receiptq/internal/broker"
	"github.com/target/receiptq/internal/core"
	"github.com/target/receiptq/internal/domain/model"
	apperrors "github.com/target/receiptq/internal/errors"
	"github.com/target/receiptq/internal/observability/metrics"
	"github.com/target/receiptq/internal/observability/statsd"
	"github.com/target/receiptq/internal/observability/tracing"
)

// HandlerFunc executes one task. A returned error fails the job.
type HandlerFunc func(ctx context.Context, task *model.QueueTask) error

const (
	defaultPollWait = 5 * time.Second
	// cleanupTimeout bounds the ack/fail bookkeeping that outlives the task context.
	cleanupTimeout = 10 * time.Second
	// checksumMismatch is the failure reason for tasks whose payload was altered in the broker.
	checksumMismatch = "payload checksum mismatch"
)

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Source   core.TaskSource                 // Required: broker consumer
	Reporter core.CompletionReporter         // Required: job record status updates
	Handlers map[model.Operation]HandlerFunc // Required: one handler per model.Operations()
	Logger   *slog.Logger                    // Optional: structured logger
	Metrics  statsd.Sink                     // Optional: metrics sink
	Tracer   *tracing.Tracer                 // Optional: span helper

	// Reconnect is called after a connectivity error from the source, if set.
	Reconnect func(ctx context.Context) error

	Concurrency int               // number of worker goroutines; defaults to 1
	PollWait    time.Duration     // dequeue block time; defaults to 5s
	ErrBackoff  backoff.Strategy  // delay after consecutive dequeue errors
	Sleep       backoff.SleepFunc // waits out ErrBackoff delays
}

// Runner pulls tasks from the broker and dispatches them by operation.
type Runner struct {
	source     core.TaskSource
	reporter   core.CompletionReporter
	handlers   map[model.Operation]HandlerFunc
	reconnect  func(ctx context.Context) error
	logger     *slog.Logger
	metrics    statsd.Sink
	tracer     *tracing.Tracer
	workers    int
	pollWait   time.Duration
	errBackoff backoff.Strategy
	sleep      backoff.SleepFunc
}

// NewRunner validates the handler table and constructs a Runner.
// Every declared operation must have a handler so dispatch can never miss at runtime.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Source == nil {
		return nil, errors.New("TaskSource is required")
	}
	if opts.Reporter == nil {
		return nil, errors.New("CompletionReporter is required")
	}
	for _, op := range model.Operations() {
		if opts.Handlers[op] == nil {
			return nil, fmt.Errorf("no handler registered for operation %s", op)
		}
	}

	r := &Runner{
		source:     opts.Source,
		reporter:   opts.Reporter,
		handlers:   opts.Handlers,
		reconnect:  opts.Reconnect,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		workers:    max(opts.Concurrency, 1),
		pollWait:   opts.PollWait,
		errBackoff: opts.ErrBackoff,
		sleep:      opts.Sleep,
	}
	if r.pollWait <= 0 {
		r.pollWait = defaultPollWait
	}
	if r.errBackoff == nil {
		r.errBackoff = backoff.NewExponentialWithJitter(time.Second, 30*time.Second)
	}
	if r.sleep == nil {
		r.sleep = backoff.Sleep
	}
	if r.tracer == nil {
		r.tracer = tracing.NewTracer(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.logger = logger.With("component", "job_runner")
	return r, nil
}

// Run starts the worker goroutines and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "workers", r.workers, "poll_wait", r.pollWait)

	var wg sync.WaitGroup
	for id := range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.workerLoop(ctx, id)
		}()
	}
	wg.Wait()

	r.logger.InfoContext(ctx, "job runner stopped", "reason", ctx.Err())
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (r *Runner) workerLoop(ctx context.Context, id int) {
	failures := 0
	for ctx.Err() == nil {
		task, err := r.source.Dequeue(ctx, r.pollWait)
		switch {
		case err == nil:
			failures = 0
			r.ProcessTask(ctx, task)
		case errors.Is(err, model.ErrNoTasksAvailable):
			failures = 0
		case ctx.Err() != nil:
			return
		default:
			failures++
			r.logger.WarnContext(ctx, "dequeue failed", "worker", id, "attempt", failures, "error", err)
			if apperrors.IsConnection(err) && r.reconnect != nil {
				if rerr := r.reconnect(ctx); rerr != nil {
					r.logger.WarnContext(ctx, "broker reconnect failed", "worker", id, "error", rerr)
				}
			}
			if r.sleep(ctx, r.errBackoff.Delay(failures)) != nil {
				return
			}
		}
	}
}

// ProcessTask runs one dequeued task to completion: it marks the job
// processing, runs the handler under the task timeout, then acks or fails it.
func (r *Runner) ProcessTask(ctx context.Context, task *model.QueueTask) {
	start := time.Now()
	ctx, span := r.tracer.StartTask(ctx, task.JobID, string(task.Operation))
	var runErr error
	defer func() {
		tracing.End(span, runErr)
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Operation:  task.Operation,
			Transition: metrics.TransitionDispatch,
			Duration:   time.Since(start),
			Err:        runErr,
		})
	}()

	if !broker.VerifyChecksum(task) {
		runErr = errors.New(checksumMismatch)
		r.failTask(ctx, task, runErr)
		return
	}

	if _, err := r.reporter.ReportCompletion(ctx, task.JobID, model.CompletionReport{
		Status: model.JobStatusProcessing,
	}); err != nil {
		switch {
		case apperrors.IsConflict(err):
			// Already terminal: a redelivered task. Drop it without running the handler again.
			r.logger.InfoContext(ctx, "skipping task for finished job", "job_id", task.JobID)
			r.ack(ctx, task)
		case apperrors.IsNotFound(err):
			runErr = err
			r.failQueueOnly(ctx, task, "job record not found")
		default:
			runErr = err
			r.failQueueOnly(ctx, task, err.Error())
		}
		return
	}

	handler := r.handlers[task.Operation]
	if handler == nil {
		runErr = fmt.Errorf("unsupported operation %q", task.Operation)
		r.failTask(ctx, task, runErr)
		return
	}

	hctx, cancel := r.taskContext(ctx, task)
	defer cancel()
	if err := handler(hctx, task); err != nil {
		runErr = err
		r.failTask(ctx, task, err)
		return
	}

	r.ack(ctx, task)
	r.logger.DebugContext(ctx, "task dispatched", "job_id", task.JobID, "operation", task.Operation)
}

func (r *Runner) taskContext(ctx context.Context, task *model.QueueTask) (context.Context, context.CancelFunc) {
	if task.Timeout > 0 {
		return context.WithTimeout(ctx, task.Timeout)
	}
	return context.WithCancel(ctx)
}

// cleanupContext detaches from ctx cancellation so a shutdown or expired
// task deadline cannot strand the task in the started registry.
func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

func (r *Runner) ack(ctx context.Context, task *model.QueueTask) {
	ctx, cancel := cleanupContext(ctx)
	defer cancel()
	if err := r.source.Ack(ctx, task.JobID); err != nil {
		r.logger.ErrorContext(ctx, "ack task", "job_id", task.JobID, "error", err)
	}
}

// failTask records the failure on both the broker task and the job record.
func (r *Runner) failTask(ctx context.Context, task *model.QueueTask, cause error) {
	ctx, cancel := cleanupContext(ctx)
	defer cancel()
	r.failQueueOnly(ctx, task, cause.Error())
	if _, err := r.reporter.ReportCompletion(ctx, task.JobID, model.CompletionReport{
		Status:  model.JobStatusFailure,
		Message: cause.Error(),
	}); err != nil {
		r.logger.ErrorContext(ctx, "report job failure", "job_id", task.JobID, "error", err, "original_error", cause)
	}
}

func (r *Runner) failQueueOnly(ctx context.Context, task *model.QueueTask, reason string) {
	ctx, cancel := cleanupContext(ctx)
	defer cancel()
	if err := r.source.Fail(ctx, task.JobID, reason); err != nil {
		r.logger.ErrorContext(ctx, "fail task", "job_id", task.JobID, "error", err)
	}
}
