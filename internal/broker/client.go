// Package broker implements the connection-resilient client used to hand queue tasks to Redis.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/target/receiptq/internal/backoff"
	"github.com/target/receiptq/internal/core"
	"github.com/target/receiptq/internal/domain/model"
	apperrors "github.com/target/receiptq/internal/errors"
)

const (
	defaultQueueName      = "default"
	defaultMaxRetries     = 3
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

var (
	_ core.TaskQueue     = (*Client)(nil)
	_ core.TaskSource    = (*Client)(nil)
	_ core.TaskInspector = (*Client)(nil)
)

// ErrDisconnected marks an error as a loss of connectivity to the broker.
// Conn implementations wrap transport failures with it so the client knows to reconnect.
var ErrDisconnected = errors.New("broker disconnected")

// Conn is a single live connection to the broker.
type Conn interface {
	Ping(ctx context.Context) error
	Push(ctx context.Context, queue string, task *model.QueueTask) error
	Stats(ctx context.Context, queue string) (*model.QueueStats, error)
	Pop(ctx context.Context, queue string, wait time.Duration) (*model.QueueTask, error)
	Ack(ctx context.Context, queue, jobID string) error
	Fail(ctx context.Context, queue, jobID, reason string) error
	Exists(ctx context.Context, jobID string) (bool, error)
	// Stalled lists started ids whose timeout plus grace has elapsed at now, oldest first.
	Stalled(ctx context.Context, queue string, now time.Time, grace time.Duration, limit int) ([]string, error)
	Reclaim(ctx context.Context, queue, jobID string, now time.Time, grace time.Duration) (model.ReclaimResult, error)
	Close() error
}

// Dialer opens a new Conn. Each call must return a fresh connection.
type Dialer func(ctx context.Context) (Conn, error)

// Options configures a Client.
type Options struct {
	Dialer     Dialer
	QueueName  string
	MaxRetries int
	// Backoff computes the wait after each failed connect attempt.
	// Defaults to exponential 1s doubling up to 30s.
	Backoff backoff.Strategy
	// Sleep is the wait primitive used between connect attempts. Defaults to backoff.Sleep.
	Sleep  backoff.SleepFunc
	Now    func() time.Time
	Logger *slog.Logger
}

// Client owns the broker connection and reconnects on connectivity loss.
type Client struct {
	mu   sync.RWMutex
	conn Conn

	dial       Dialer
	queue      string
	maxRetries int
	backoff    backoff.Strategy
	sleep      backoff.SleepFunc
	now        func() time.Time
	logger     *slog.Logger
}

// NewClient creates an unconnected Client. Call Connect before use.
func NewClient(opts Options) (*Client, error) {
	if opts.Dialer == nil {
		return nil, errors.New("broker dialer is required")
	}
	c := &Client{
		dial:       opts.Dialer,
		queue:      opts.QueueName,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		sleep:      opts.Sleep,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if c.queue == "" {
		c.queue = defaultQueueName
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.backoff == nil {
		c.backoff = backoff.NewExponential(defaultInitialBackoff, defaultMaxBackoff)
	}
	if c.sleep == nil {
		c.sleep = backoff.Sleep
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "broker", "queue", c.queue)
	return c, nil
}

// QueueName returns the queue this client pushes to.
func (c *Client) QueueName() string { return c.queue }

// Connect dials and pings the broker, retrying with backoff up to MaxRetries attempts.
// Any previous connection is replaced on success.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connect(ctx)
	return err
}

// connect is Connect returning the connection it installed.
func (c *Client) connect(ctx context.Context) (Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		conn, err := c.dialAndPing(ctx)
		if err == nil {
			c.swap(conn)
			if attempt > 1 {
				c.logger.InfoContext(ctx, "broker connected after retry", "attempt", attempt)
			}
			return conn, nil
		}
		lastErr = err

		delay := c.backoff.Delay(attempt)
		c.logger.WarnContext(ctx, "broker connect failed",
			"attempt", attempt,
			"max_retries", c.maxRetries,
			"retry_in", delay,
			"error", err)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return nil, apperrors.Connection(errors.Join(lastErr, sleepErr), "broker connect aborted")
		}
	}
	return nil, apperrors.Connection(lastErr,
		fmt.Sprintf("broker unreachable after %d attempts", c.maxRetries))
}

func (c *Client) dialAndPing(ctx context.Context) (Conn, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	if pingErr := conn.Ping(ctx); pingErr != nil {
		if closeErr := conn.Close(); closeErr != nil {
			c.logger.DebugContext(ctx, "close after failed ping", "error", closeErr)
		}
		return nil, pingErr
	}
	return conn, nil
}

func (c *Client) swap(conn Conn) {
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			c.logger.Warn("close replaced broker connection", "error", err)
		}
	}
}

func (c *Client) current() Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Connected reports whether a connection has been established and not closed.
func (c *Client) Connected() bool { return c.current() != nil }

// Enqueue pushes task onto the queue. A connectivity failure triggers exactly one
// reconnect followed by one retry.
func (c *Client) Enqueue(ctx context.Context, task *model.QueueTask) error {
	conn := c.current()
	if conn == nil {
		return apperrors.Connection(nil, "broker not connected").WithOp("enqueue")
	}
	if err := task.Validate(); err != nil {
		v := apperrors.Validation(err.Error())
		if task != nil {
			v = v.WithJobID(task.JobID)
		}
		return v
	}

	prepared := c.prepare(task)
	err := conn.Push(ctx, c.queue, prepared)
	if err == nil {
		return nil
	}
	if !IsConnectivityError(err) {
		return apperrors.Enqueue(err, task.JobID)
	}

	c.logger.WarnContext(ctx, "enqueue lost connectivity, reconnecting", "job_id", task.JobID, "error", err)
	fresh, connErr := c.connect(ctx)
	if connErr != nil {
		return apperrors.Enqueue(connErr, task.JobID)
	}
	// Close may have run since the swap; never push on a released connection.
	if c.current() != fresh {
		return apperrors.Connection(nil, "broker closed").WithOp("enqueue").WithJobID(task.JobID)
	}
	if retryErr := fresh.Push(ctx, c.queue, prepared); retryErr != nil {
		return apperrors.Enqueue(retryErr, task.JobID)
	}
	c.logger.InfoContext(ctx, "enqueue succeeded after reconnect", "job_id", task.JobID)
	return nil
}

// prepare stamps the enqueue time and payload checksum on a copy of task.
func (c *Client) prepare(task *model.QueueTask) *model.QueueTask {
	cp := *task
	cp.EnqueuedAt = c.now().UTC()
	cp.Checksum = xxhash.Sum64(cp.Payload)
	return &cp
}

// QueueStats returns queue depth counters.
func (c *Client) QueueStats(ctx context.Context) (*model.QueueStats, error) {
	conn := c.current()
	if conn == nil {
		return nil, apperrors.Connection(nil, "broker not connected").WithOp("queue_stats")
	}
	stats, err := conn.Stats(ctx, c.queue)
	if err != nil {
		return nil, c.wrap(err, "queue_stats", "")
	}
	return stats, nil
}

// Dequeue waits up to wait for the next task and moves it to the started registry.
// It returns model.ErrNoTasksAvailable when the wait elapses.
func (c *Client) Dequeue(ctx context.Context, wait time.Duration) (*model.QueueTask, error) {
	conn := c.current()
	if conn == nil {
		return nil, apperrors.Connection(nil, "broker not connected").WithOp("dequeue")
	}
	task, err := conn.Pop(ctx, c.queue, wait)
	if err != nil {
		if errors.Is(err, model.ErrNoTasksAvailable) {
			return nil, err
		}
		return nil, c.wrap(err, "dequeue", "")
	}
	return task, nil
}

// VerifyChecksum reports whether the task payload matches the checksum stamped at enqueue.
func VerifyChecksum(task *model.QueueTask) bool {
	return task != nil && xxhash.Sum64(task.Payload) == task.Checksum
}

// Ack removes a finished task from the started registry.
func (c *Client) Ack(ctx context.Context, jobID string) error {
	conn := c.current()
	if conn == nil {
		return apperrors.Connection(nil, "broker not connected").WithOp("ack")
	}
	if err := conn.Ack(ctx, c.queue, jobID); err != nil {
		return c.wrap(err, "ack", jobID)
	}
	return nil
}

// Fail moves a task from the started registry to the failed registry.
func (c *Client) Fail(ctx context.Context, jobID, reason string) error {
	conn := c.current()
	if conn == nil {
		return apperrors.Connection(nil, "broker not connected").WithOp("fail")
	}
	if err := conn.Fail(ctx, c.queue, jobID, reason); err != nil {
		return c.wrap(err, "fail", jobID)
	}
	return nil
}

// TaskExists reports whether the broker still holds the task for jobID.
func (c *Client) TaskExists(ctx context.Context, jobID string) (bool, error) {
	conn := c.current()
	if conn == nil {
		return false, apperrors.Connection(nil, "broker not connected").WithOp("task_exists")
	}
	ok, err := conn.Exists(ctx, jobID)
	if err != nil {
		return false, c.wrap(err, "task_exists", jobID)
	}
	return ok, nil
}

// StalledTasks lists up to limit started tasks whose worker deadline passed more than grace ago.
func (c *Client) StalledTasks(ctx context.Context, grace time.Duration, limit int) ([]string, error) {
	conn := c.current()
	if conn == nil {
		return nil, apperrors.Connection(nil, "broker not connected").WithOp("stalled_tasks")
	}
	ids, err := conn.Stalled(ctx, c.queue, c.now(), grace, limit)
	if err != nil {
		return nil, c.wrap(err, "stalled_tasks", "")
	}
	return ids, nil
}

// ReclaimTask returns a stalled started task to the front of the queue so another worker picks it up.
func (c *Client) ReclaimTask(ctx context.Context, jobID string, grace time.Duration) (model.ReclaimResult, error) {
	conn := c.current()
	if conn == nil {
		return model.ReclaimNotStalled, apperrors.Connection(nil, "broker not connected").
			WithOp("reclaim_task").WithJobID(jobID)
	}
	res, err := conn.Reclaim(ctx, c.queue, jobID, c.now(), grace)
	if err != nil {
		return model.ReclaimNotStalled, c.wrap(err, "reclaim_task", jobID)
	}
	return res, nil
}

// Close releases the connection. It is safe to call more than once and never fails.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		c.logger.Warn("broker close failed", "error", err)
	}
	return nil
}

func (c *Client) wrap(err error, op, jobID string) error {
	if IsConnectivityError(err) {
		return apperrors.Connection(err, "broker unreachable").WithOp(op).WithJobID(jobID)
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInternal, "broker "+op+" failed").WithOp(op).WithJobID(jobID)
}

// IsConnectivityError reports whether err indicates the broker connection was lost.
// Context cancellation is never treated as connectivity loss.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrDisconnected) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
