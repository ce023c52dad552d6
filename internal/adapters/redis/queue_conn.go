package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/receiptq/internal/broker"
	"github.com/target/receiptq/internal/domain/model"
)

const (
	defaultTaskTTL   = 24 * time.Hour
	defaultFailedTTL = 7 * 24 * time.Hour
)

// ErrTaskExists is returned when a task for the same job id is already held by the broker.
var ErrTaskExists = errors.New("task already queued")

var _ broker.Conn = (*QueueConn)(nil)

// QueueConnOptions configures task retention.
type QueueConnOptions struct {
	// TaskTTL bounds how long an unprocessed task hash survives.
	TaskTTL time.Duration
	// FailedTTL bounds how long failed tasks stay inspectable.
	FailedTTL time.Duration
}

// QueueConn is a broker.Conn backed by a go-redis client.
// Tasks are hashes; queues are lists of job ids moved atomically into a started list on dequeue.
type QueueConn struct {
	client    redis.UniversalClient
	taskTTL   time.Duration
	failedTTL time.Duration
	now       func() time.Time
}

// pushScript stores the task hash and queues its id unless a hash already exists.
// A hash carrying the same enqueued_at is the same push whose reply was lost.
// Returns 1 when stored, 0 when already stored by this push, -1 for a different task.
var pushScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  if redis.call('HGET', KEYS[1], 'enqueued_at') == ARGV[3] then
    return 0
  end
  return -1
end
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
redis.call('PEXPIRE', KEYS[1], ARGV[2])
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)

// startScript stamps started_at_ms and returns the task hash as a flat field/value list.
// An expired hash returns an empty list and is never recreated.
var startScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {}
end
redis.call('HSET', KEYS[1], 'started_at_ms', ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

// reclaimScript moves a started id whose timeout plus grace has elapsed back to
// the consuming end of its queue. Returns 1 when requeued, 2 when the task hash
// is gone, 0 when the id is not started or still within its deadline.
var reclaimScript = redis.NewScript(`
if not redis.call('LPOS', KEYS[1], ARGV[1]) then
  return 0
end
local started = tonumber(redis.call('HGET', KEYS[3], 'started_at_ms') or '0')
local timeout = tonumber(redis.call('HGET', KEYS[3], 'timeout_ms') or '0')
if started + timeout + tonumber(ARGV[3]) > tonumber(ARGV[2]) then
  return 0
end
redis.call('LREM', KEYS[1], 1, ARGV[1])
if redis.call('EXISTS', KEYS[3]) == 0 then
  return 2
end
redis.call('HDEL', KEYS[3], 'started_at_ms')
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)

// NewQueueConn wraps client. The QueueConn takes ownership and closes it on Close.
func NewQueueConn(client redis.UniversalClient, opts QueueConnOptions) *QueueConn {
	c := &QueueConn{client: client, taskTTL: opts.TaskTTL, failedTTL: opts.FailedTTL, now: time.Now}
	if c.taskTTL <= 0 {
		c.taskTTL = defaultTaskTTL
	}
	if c.failedTTL <= 0 {
		c.failedTTL = defaultFailedTTL
	}
	return c
}

// NewDialer returns a broker.Dialer that builds a fresh client from newClient for every dial.
func NewDialer(newClient func() redis.UniversalClient, opts QueueConnOptions) broker.Dialer {
	return func(context.Context) (broker.Conn, error) {
		client := newClient()
		if client == nil {
			return nil, errors.New("redis client factory returned nil")
		}
		return NewQueueConn(client, opts), nil
	}
}

// Ping verifies the connection with a round trip.
func (c *QueueConn) Ping(ctx context.Context) error {
	return classify(c.client.Ping(ctx).Err())
}

// Push stores the task hash and appends its id to the queue atomically.
// Retrying a push whose reply was lost succeeds without queuing the id twice.
func (c *QueueConn) Push(ctx context.Context, queue string, task *model.QueueTask) error {
	fields := taskToMap(task)
	args := make([]any, 0, 3+2*len(fields))
	args = append(args, task.JobID, c.taskTTL.Milliseconds(), fields[fieldEnqueuedAt])
	for k, v := range fields {
		args = append(args, k, v)
	}

	res, err := pushScript.Run(ctx, c.client, []string{taskKey(task.JobID), queueKey(queue)}, args...).Int64()
	if err != nil {
		return classify(fmt.Errorf("redis enqueue: %w", err))
	}
	if res < 0 {
		return fmt.Errorf("%w: %s", ErrTaskExists, task.JobID)
	}
	return nil
}

// Stats returns queue depth counters.
func (c *QueueConn) Stats(ctx context.Context, queue string) (*model.QueueStats, error) {
	pipe := c.client.Pipeline()
	length := pipe.LLen(ctx, queueKey(queue))
	started := pipe.LLen(ctx, startedKey(queue))
	failed := pipe.ZCard(ctx, failedKey(queue))
	scheduled := pipe.ZCard(ctx, scheduledKey(queue))
	deferred := pipe.ZCard(ctx, deferredKey(queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, classify(fmt.Errorf("redis stats: %w", err))
	}
	return &model.QueueStats{
		Name:           queue,
		Length:         length.Val(),
		FailedCount:    failed.Val(),
		ScheduledCount: scheduled.Val(),
		StartedCount:   started.Val(),
		DeferredCount:  deferred.Val(),
	}, nil
}

// Pop blocks up to wait for the oldest queued id and moves it into the started list.
// Ids whose task hash expired are dropped and reported as no task available.
func (c *QueueConn) Pop(ctx context.Context, queue string, wait time.Duration) (*model.QueueTask, error) {
	jobID, err := c.client.BLMove(ctx, queueKey(queue), startedKey(queue), "RIGHT", "LEFT", wait).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNoTasksAvailable
		}
		return nil, classify(fmt.Errorf("redis blmove: %w", err))
	}

	// A crash before the stamp leaves started_at unset, which reads as epoch and stays reclaimable.
	flat, err := startScript.Run(ctx, c.client, []string{taskKey(jobID)}, c.now().UnixMilli()).StringSlice()
	if err != nil {
		return nil, classify(fmt.Errorf("redis start task: %w", err))
	}
	if len(flat) == 0 {
		if remErr := c.client.LRem(ctx, startedKey(queue), 1, jobID).Err(); remErr != nil {
			return nil, classify(fmt.Errorf("redis lrem: %w", remErr))
		}
		return nil, model.ErrNoTasksAvailable
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		fields[flat[i]] = flat[i+1]
	}
	return taskFromMap(fields)
}

// Ack removes the task from the started list and deletes its hash.
func (c *QueueConn) Ack(ctx context.Context, queue, jobID string) error {
	pipe := c.client.TxPipeline()
	pipe.LRem(ctx, startedKey(queue), 1, jobID)
	pipe.Del(ctx, taskKey(jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		return classify(fmt.Errorf("redis ack: %w", err))
	}
	return nil
}

// Fail moves the task into the failed set, keeping its hash for FailedTTL.
func (c *QueueConn) Fail(ctx context.Context, queue, jobID, reason string) error {
	now := c.now()
	cutoff := now.Add(-c.failedTTL)

	pipe := c.client.TxPipeline()
	pipe.LRem(ctx, startedKey(queue), 1, jobID)
	pipe.ZAdd(ctx, failedKey(queue), redis.Z{Score: float64(now.Unix()), Member: jobID})
	pipe.ZRemRangeByScore(ctx, failedKey(queue), "-inf", strconv.FormatInt(cutoff.Unix(), 10))
	pipe.HSet(ctx, taskKey(jobID), fieldFailReason, reason)
	pipe.Expire(ctx, taskKey(jobID), c.failedTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return classify(fmt.Errorf("redis fail: %w", err))
	}
	return nil
}

// Exists reports whether a task hash is still held for jobID.
func (c *QueueConn) Exists(ctx context.Context, jobID string) (bool, error) {
	n, err := c.client.Exists(ctx, taskKey(jobID)).Result()
	if err != nil {
		return false, classify(fmt.Errorf("redis exists: %w", err))
	}
	return n > 0, nil
}

// Stalled lists up to limit started ids, oldest first, whose timeout plus grace
// has elapsed at now. Ids whose hash is gone are included.
func (c *QueueConn) Stalled(ctx context.Context, queue string, now time.Time, grace time.Duration, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := c.client.LRange(ctx, startedKey(queue), int64(-limit), -1).Result()
	if err != nil {
		return nil, classify(fmt.Errorf("redis lrange started: %w", err))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := c.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, taskKey(id), fieldStartedAt, fieldTimeoutMS)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, classify(fmt.Errorf("redis stalled lookup: %w", err))
	}

	stalled := make([]string, 0, len(ids))
	// LRANGE returns newest first; walk backwards so the oldest comes first.
	for i := len(ids) - 1; i >= 0; i-- {
		vals := cmds[i].Val()
		deadline := millisField(vals, 0) + millisField(vals, 1) + grace.Milliseconds()
		if now.UnixMilli() >= deadline {
			stalled = append(stalled, ids[i])
		}
	}
	return stalled, nil
}

// Reclaim returns a stalled started task to the front of its queue.
func (c *QueueConn) Reclaim(
	ctx context.Context,
	queue, jobID string,
	now time.Time,
	grace time.Duration,
) (model.ReclaimResult, error) {
	keys := []string{startedKey(queue), queueKey(queue), taskKey(jobID)}
	res, err := reclaimScript.Run(ctx, c.client, keys, jobID, now.UnixMilli(), grace.Milliseconds()).Int64()
	if err != nil {
		return model.ReclaimNotStalled, classify(fmt.Errorf("redis reclaim: %w", err))
	}
	switch res {
	case 1:
		return model.ReclaimRequeued, nil
	case 2:
		return model.ReclaimLost, nil
	default:
		return model.ReclaimNotStalled, nil
	}
}

func millisField(vals []any, i int) int64 {
	if i >= len(vals) {
		return 0
	}
	s, ok := vals[i].(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Close closes the underlying client.
func (c *QueueConn) Close() error {
	return c.client.Close()
}

// classify marks transport failures with broker.ErrDisconnected.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %w", broker.ErrDisconnected, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", broker.ErrDisconnected, err)
	}
	return err
}

func taskToMap(t *model.QueueTask) map[string]any {
	return map[string]any{
		fieldJobID:       t.JobID,
		fieldOperation:   string(t.Operation),
		fieldPayload:     t.Payload,
		fieldFilename:    t.Filename,
		fieldExternalRef: t.ExternalReferenceID,
		fieldContentType: t.ContentType,
		fieldTimeoutMS:   t.Timeout.Milliseconds(),
		fieldEnqueuedAt:  t.EnqueuedAt.UTC().Format(time.RFC3339Nano),
		fieldChecksum:    strconv.FormatUint(t.Checksum, 10),
	}
}

func taskFromMap(m map[string]string) (*model.QueueTask, error) {
	t := &model.QueueTask{
		JobID:               m[fieldJobID],
		Operation:           model.Operation(m[fieldOperation]),
		Payload:             []byte(m[fieldPayload]),
		Filename:            m[fieldFilename],
		ExternalReferenceID: m[fieldExternalRef],
		ContentType:         m[fieldContentType],
	}
	if v := m[fieldTimeoutMS]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", fieldTimeoutMS, err)
		}
		t.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v := m[fieldEnqueuedAt]; v != "" {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", fieldEnqueuedAt, err)
		}
		t.EnqueuedAt = at
	}
	if v := m[fieldChecksum]; v != "" {
		sum, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", fieldChecksum, err)
		}
		t.Checksum = sum
	}
	return t, nil
}
