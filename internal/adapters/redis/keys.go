// Package redis provides the Redis-backed broker connection for the receiptq queue.
package redis

// Redis key naming conventions for queue data.
// All keys are prefixed with "receiptq:" to avoid collisions.

const keyPrefix = "receiptq:"

// taskKey returns the hash holding a task: receiptq:task:{job_id}
func taskKey(jobID string) string { return keyPrefix + "task:" + jobID }

// queueKey returns the pending list for a queue: receiptq:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// startedKey returns the list of tasks handed to a worker.
func startedKey(name string) string { return queueKey(name) + ":started" }

// failedKey returns the sorted set of failed job ids scored by failure time.
func failedKey(name string) string { return queueKey(name) + ":failed" }

// scheduledKey and deferredKey are reported in stats for compatibility with
// external queue dashboards; receiptq never schedules or defers tasks itself.
func scheduledKey(name string) string { return queueKey(name) + ":scheduled" }

func deferredKey(name string) string { return queueKey(name) + ":deferred" }

// Task hash fields.
const (
	fieldJobID       = "job_id"
	fieldOperation   = "operation"
	fieldPayload     = "payload"
	fieldFilename    = "filename"
	fieldExternalRef = "external_reference_id"
	fieldContentType = "content_type"
	fieldTimeoutMS   = "timeout_ms"
	fieldEnqueuedAt  = "enqueued_at"
	fieldChecksum    = "checksum"
	fieldFailReason  = "failure_reason"
	// fieldStartedAt is unix milliseconds, set when a worker pops the task.
	fieldStartedAt = "started_at_ms"
)
