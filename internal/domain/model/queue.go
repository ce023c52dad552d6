package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Operation selects the worker-side handler for a queued task. The set is
// closed: every value returned by Operations must have a registered handler.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Operation string

const (
	// OperationTriggerWorkflow forwards the receipt to the external workflow webhook.
	OperationTriggerWorkflow Operation = "trigger_workflow"
)

// Operations returns every supported operation.
func Operations() []Operation {
	return []Operation{OperationTriggerWorkflow}
}

// Valid returns true if the Operation is supported.
func (o Operation) Valid() bool {
	for _, op := range Operations() {
		if o == op {
			return true
		}
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler for Operation.
func (o *Operation) UnmarshalText(text []byte) error {
	v := Operation(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid Operation: %q", string(text))
	}
	*o = v
	return nil
}

// ErrNoTasksAvailable is returned when a dequeue wait elapses without a task.
var ErrNoTasksAvailable = errors.New("no tasks available")

// QueueTask is the broker-side unit of work. It is not persisted by the job record store.
type QueueTask struct {
	JobID               string
	Operation           Operation
	Payload             []byte
	Filename            string
	ExternalReferenceID string
	ContentType         string
	// Timeout bounds the worker's execution of the task.
	Timeout    time.Duration
	EnqueuedAt time.Time
	// Checksum is the xxhash64 of Payload, filled by the broker on enqueue.
	Checksum uint64
}

// Validate checks the fields the broker requires before accepting a task.
func (t *QueueTask) Validate() error {
	if t == nil {
		return errors.New("task is required")
	}
	if strings.TrimSpace(t.JobID) == "" {
		return errors.New("job id is required")
	}
	if !t.Operation.Valid() {
		return fmt.Errorf("unsupported operation %q", t.Operation)
	}
	if len(t.Payload) == 0 {
		return errors.New("payload is required")
	}
	if t.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	return nil
}

// ReclaimResult is the outcome of returning a stalled started task to its queue.
type ReclaimResult int

const (
	// ReclaimNotStalled means the task is no longer started or its deadline has not passed.
	ReclaimNotStalled ReclaimResult = iota
	// ReclaimRequeued means the task is back at the front of its queue.
	ReclaimRequeued
	// ReclaimLost means the task id was started but its hash had expired.
	ReclaimLost
)

// QueueStats is a read-only snapshot of broker queue depth.
type QueueStats struct {
	Name           string `json:"name"`
	Length         int64  `json:"length"`
	FailedCount    int64  `json:"failed_count"`
	ScheduledCount int64  `json:"scheduled_count"`
	StartedCount   int64  `json:"started_count"`
	DeferredCount  int64  `json:"deferred_count"`
}
