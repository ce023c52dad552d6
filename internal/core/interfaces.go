// Package core declares the ports between the job lifecycle services and their adapters.
package core

import (
	"context"
	"time"

	"github.com/target/receiptq/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture).
// Services depend on these interfaces; internal/data and internal/broker implement them.

// JobRecordStore is durable keyed storage for job lifecycle state.
type JobRecordStore interface {
	// Create inserts a QUEUED record. It fails with a conflict if the job id exists.
	Create(ctx context.Context, req model.CreateJobRecordRequest) (*model.JobRecord, error)
	Get(ctx context.Context, jobID string) (*model.JobRecord, error)
	UpdateStatus(ctx context.Context, req model.UpdateJobStatusRequest) (*model.JobRecord, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.JobRecord, error)
}

// JobRecordMaintenance is the retention surface used by the reaper.
type JobRecordMaintenance interface {
	ListStale(ctx context.Context, q model.StaleJobQuery) ([]*model.JobRecord, error)
	PurgeCompleted(ctx context.Context, params model.PurgeJobsParams) (int64, error)
}

// Pinger is implemented by dependencies that can report liveness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// TaskQueue is the producer side of the broker.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *model.QueueTask) error
	QueueStats(ctx context.Context) (*model.QueueStats, error)
}

// TaskSource is the consumer side of the broker used by workers.
type TaskSource interface {
	// Dequeue blocks up to wait for a task and returns model.ErrNoTasksAvailable when none arrives.
	Dequeue(ctx context.Context, wait time.Duration) (*model.QueueTask, error)
	Ack(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID, reason string) error
}

// TaskInspector answers whether the broker still holds a task for a job.
type TaskInspector interface {
	TaskExists(ctx context.Context, jobID string) (bool, error)
}

// TaskReclaimer returns started tasks whose worker vanished to the queue.
type TaskReclaimer interface {
	StalledTasks(ctx context.Context, grace time.Duration, limit int) ([]string, error)
	ReclaimTask(ctx context.Context, jobID string, grace time.Duration) (model.ReclaimResult, error)
}

// CompletionReporter applies a status report to a job record.
type CompletionReporter interface {
	ReportCompletion(ctx context.Context, jobID string, report model.CompletionReport) (*model.JobRecord, error)
}
