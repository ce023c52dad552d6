// Package mocks provides mock implementations for testing the receiptq job lifecycle.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the ports in internal/core.
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockJobRecordStore(ctrl)
//	store.EXPECT().Get(gomock.Any(), jobID).Return(record, nil)
package mocks

// Job record persistence: Create, Get, List, UpdateStatus
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_record_store_mock.go github.com/target/receiptq/internal/core JobRecordStore

// Reaper retention surface: ListStale, PurgeCompleted
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_record_maintenance_mock.go github.com/target/receiptq/internal/core JobRecordMaintenance

// Broker producer side: Enqueue, QueueStats
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=task_queue_mock.go github.com/target/receiptq/internal/core TaskQueue

// Broker consumer side: Dequeue, Ack, Fail
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=task_source_mock.go github.com/target/receiptq/internal/core TaskSource

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=task_inspector_mock.go github.com/target/receiptq/internal/core TaskInspector

// Reaper stalled-task recovery: StalledTasks, ReclaimTask
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=task_reclaimer_mock.go github.com/target/receiptq/internal/core TaskReclaimer

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=completion_reporter_mock.go github.com/target/receiptq/internal/core CompletionReporter

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=pinger_mock.go github.com/target/receiptq/internal/core Pinger
