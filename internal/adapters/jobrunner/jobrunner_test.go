package jobrunner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/receiptq/internal/backoff"
	"github.com/target/receiptq/internal/domain/model"
	apperrors "github.com/target/receiptq/internal/errors"
	"github.com/target/receiptq/internal/mocks"
	"github.com/target/receiptq/internal/observability/tracing"
	"github.com/target/receiptq/internal/testutil"
)

const jobID = "0b7c6a54-53b0-4e4b-9a0c-6f0f2f1d9e11"

func signedTask() *model.QueueTask {
	task := testutil.NewQueueTask(jobID)
	task.Checksum = xxhash.Sum64(task.Payload)
	return task
}

func processing() model.CompletionReport {
	return model.CompletionReport{Status: model.JobStatusProcessing}
}

func newTestRunner(t *testing.T, handler HandlerFunc) (*mocks.MockTaskSource, *mocks.MockCompletionReporter, *Runner) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	source := mocks.NewMockTaskSource(ctrl)
	reporter := mocks.NewMockCompletionReporter(ctrl)
	r, err := NewRunner(RunnerOptions{
		Source:   source,
		Reporter: reporter,
		Handlers: map[model.Operation]HandlerFunc{model.OperationTriggerWorkflow: handler},
		Tracer:   tracing.NewNoopTracer(),
		PollWait: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return source, reporter, r
}

func TestNewRunner_RequiresHandlerForEveryOperation(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	_, err := NewRunner(RunnerOptions{
		Source:   mocks.NewMockTaskSource(ctrl),
		Reporter: mocks.NewMockCompletionReporter(ctrl),
		Handlers: map[model.Operation]HandlerFunc{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(model.OperationTriggerWorkflow))
}

func TestRunner_ProcessTask_Success(t *testing.T) {
	t.Parallel()
	var sawDeadline bool
	source, reporter, r := newTestRunner(t, func(ctx context.Context, task *model.QueueTask) error {
		_, sawDeadline = ctx.Deadline()
		return nil
	})

	gomock.InOrder(
		reporter.EXPECT().ReportCompletion(gomock.Any(), jobID, processing()).
			Return(&model.JobRecord{JobID: jobID, Status: model.JobStatusProcessing}, nil),
		source.EXPECT().Ack(gomock.Any(), jobID).Return(nil),
	)

	r.ProcessTask(context.Background(), signedTask())
	assert.True(t, sawDeadline, "handler should run under the task timeout")
}

func TestRunner_ProcessTask_HandlerError(t *testing.T) {
	t.Parallel()
	source, reporter, r := newTestRunner(t, func(context.Context, *model.QueueTask) error {
		return errors.New("webhook returned 500")
	})

	reporter.EXPECT().ReportCompletion(gomock.Any(), jobID, processing()).Return(&model.JobRecord{}, nil)
	source.EXPECT().Fail(gomock.Any(), jobID, "webhook returned 500").Return(nil)
	reporter.EXPECT().
		ReportCompletion(gomock.Any(), jobID, model.CompletionReport{
			Status:  model.JobStatusFailure,
			Message: "webhook returned 500",
		}).
		Return(&model.JobRecord{}, nil)

	r.ProcessTask(context.Background(), signedTask())
}

func TestRunner_ProcessTask_CleanupOutlivesCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source, reporter, r := newTestRunner(t, func(hctx context.Context, _ *model.QueueTask) error {
		cancel()
		<-hctx.Done()
		return hctx.Err()
	})

	live := gomock.Cond(func(c context.Context) bool {
		_, hasDeadline := c.Deadline()
		return c.Err() == nil && hasDeadline
	})
	reporter.EXPECT().ReportCompletion(gomock.Any(), jobID, processing()).Return(&model.JobRecord{}, nil)
	source.EXPECT().Fail(live, jobID, context.Canceled.Error()).Return(nil)
	reporter.EXPECT().
		ReportCompletion(live, jobID, model.CompletionReport{
			Status:  model.JobStatusFailure,
			Message: context.Canceled.Error(),
		}).
		Return(&model.JobRecord{}, nil)

	r.ProcessTask(ctx, signedTask())
}

func TestRunner_ProcessTask_ChecksumMismatch(t *testing.T) {
	t.Parallel()
	source, reporter, r := newTestRunner(t, func(context.Context, *model.QueueTask) error {
		t.Fatal("handler must not run for a corrupted task")
		return nil
	})

	task := signedTask()
	task.Payload = append(task.Payload, 0x00)

	source.EXPECT().Fail(gomock.Any(), jobID, checksumMismatch).Return(nil)
	reporter.EXPECT().
		ReportCompletion(gomock.Any(), jobID, model.CompletionReport{Status: model.JobStatusFailure, Message: checksumMismatch}).
		Return(&model.JobRecord{}, nil)

	r.ProcessTask(context.Background(), task)
}

func TestRunner_ProcessTask_AlreadyFinished(t *testing.T) {
	t.Parallel()
	source, reporter, r := newTestRunner(t, func(context.Context, *model.QueueTask) error {
		t.Fatal("handler must not run for a finished job")
		return nil
	})

	reporter.EXPECT().ReportCompletion(gomock.Any(), jobID, processing()).
		Return(nil, apperrors.Conflictf("invalid transition from success to processing"))
	source.EXPECT().Ack(gomock.Any(), jobID).Return(nil)

	r.ProcessTask(context.Background(), signedTask())
}

func TestRunner_ProcessTask_RecordMissing(t *testing.T) {
	t.Parallel()
	source, reporter, r := newTestRunner(t, func(context.Context, *model.QueueTask) error {
		t.Fatal("handler must not run without a record")
		return nil
	})

	reporter.EXPECT().ReportCompletion(gomock.Any(), jobID, processing()).
		Return(nil, apperrors.NotFoundf("job %s not found", jobID))
	source.EXPECT().Fail(gomock.Any(), jobID, "job record not found").Return(nil)

	r.ProcessTask(context.Background(), signedTask())
}

func TestRunner_Run_DrainsAndStops(t *testing.T) {
	t.Parallel()
	var handled atomic.Int32
	source, reporter, r := newTestRunner(t, func(context.Context, *model.QueueTask) error {
		handled.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source.EXPECT().Dequeue(gomock.Any(), 10*time.Millisecond).Return(signedTask(), nil).Times(1)
	source.EXPECT().Dequeue(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, time.Duration) (*model.QueueTask, error) {
			cancel()
			return nil, model.ErrNoTasksAvailable
		}).
		AnyTimes()
	reporter.EXPECT().ReportCompletion(gomock.Any(), jobID, processing()).Return(&model.JobRecord{}, nil)
	source.EXPECT().Ack(gomock.Any(), jobID).Return(nil)

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, int32(1), handled.Load())
}

func TestRunner_Run_ReconnectsAfterConnectionError(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	source := mocks.NewMockTaskSource(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reconnects atomic.Int32
	var delays []time.Duration
	r, err := NewRunner(RunnerOptions{
		Source:   source,
		Reporter: mocks.NewMockCompletionReporter(ctrl),
		Handlers: map[model.Operation]HandlerFunc{
			model.OperationTriggerWorkflow: func(context.Context, *model.QueueTask) error { return nil },
		},
		Tracer:     tracing.NewNoopTracer(),
		ErrBackoff: backoff.NewExponential(time.Second, 4*time.Second),
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			if len(delays) == 3 {
				cancel()
				return context.Canceled
			}
			return nil
		},
		Reconnect: func(context.Context) error {
			reconnects.Add(1)
			return errors.New("still down")
		},
	})
	require.NoError(t, err)

	source.EXPECT().Dequeue(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.Connection(errors.New("refused"), "broker unreachable")).
		Times(3)

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
	assert.Equal(t, int32(3), reconnects.Load())
}
