package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/receiptq/config"
	"github.com/target/receiptq/internal/domain/model"
	apperrors "github.com/target/receiptq/internal/errors"
	"github.com/target/receiptq/internal/mocks"
	"github.com/target/receiptq/internal/observability/metrics"
	"github.com/target/receiptq/internal/observability/statsd/statsdtest"
)

var reaperNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type reaperMocks struct {
	store     *mocks.MockJobRecordMaintenance
	reporter  *mocks.MockCompletionReporter
	inspector *mocks.MockTaskInspector
	reclaimer *mocks.MockTaskReclaimer
	metrics   *statsdtest.Recorder
}

func newTestReaper(t *testing.T, cfg config.ReaperConfig) (*reaperMocks, *ReaperService) {
	t.Helper()
	return buildTestReaper(t, cfg, false)
}

// newReclaimingReaper also wires a stalled-task reclaimer.
func newReclaimingReaper(t *testing.T, cfg config.ReaperConfig) (*reaperMocks, *ReaperService) {
	t.Helper()
	return buildTestReaper(t, cfg, true)
}

func buildTestReaper(t *testing.T, cfg config.ReaperConfig, reclaim bool) (*reaperMocks, *ReaperService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	m := &reaperMocks{
		store:     mocks.NewMockJobRecordMaintenance(ctrl),
		reporter:  mocks.NewMockCompletionReporter(ctrl),
		inspector: mocks.NewMockTaskInspector(ctrl),
		reclaimer: mocks.NewMockTaskReclaimer(ctrl),
		metrics:   &statsdtest.Recorder{},
	}
	opts := ReaperServiceOptions{
		Store:     m.store,
		Reporter:  m.reporter,
		Inspector: m.inspector,
		Config:    cfg,
		Metrics:   m.metrics,
		Now:       func() time.Time { return reaperNow },
	}
	if reclaim {
		opts.Reclaimer = m.reclaimer
	}
	svc, err := NewReaperService(opts)
	require.NoError(t, err)
	return m, svc
}

func defaultReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:    time.Minute,
		OrphanAfter: 15 * time.Minute,
		StallGrace:  2 * time.Minute,
		Retention:   720 * time.Hour,
		BatchSize:   100,
	}
}

func queuedRecords(ids ...string) []*model.JobRecord {
	out := make([]*model.JobRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.JobRecord{JobID: id, Status: model.JobStatusQueued})
	}
	return out
}

func TestNewReaperService_RequiresDependencies(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	_, err := NewReaperService(ReaperServiceOptions{})
	require.Error(t, err)
	_, err = NewReaperService(ReaperServiceOptions{Store: mocks.NewMockJobRecordMaintenance(ctrl)})
	require.Error(t, err)
	_, err = NewReaperService(ReaperServiceOptions{
		Store:    mocks.NewMockJobRecordMaintenance(ctrl),
		Reporter: mocks.NewMockCompletionReporter(ctrl),
	})
	require.Error(t, err)
}

func TestReaperService_SweepOrphans_FailsOnlyMissingTasks(t *testing.T) {
	t.Parallel()
	m, svc := newTestReaper(t, defaultReaperConfig())
	ctx := context.Background()

	m.store.EXPECT().
		ListStale(gomock.Any(), model.StaleJobQuery{
			Status:    model.JobStatusQueued,
			OlderThan: reaperNow.Add(-15 * time.Minute),
			Limit:     100,
		}).
		Return(queuedRecords("held", "orphan"), nil)
	m.inspector.EXPECT().TaskExists(gomock.Any(), "held").Return(true, nil)
	m.inspector.EXPECT().TaskExists(gomock.Any(), "orphan").Return(false, nil)
	m.reporter.EXPECT().
		ReportCompletion(gomock.Any(), "orphan", model.CompletionReport{
			Status:  model.JobStatusFailure,
			Message: OrphanMessage,
		}).
		Return(&model.JobRecord{JobID: "orphan", Status: model.JobStatusFailure}, nil)

	n, err := svc.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestReaperService_SweepOrphans_BrokerErrorMarksNothing(t *testing.T) {
	t.Parallel()
	m, svc := newTestReaper(t, defaultReaperConfig())

	m.store.EXPECT().ListStale(gomock.Any(), gomock.Any()).Return(queuedRecords("a", "b"), nil)
	m.inspector.EXPECT().TaskExists(gomock.Any(), "a").Return(false, nil)
	m.inspector.EXPECT().TaskExists(gomock.Any(), "b").
		Return(false, apperrors.Connection(errors.New("refused"), "broker unreachable"))

	n, err := svc.SweepOrphans(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConnection(err))
	assert.Zero(t, n)
}

func TestReaperService_SweepOrphans_SkipsRaces(t *testing.T) {
	t.Parallel()
	m, svc := newTestReaper(t, defaultReaperConfig())

	m.store.EXPECT().ListStale(gomock.Any(), gomock.Any()).Return(queuedRecords("done", "gone"), nil)
	m.inspector.EXPECT().TaskExists(gomock.Any(), gomock.Any()).Return(false, nil).Times(2)
	m.reporter.EXPECT().ReportCompletion(gomock.Any(), "done", gomock.Any()).
		Return(nil, apperrors.Conflictf("invalid transition from success to failure"))
	m.reporter.EXPECT().ReportCompletion(gomock.Any(), "gone", gomock.Any()).
		Return(nil, apperrors.NotFoundf("job %s not found", "gone"))

	n, err := svc.SweepOrphans(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReaperService_PurgeExpired(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		cfg := defaultReaperConfig()
		cfg.Retention = 0
		_, svc := newTestReaper(t, cfg)

		n, err := svc.PurgeExpired(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("cutoff", func(t *testing.T) {
		t.Parallel()
		m, svc := newTestReaper(t, defaultReaperConfig())
		m.store.EXPECT().
			PurgeCompleted(gomock.Any(), model.PurgeJobsParams{
				CompletedBefore: reaperNow.Add(-720 * time.Hour),
				BatchSize:       100,
			}).
			Return(int64(7), nil)

		n, err := svc.PurgeExpired(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
		assert.Len(t, m.metrics.Find(metrics.MetricJobsPurged, nil), 1)
	})
}

func TestReaperService_ReclaimStalled(t *testing.T) {
	t.Parallel()
	m, svc := newReclaimingReaper(t, defaultReaperConfig())

	m.reclaimer.EXPECT().StalledTasks(gomock.Any(), 2*time.Minute, 100).
		Return([]string{"crashed", "expired", "acked", "finished"}, nil)
	m.reclaimer.EXPECT().ReclaimTask(gomock.Any(), "crashed", 2*time.Minute).Return(model.ReclaimRequeued, nil)
	m.reclaimer.EXPECT().ReclaimTask(gomock.Any(), "expired", 2*time.Minute).Return(model.ReclaimLost, nil)
	m.reclaimer.EXPECT().ReclaimTask(gomock.Any(), "acked", 2*time.Minute).Return(model.ReclaimNotStalled, nil)
	m.reclaimer.EXPECT().ReclaimTask(gomock.Any(), "finished", 2*time.Minute).Return(model.ReclaimLost, nil)
	m.reporter.EXPECT().
		ReportCompletion(gomock.Any(), "expired", model.CompletionReport{
			Status:  model.JobStatusFailure,
			Message: StalledMessage,
		}).
		Return(&model.JobRecord{JobID: "expired", Status: model.JobStatusFailure}, nil)
	m.reporter.EXPECT().ReportCompletion(gomock.Any(), "finished", gomock.Any()).
		Return(nil, apperrors.Conflictf("invalid transition from success to failure"))

	n, err := svc.ReclaimStalled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestReaperService_ReclaimStalled_BrokerError(t *testing.T) {
	t.Parallel()
	m, svc := newReclaimingReaper(t, defaultReaperConfig())

	m.reclaimer.EXPECT().StalledTasks(gomock.Any(), gomock.Any(), gomock.Any()).Return([]string{"a", "b"}, nil)
	m.reclaimer.EXPECT().ReclaimTask(gomock.Any(), "a", gomock.Any()).Return(model.ReclaimRequeued, nil)
	m.reclaimer.EXPECT().ReclaimTask(gomock.Any(), "b", gomock.Any()).
		Return(model.ReclaimNotStalled, apperrors.Connection(errors.New("refused"), "broker unreachable"))

	n, err := svc.ReclaimStalled(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConnection(err))
	assert.Equal(t, int64(1), n)
}

func TestReaperService_ReclaimStalled_DisabledWithoutReclaimer(t *testing.T) {
	t.Parallel()
	_, svc := newTestReaper(t, defaultReaperConfig())

	n, err := svc.ReclaimStalled(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReaperService_RunOnce_IncludesReclaim(t *testing.T) {
	t.Parallel()
	m, svc := newReclaimingReaper(t, defaultReaperConfig())

	gomock.InOrder(
		m.store.EXPECT().ListStale(gomock.Any(), gomock.Any()).Return(nil, nil),
		m.reclaimer.EXPECT().StalledTasks(gomock.Any(), gomock.Any(), gomock.Any()).Return([]string{"crashed"}, nil),
		m.reclaimer.EXPECT().ReclaimTask(gomock.Any(), "crashed", gomock.Any()).Return(model.ReclaimRequeued, nil),
		m.store.EXPECT().PurgeCompleted(gomock.Any(), gomock.Any()).Return(int64(0), nil),
	)

	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Len(t, m.metrics.Find(metrics.MetricJobTransition, map[string]string{
		"transition": metrics.TransitionReclaim,
		"result":     metrics.ResultSuccess,
	}), 1)
}

func TestReaperService_RunOnce_ContinuesAfterFailure(t *testing.T) {
	t.Parallel()
	m, svc := newTestReaper(t, defaultReaperConfig())

	m.store.EXPECT().ListStale(gomock.Any(), gomock.Any()).Return(nil, apperrors.Storage(errors.New("disk"), "list_stale_job_records", "job_records"))
	m.store.EXPECT().PurgeCompleted(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orphan sweep")
	assert.True(t, apperrors.IsStorage(err))

	assert.Len(t, m.metrics.Find(metrics.MetricJobTransition, map[string]string{
		"transition": metrics.TransitionOrphan,
		"result":     metrics.ResultError,
	}), 1)
	assert.Len(t, m.metrics.Find(metrics.MetricJobTransition, map[string]string{
		"transition": metrics.TransitionPurge,
		"result":     metrics.ResultNoop,
	}), 1)
}

func TestReaperService_Run_StopsOnCancel(t *testing.T) {
	t.Parallel()
	m, svc := newTestReaper(t, config.ReaperConfig{Interval: time.Hour, OrphanAfter: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	m.store.EXPECT().ListStale(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}

func TestReaperService_Run_RejectsZeroInterval(t *testing.T) {
	t.Parallel()
	_, svc := newTestReaper(t, config.ReaperConfig{})
	require.Error(t, svc.Run(context.Background()))
}
