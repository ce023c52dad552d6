package tracing

import (
	"context"
	"errors"
	"testing"

	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	apperrors "github.com/target/receiptq/internal/errors"
)

func TestNewTracer_FallsBackToGlobal(t *testing.T) {
	tr := NewTracer(nil)
	require.NotNil(t, tr)

	ctx, span := tr.StartSubmit(context.Background(), "job-1", 12)
	require.NotNil(t, ctx)
	End(span, nil)
}

func TestTracer_Spans(t *testing.T) {
	tr := NewTracer(tracenoop.NewTracerProvider())

	_, span := tr.StartReport(context.Background(), "job-1", "success")
	End(span, apperrors.NotFound("job not found"))

	_, span = tr.StartQuery(context.Background(), "receiptq.list_jobs", "")
	End(span, errors.New("boom"))

	_, span = tr.StartTask(context.Background(), "job-1", "trigger_workflow")
	End(span, nil)
}

func TestStartTiming_NoHeader(t *testing.T) {
	m := StartTiming(context.Background(), "db", "")
	require.NotNil(t, m)
	m.Stop()
	var zero *Timing
	zero.Stop()
}

func TestStartTiming_RecordsMetric(t *testing.T) {
	var h servertiming.Header
	ctx := servertiming.NewContext(context.Background(), &h)

	m := StartTiming(ctx, "broker", "enqueue")
	m.Stop()

	require.Len(t, h.Metrics, 1)
	assert.Equal(t, "broker", h.Metrics[0].Name)
	assert.Equal(t, "enqueue", h.Metrics[0].Desc)
}
