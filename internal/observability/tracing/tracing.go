// Package tracing provides OpenTelemetry spans and Server-Timing metrics for job lifecycle operations.
//
// Spans go to the global tracer provider unless one is supplied. With no SDK installed
// the global provider is a no-op.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	apperrors "github.com/target/receiptq/internal/errors"
)

// TracerName is the instrumentation name for tracing.
const TracerName = "github.com/target/receiptq"

// Semantic attribute keys.
const (
	AttrJobID      = "receiptq.job_id"
	AttrJobStatus  = "receiptq.job.status"
	AttrOperation  = "receiptq.operation"
	AttrPayloadLen = "receiptq.payload.bytes"
	AttrQueue      = "receiptq.queue"
	AttrErrorCode  = "receiptq.error.code"
)

// Tracer wraps an OpenTelemetry tracer with job-specific span helpers.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer from tp, falling back to the global provider when tp is nil.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// NewNoopTracer returns a Tracer that records nothing.
func NewNoopTracer() *Tracer {
	return &Tracer{tracer: tracenoop.NewTracerProvider().Tracer("")}
}

// StartSpan starts a new span with the given name and attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartSubmit starts a span for a job submission.
func (t *Tracer) StartSubmit(ctx context.Context, jobID string, payloadLen int) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "receiptq.submit",
		attribute.String(AttrJobID, jobID),
		attribute.Int(AttrPayloadLen, payloadLen),
	)
}

// StartReport starts a span for a completion report.
func (t *Tracer) StartReport(ctx context.Context, jobID, status string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "receiptq.report_completion",
		attribute.String(AttrJobID, jobID),
		attribute.String(AttrJobStatus, status),
	)
}

// StartQuery starts a span for a read of job state.
func (t *Tracer) StartQuery(ctx context.Context, name, jobID string) (context.Context, trace.Span) {
	if jobID == "" {
		return t.StartSpan(ctx, name)
	}
	return t.StartSpan(ctx, name, attribute.String(AttrJobID, jobID))
}

// StartTask starts a span for a worker executing a task.
func (t *Tracer) StartTask(ctx context.Context, jobID, operation string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "receiptq.task",
		attribute.String(AttrJobID, jobID),
		attribute.String(AttrOperation, operation),
	)
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if code := apperrors.GetCode(err); code != "" {
			span.SetAttributes(attribute.String(AttrErrorCode, string(code)))
		}
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
