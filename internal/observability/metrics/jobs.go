// Package metrics names and tags the job lifecycle metrics emitted to statsd.
package metrics

import (
	"maps"
	"time"

	"github.com/target/receiptq/internal/domain/model"
	obserrors "github.com/target/receiptq/internal/observability/errors"
	"github.com/target/receiptq/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names for job lifecycle metrics.
const (
	TransitionSubmit   = "submit"
	TransitionReport   = "report"
	TransitionDispatch = "dispatch"
	TransitionOrphan   = "orphan"
	TransitionPurge    = "purge"
	TransitionRequeue  = "requeue"
	TransitionReclaim  = "reclaim"
)

// Metric names.
const (
	MetricJobTransition = "job.transition"
	MetricJobDuration   = "job.duration"
	MetricJobsPurged    = "job.purged"
	MetricQueueDepth    = "queue.depth"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Operation  model.Operation
	Transition string
	// Status is the job status reached by the transition, if any.
	Status   model.JobStatus
	Result   string
	Duration time.Duration
	Err      error
}

// EmitJobLifecycle counts one lifecycle transition and, when known, its duration.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     resultOf(in),
	}
	if in.Operation != "" {
		tags["operation"] = string(in.Operation)
	}
	if in.Status != "" {
		tags["status"] = string(in.Status)
	}
	if in.Err != nil {
		tags["error_class"] = obserrors.Classify(in.Err)
	}

	sink.Count(MetricJobTransition, 1, tags)
	if in.Duration > 0 {
		sink.Timing(MetricJobDuration, in.Duration, maps.Clone(tags))
	}
}

// EmitPurged counts job records removed by retention.
func EmitPurged(sink statsd.Sink, n int64) {
	if sink == nil || n <= 0 {
		return
	}
	sink.Count(MetricJobsPurged, n, nil)
}

// EmitQueueDepth reports broker queue counters as gauges tagged by state.
func EmitQueueDepth(sink statsd.Sink, stats *model.QueueStats) {
	if sink == nil || stats == nil {
		return
	}
	for state, v := range map[string]int64{
		"queued":    stats.Length,
		"started":   stats.StartedCount,
		"failed":    stats.FailedCount,
		"scheduled": stats.ScheduledCount,
		"deferred":  stats.DeferredCount,
	} {
		sink.Gauge(MetricQueueDepth, float64(v), map[string]string{"queue": stats.Name, "state": state})
	}
}

func resultOf(in JobMetric) string {
	switch {
	case in.Result != "":
		return in.Result
	case in.Err != nil:
		return ResultError
	default:
		return ResultSuccess
	}
}
