// Package statsdtest provides an in-memory statsd.Sink for tests.
package statsdtest

import (
	"maps"
	"sync"
	"time"

	"github.com/target/receiptq/internal/observability/statsd"
)

// Metric is one recorded emission.
type Metric struct {
	Kind  string // "count", "gauge" or "timing"
	Name  string
	Value float64
	Tags  map[string]string
}

// Recorder captures every metric it receives.
type Recorder struct {
	mu      sync.Mutex
	metrics []Metric
}

var _ statsd.Sink = (*Recorder)(nil)

// Count records a counter.
func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.add(Metric{Kind: "count", Name: name, Value: float64(value), Tags: maps.Clone(tags)})
}

// Gauge records a gauge.
func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	r.add(Metric{Kind: "gauge", Name: name, Value: value, Tags: maps.Clone(tags)})
}

// Timing records a timing in milliseconds.
func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.add(Metric{Kind: "timing", Name: name, Value: float64(value.Milliseconds()), Tags: maps.Clone(tags)})
}

func (r *Recorder) add(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}

// Metrics returns a copy of everything recorded so far.
func (r *Recorder) Metrics() []Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Metric(nil), r.metrics...)
}

// Find returns recorded metrics with the given name whose tags include every pair in match.
func (r *Recorder) Find(name string, match map[string]string) []Metric {
	var out []Metric
	for _, m := range r.Metrics() {
		if m.Name != name {
			continue
		}
		ok := true
		for k, v := range match {
			if m.Tags[k] != v {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, m)
		}
	}
	return out
}
