package tracing

import (
	"context"

	servertiming "github.com/mitchellh/go-server-timing"
)

// Timing wraps a Server-Timing metric. The zero value is a no-op.
type Timing struct {
	metric *servertiming.Metric
}

// Stop stops the timing metric.
func (m *Timing) Stop() {
	if m != nil && m.metric != nil {
		m.metric.Stop()
	}
}

// StartTiming starts a Server-Timing metric when ctx carries a timing header
// (i.e. the request passed through the Server-Timing middleware).
func StartTiming(ctx context.Context, name, description string) *Timing {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &Timing{}
	}
	m := timing.NewMetric(name)
	if description != "" {
		m = m.WithDesc(description)
	}
	return &Timing{metric: m.Start()}
}
