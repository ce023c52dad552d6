package bootstrap

import (
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/target/receiptq/config"
	"github.com/target/receiptq/internal/observability/statsd"
	"github.com/target/receiptq/internal/observability/tracing"
)

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// Metrics is nil when metrics are disabled.
	Metrics statsd.Sink
	Tracer  *tracing.Tracer
	client  *statsd.Client
}

// Close releases the statsd socket, if any.
func (o ObservabilityContainer) Close() error {
	return o.client.Close()
}

// buildObservability configures the metrics sink and tracer.
// A statsd dial failure disables metrics instead of failing startup.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	out := ObservabilityContainer{Tracer: tracing.NewTracer(otel.GetTracerProvider())}
	if !cfg.IsMetricsEnabled() {
		return out
	}

	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.StatsdPrefix,
		Logger:  obsLogger,
	})
	if err != nil {
		obsLogger.Error("failed to initialise statsd client", "error", err)
		return out
	}
	out.client = client
	out.Metrics = client
	return out
}
