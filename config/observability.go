package config

import "strings"

const defaultObservabilityName = "receiptq"

// ObservabilityConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityConfig struct {
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"false"`
	StatsdAddress  string `env:"STATSD_ADDR"     envDefault:"127.0.0.1:8125"`
	StatsdPrefix   string `env:"STATSD_PREFIX"   envDefault:"receiptq"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.MetricsEnabled = false
	}
	c.StatsdPrefix = strings.Trim(strings.TrimSpace(c.StatsdPrefix), ".")
	if c.StatsdPrefix == "" {
		c.StatsdPrefix = defaultObservabilityName
	}
}

// IsMetricsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityConfig) IsMetricsEnabled() bool {
	return c.MetricsEnabled && c.StatsdAddress != ""
}
