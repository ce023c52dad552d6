package config

import "strings"

// AppConfig is everything receiptq reads from the environment. It is parsed with
// github.com/caarlos0/env; each section's tags live next to its type:
//   - database.go: storage selection, Postgres and Redis connections
//   - queue.go: broker queue name, connect retries, task retention
//   - integrations.go: callback secret, workflow webhook, upload limits
//   - http.go: listener and timeouts
//   - services.go: SERVICES, worker and reaper tuning
//   - observability.go: statsd and tracing
type AppConfig struct {
	// IsDev switches logs to human-readable text with source locations.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Storage  StorageConfig
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	Queue QueueConfig

	Callback CallbackConfig
	Workflow WorkflowConfig
	Upload   UploadConfig

	HTTP HTTPConfig

	// Services is a comma separated subset of http, worker, reaper.
	Services string `env:"SERVICES" envDefault:"http"`

	Worker WorkerConfig
	Reaper ReaperConfig

	Observability ObservabilityConfig
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Sanitize normalizes values after env parsing and clamps anything out of range
// back to its default. It never fails; ValidateServiceConfig reports missing settings.
func (c *AppConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if !logLevels[c.LogLevel] {
		c.LogLevel = "info"
	}

	for _, s := range []interface{ Sanitize() }{
		&c.Storage, &c.Queue, &c.Callback, &c.Workflow, &c.Upload,
		&c.HTTP, &c.Worker, &c.Reaper, &c.Observability,
	} {
		s.Sanitize()
	}
}

// GetEnabledServices parses SERVICES.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsServiceEnabled reports whether mode is listed in SERVICES. An unparseable
// list enables nothing.
func (c *AppConfig) IsServiceEnabled(mode ServiceMode) bool {
	enabled, err := ParseServices(c.Services)
	return err == nil && enabled[mode]
}
