package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker drains the broker queue and triggers the workflow webhook.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper fails orphaned records and purges old ones.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, worker, reaper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains queue worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// PollWait is how long a single dequeue blocks before looping.
	PollWait time.Duration `env:"WORKER_POLL_WAIT" envDefault:"5s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.PollWait < 100*time.Millisecond {
		w.PollWait = 100 * time.Millisecond
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// OrphanAfter is how long a record may stay queued before its broker task is checked.
	OrphanAfter time.Duration `env:"REAPER_ORPHAN_AFTER" envDefault:"15m"`

	// StallGrace is how long past its timeout a started task may sit before it is requeued.
	StallGrace time.Duration `env:"REAPER_STALL_GRACE" envDefault:"2m"`

	// Retention is how long terminal records are kept. Zero disables purging.
	Retention time.Duration `env:"REAPER_RETENTION" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.OrphanAfter < time.Minute {
		r.OrphanAfter = time.Minute
	}
	if r.StallGrace < 30*time.Second {
		r.StallGrace = 30 * time.Second
	}
	if r.Retention < 0 {
		r.Retention = 0
	}
	if r.Retention > 0 && r.Retention < time.Hour {
		r.Retention = time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	r.BatchSize = max(1, min(r.BatchSize, 10000))
}
