package config

import (
	"strings"
	"time"
)

// QueueConfig controls the broker client and task retention.
type QueueConfig struct {
	// Name is the broker queue tasks are pushed to.
	Name string `env:"QUEUE_NAME" envDefault:"default"`

	// MaxConnectRetries is the number of connect attempts before giving up.
	MaxConnectRetries int `env:"QUEUE_MAX_CONNECT_RETRIES" envDefault:"3"`

	// InitialBackoff and MaxBackoff bound the exponential wait between connect attempts.
	InitialBackoff time.Duration `env:"QUEUE_INITIAL_BACKOFF" envDefault:"1s"`
	MaxBackoff     time.Duration `env:"QUEUE_MAX_BACKOFF"     envDefault:"30s"`

	// DefaultTimeout bounds the worker's execution of a task.
	DefaultTimeout time.Duration `env:"QUEUE_DEFAULT_TIMEOUT" envDefault:"300s"`

	// TaskTTL expires task hashes that are never dequeued.
	TaskTTL time.Duration `env:"QUEUE_TASK_TTL" envDefault:"24h"`

	// FailedTTL keeps failed tasks inspectable for this long.
	FailedTTL time.Duration `env:"QUEUE_FAILED_TTL" envDefault:"168h"`

	// DialTimeout bounds a single connect attempt.
	DialTimeout time.Duration `env:"QUEUE_DIAL_TIMEOUT" envDefault:"5s"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	q.Name = strings.TrimSpace(q.Name)
	if q.Name == "" {
		q.Name = "default"
	}
	if q.MaxConnectRetries < 1 {
		q.MaxConnectRetries = 1
	}
	if q.InitialBackoff <= 0 {
		q.InitialBackoff = time.Second
	}
	if q.MaxBackoff < q.InitialBackoff {
		q.MaxBackoff = q.InitialBackoff
	}
	if q.DefaultTimeout <= 0 {
		q.DefaultTimeout = 300 * time.Second
	}
	if q.TaskTTL < time.Minute {
		q.TaskTTL = time.Minute
	}
	if q.FailedTTL < time.Hour {
		q.FailedTTL = time.Hour
	}
	if q.DialTimeout <= 0 {
		q.DialTimeout = 5 * time.Second
	}
}
