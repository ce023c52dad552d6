package config

import (
	"strings"
	"time"
)

const defaultMaxUploadSize = 10 << 20 // 10 MiB

// CallbackConfig holds the shared secret the workflow engine presents on completion callbacks.
type CallbackConfig struct {
	SecretToken string `env:"CALLBACK_SECRET_TOKEN"`
}

// Sanitize trims the secret.
func (c *CallbackConfig) Sanitize() {
	c.SecretToken = strings.TrimSpace(c.SecretToken)
}

// WorkflowConfig configures the external workflow webhook the worker triggers.
type WorkflowConfig struct {
	WebhookURL string        `env:"WORKFLOW_WEBHOOK_URL"`
	APIKey     string        `env:"WORKFLOW_API_KEY"`
	VerifySSL  bool          `env:"WORKFLOW_VERIFY_SSL"  envDefault:"true"`
	Timeout    time.Duration `env:"WORKFLOW_TIMEOUT"     envDefault:"60s"`
}

// Sanitize applies guardrails to workflow configuration values.
func (w *WorkflowConfig) Sanitize() {
	w.WebhookURL = strings.TrimSpace(w.WebhookURL)
	w.APIKey = strings.TrimSpace(w.APIKey)
	if w.Timeout <= 0 {
		w.Timeout = 60 * time.Second
	}
}

// UploadConfig bounds receipt uploads.
type UploadConfig struct {
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" envDefault:"10485760"`
}

// Sanitize applies guardrails to upload configuration values.
func (u *UploadConfig) Sanitize() {
	if u.MaxFileSize <= 0 {
		u.MaxFileSize = defaultMaxUploadSize
	}
}
