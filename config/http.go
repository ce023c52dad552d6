package config

import (
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the externally reachable base URL (e.g., "https://receipts.example.com").
	// Used to build the callback URL handed to the workflow engine.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT"  envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 30 * time.Second
	}
	if h.WriteTimeout <= 0 {
		h.WriteTimeout = 60 * time.Second
	}
}
