// Package bootstrap wires configuration, storage, the broker and the service modes together.
package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/target/receiptq/config"
)

// InitLogger installs the process-wide logger: JSON on stdout, or text with
// source locations when dev is set.
func InitLogger(level string, dev bool) *slog.Logger {
	return newLogger(os.Stdout, level, dev)
}

func newLogger(w io.Writer, level string, dev bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level), AddSource: dev}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if dev {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig checks that at least one service is enabled and that
// each enabled mode has the settings it cannot run without.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	if len(services) == 0 {
		return errors.New("no services enabled")
	}

	var errs []error
	if services[config.ServiceModeHTTP] && cfg.Callback.SecretToken == "" {
		errs = append(errs, errors.New("CALLBACK_SECRET_TOKEN is required when the http service is enabled"))
	}
	if services[config.ServiceModeWorker] && cfg.Workflow.WebhookURL == "" {
		errs = append(errs, errors.New("WORKFLOW_WEBHOOK_URL is required when the worker service is enabled"))
	}
	return errors.Join(errs...)
}

// GetEnabledServices returns the enabled service names in a stable order.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		// Return empty list on error - validation will catch this
		return []string{}
	}

	enabledServices := make([]string, 0, len(services))
	for svc := range services {
		enabledServices = append(enabledServices, string(svc))
	}
	sort.Strings(enabledServices)
	return enabledServices
}
