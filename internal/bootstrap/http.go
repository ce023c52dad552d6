package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/receiptq/config"
	httpx "github.com/target/receiptq/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
	// ErrCh receives a listen failure. Optional.
	ErrCh chan<- error
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := httpx.NewRouter(buildRouterServices(cfg.Services, appCfg, logger))
	return startServer(serverParams{
		logger:  logger,
		handler: handler,
		http:    appCfg.HTTP,
		errCh:   cfg.ErrCh,
	})
}

func buildRouterServices(svcs ServiceContainer, appCfg *config.AppConfig, logger *slog.Logger) httpx.RouterServices {
	return httpx.RouterServices{
		Jobs:          svcs.Jobs,
		Callback:      svcs.Callback,
		Health:        svcs.Health,
		MaxUploadSize: appCfg.Upload.MaxFileSize,
		Logger:        logger,
	}
}

type serverParams struct {
	logger  *slog.Logger
	handler http.Handler
	http    config.HTTPConfig
	errCh   chan<- error
}

func startServer(p serverParams) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	addr := p.http.Addr
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           p.handler,
		ReadTimeout:       durationOr(p.http.ReadTimeout, 30*time.Second),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      durationOr(p.http.WriteTimeout, 60*time.Second),
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		p.logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("HTTP server failed", "error", err)
			if p.errCh != nil {
				select {
				case p.errCh <- fmt.Errorf("http server: %w", err):
				default:
				}
			}
		}
	}()

	return server
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
