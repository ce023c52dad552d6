package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/receiptq/config"
	"github.com/target/receiptq/internal/broker"
	"github.com/target/receiptq/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Callback      *service.CallbackAuthenticator
	Health        *service.HealthService
	Store         JobRecordRepository
	Broker        *broker.Client
	Observability ObservabilityContainer
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	DB     *sql.DB
	Store  JobRecordRepository
	Broker *broker.Client
	Logger *slog.Logger
}

// NewServices builds the coordinator and its companions over connected dependencies.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil || deps.Store == nil || deps.Broker == nil {
		return ServiceContainer{}, errors.New("database, store and broker are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := buildObservability(logger, deps.Config.Observability)

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Store:          deps.Store,
		Queue:          deps.Broker,
		Inspector:      deps.Broker,
		DefaultTimeout: deps.Config.Queue.DefaultTimeout,
		Logger:         logger,
		Metrics:        obs.Metrics,
		Tracer:         obs.Tracer,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	health, err := service.NewHealthService(service.HealthServiceOptions{
		DB:     deps.DB,
		Queue:  deps.Broker,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create health service: %w", err)
	}

	container := ServiceContainer{
		Jobs:          jobs,
		Health:        health,
		Store:         deps.Store,
		Broker:        deps.Broker,
		Observability: obs,
	}
	if deps.Config.Callback.SecretToken != "" {
		container.Callback, err = service.NewCallbackAuthenticator(deps.Config.Callback.SecretToken)
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("create callback authenticator: %w", err)
		}
	}
	return container, nil
}

// ServiceOrchestrationConfig is what RunServicesWithShutdown supervises.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

// shutdownWaitTimeout bounds both the HTTP drain and each background service's exit.
const shutdownWaitTimeout = 15 * time.Second

// supervisor owns the enabled modes of one process and the channel their fatal errors arrive on.
type supervisor struct {
	ctx     context.Context
	cfg     *ServiceOrchestrationConfig
	logger  *slog.Logger
	enabled map[config.ServiceMode]bool
	errCh   chan error
}

// backgroundService is a long-running loop bound to a service mode.
type backgroundService struct {
	mode config.ServiceMode
	name string
	run  func(context.Context) error
}

// runningService is a started backgroundService; done closes when run returns.
type runningService struct {
	name string
	done <-chan struct{}
}

// backgroundServices lists every loop receiptq can run. Only those whose mode is
// enabled are started.
func (s *supervisor) backgroundServices() []backgroundService {
	svcs := s.cfg.Services
	appCfg := s.cfg.Config
	obs := svcs.Observability

	return []backgroundService{
		{
			// Workers redial on dequeue errors; the API process relies on this loop instead.
			mode: config.ServiceModeHTTP,
			name: "broker-keeper",
			run: func(ctx context.Context) error {
				return keepBrokerConnected(ctx, svcs.Broker, appCfg.Queue.MaxBackoff, s.logger)
			},
		},
		{
			mode: config.ServiceModeWorker,
			name: "worker",
			run: func(ctx context.Context) error {
				return RunWorker(ctx, WorkerConfig{
					Broker:   svcs.Broker,
					Reporter: svcs.Jobs,
					Worker:   appCfg.Worker,
					Workflow: appCfg.Workflow,
					BaseURL:  appCfg.HTTP.BaseURL,
					Logger:   s.logger,
					Metrics:  obs.Metrics,
					Tracer:   obs.Tracer,
				})
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "reaper",
			run: func(ctx context.Context) error {
				return RunReaper(ctx, ReaperConfig{
					Store:     svcs.Store,
					Reporter:  svcs.Jobs,
					Inspector: svcs.Broker,
					Reclaimer: svcs.Broker,
					Config:    appCfg.Reaper,
					Logger:    s.logger,
					Metrics:   obs.Metrics,
				})
			},
		},
	}
}

// launch starts svc in its own goroutine when its mode is enabled and returns
// nil otherwise. A returned error is forwarded to errCh without blocking.
func (s *supervisor) launch(svc backgroundService) <-chan struct{} {
	if !s.enabled[svc.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := svc.run(s.ctx)
		if err == nil {
			return
		}
		err = fmt.Errorf("%s failed: %w", svc.name, err)
		select {
		case s.errCh <- err:
		case <-s.ctx.Done():
		default:
			s.logger.WarnContext(s.ctx, "dropping background service error", "service", svc.name, "error", err)
		}
	}()

	s.logger.InfoContext(s.ctx, "background service started", "service", svc.name, "mode", svc.mode)
	return done
}

func (s *supervisor) startAll() (*http.Server, []runningService) {
	var srv *http.Server
	if s.enabled[config.ServiceModeHTTP] {
		srv = StartHTTPServer(&HTTPServerConfig{
			Config:   s.cfg.Config,
			Services: s.cfg.Services,
			Logger:   s.logger,
			ErrCh:    s.errCh,
		})
	}

	var running []runningService
	for _, svc := range s.backgroundServices() {
		if done := s.launch(svc); done != nil {
			running = append(running, runningService{name: svc.name, done: done})
		}
	}
	return srv, running
}

// RunServicesWithShutdown starts every enabled mode and blocks until SIGINT or
// SIGTERM arrives or one of them fails, then stops the rest.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config with AppConfig is required")
	}
	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := &supervisor{
		ctx:     ctx,
		cfg:     cfg,
		logger:  logger,
		enabled: enabled,
		errCh:   make(chan error, errChanSize(enabled)),
	}
	srv, running := sup.startAll()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return waitForShutdown(shutdownConfig{
		cancel:     cancel,
		quit:       quit,
		errCh:      sup.errCh,
		httpServer: srv,
		logger:     logger,
		running:    running,
	})
}

// errChanSize leaves one slot per enabled mode plus one for the broker keeper,
// so no failing service blocks on a full channel.
func errChanSize(enabled map[config.ServiceMode]bool) int {
	n := 1
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			n++
		}
	}
	return n
}

type shutdownConfig struct {
	cancel     context.CancelFunc
	quit       <-chan os.Signal
	errCh      <-chan error
	httpServer *http.Server
	logger     *slog.Logger
	running    []runningService
}

// waitForShutdown returns nil after a signal, or the first service error.
func waitForShutdown(cfg shutdownConfig) error {
	var cause error
	select {
	case <-cfg.quit:
		cfg.logger.Info("shutdown signal received")
	case cause = <-cfg.errCh:
		cfg.logger.Error("service error", "error", cause)
	}
	cfg.cancel()

	stopErr := gracefulStop(cfg)
	if cause == nil {
		return stopErr
	}
	if stopErr != nil {
		cfg.logger.Error("graceful stop failed", "error", stopErr)
	}
	return cause
}

func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		// the service context is already canceled
		ctx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()
		if err := ShutdownHTTPServer(ShutdownConfig{Context: ctx, Server: cfg.httpServer, Logger: cfg.logger}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.running {
		select {
		case <-svc.done:
			cfg.logger.Info("background service stopped", "service", svc.name)
		case <-time.After(shutdownWaitTimeout):
			cfg.logger.Warn("background service did not stop in time", "service", svc.name)
		}
	}
	return nil
}
