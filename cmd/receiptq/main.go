package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/target/receiptq/config"
	"github.com/target/receiptq/internal/bootstrap"
	"github.com/target/receiptq/internal/broker"
	"github.com/target/receiptq/internal/migrate"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger("info", false)
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.InitLogger(cfg.LogLevel, cfg.IsDev)

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	infra, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer infra.close(ctx, logger)

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, infra.db, infra.dialect, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config: &cfg,
		DB:     infra.db,
		Store:  bootstrap.NewJobRecordRepository(infra.db, infra.dialect, logger),
		Broker: infra.broker,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := services.Observability.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close statsd client failed", "error", cerr)
		}
	}()

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:   &cfg,
		Services: services,
		DB:       infra.db,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting receiptq service",
		"storage", cfg.Storage.Dialect(),
		"queue", cfg.Queue.Name,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}

type infrastructure struct {
	db      *sql.DB
	dialect migrate.Dialect
	broker  *broker.Client
}

func (i *infrastructure) close(ctx context.Context, logger *slog.Logger) {
	if i.broker != nil {
		if err := i.broker.Close(); err != nil {
			logger.ErrorContext(ctx, "close broker failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			logger.ErrorContext(ctx, "close database failed", "error", err)
		}
	}
}

// initInfrastructure connects the job record database and the broker.
// A broker that cannot be reached is logged and left disconnected. Submits fail
// with a connection error until the broker keeper or a worker redials it.
func initInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*infrastructure, error) {
	dbCfg := bootstrap.DatabaseConfig{
		Storage:     cfg.Storage,
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		DialTimeout: cfg.Queue.DialTimeout,
		Logger:      logger,
	}

	db, dialect, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	client, err := newBroker(dbCfg, cfg.Queue, logger)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		}
		return nil, err
	}

	if cerr := client.Connect(ctx); cerr != nil {
		logger.WarnContext(ctx, "broker unavailable at startup; continuing disconnected", "error", cerr)
	}
	return &infrastructure{db: db, dialect: dialect, broker: client}, nil
}

func newBroker(dbCfg bootstrap.DatabaseConfig, queue config.QueueConfig, logger *slog.Logger) (*broker.Client, error) {
	factory, addr, err := bootstrap.NewRedisClientFactory(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("configure redis: %w", err)
	}
	logger.Info("broker configured", "addr", addr, "queue", queue.Name)

	client, err := bootstrap.NewBrokerClient(bootstrap.BrokerConfig{
		Queue:   queue,
		Clients: factory,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create broker client: %w", err)
	}
	return client, nil
}
