package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/receiptq/internal/bootstrap"
	"github.com/target/receiptq/internal/broker"
	"github.com/target/receiptq/internal/migrate"
)

const defaultCommandTimeout = 5 * time.Minute

// commandScope bounds a command by timeout and SIGINT/SIGTERM.
func commandScope(cmdCtx *commandContext, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func (cmdCtx *commandContext) databaseConfig() bootstrap.DatabaseConfig {
	return bootstrap.DatabaseConfig{
		Storage:     cmdCtx.Config.Storage,
		DBConfig:    cmdCtx.Config.Postgres,
		RedisConfig: cmdCtx.Config.Redis,
		DialTimeout: cmdCtx.Config.Queue.DialTimeout,
		Logger:      cmdCtx.Logger,
	}
}

func withDatabase(
	ctx context.Context,
	cmdCtx *commandContext,
	f func(context.Context, *sql.DB, migrate.Dialect) error,
) error {
	db, dialect, err := bootstrap.ConnectDB(cmdCtx.databaseConfig())
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db, dialect)
}

func withBroker(ctx context.Context, cmdCtx *commandContext, f func(context.Context, *broker.Client) error) error {
	factory, _, err := bootstrap.NewRedisClientFactory(cmdCtx.databaseConfig())
	if err != nil {
		return fmt.Errorf("configure redis: %w", err)
	}
	client, err := bootstrap.ConnectBroker(ctx, bootstrap.BrokerConfig{
		Queue:   cmdCtx.Config.Queue,
		Clients: factory,
		Logger:  cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	return f(ctx, client)
}
