package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" database/sql driver

	"github.com/target/receiptq/config"
	"github.com/target/receiptq/internal/core"
	"github.com/target/receiptq/internal/data"
	"github.com/target/receiptq/internal/migrate"
)

// DatabaseConfig contains configuration for database connections.
type DatabaseConfig struct {
	Storage     config.StorageConfig
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// JobRecordRepository is the full storage surface backed by one database.
type JobRecordRepository interface {
	core.JobRecordStore
	core.JobRecordMaintenance
}

// ConnectDB opens the job record database selected by Storage and verifies it with a ping.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, migrate.Dialect, error) {
	driver, dsn, dialect := databaseDSN(cfg)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}

	// Configure connection pool
	if dialect == migrate.DialectSQLite {
		// go-sqlite3 serializes writers; one connection avoids SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, "", fmt.Errorf("ping database: %w", pingErr)
	}

	if cfg.Logger != nil {
		if dialect == migrate.DialectSQLite {
			cfg.Logger.Info("database connected", "dialect", dialect, "path", cfg.Storage.SQLitePath())
		} else {
			cfg.Logger.Info("database connected",
				"dialect", dialect,
				"host", cfg.DBConfig.Host,
				"port", cfg.DBConfig.Port,
				"database", cfg.DBConfig.Name,
			)
		}
	}

	return db, dialect, nil
}

func databaseDSN(cfg DatabaseConfig) (string, string, migrate.Dialect) {
	if cfg.Storage.Dialect() == config.StorageSQLite {
		dsn := cfg.Storage.SQLitePath()
		if !strings.Contains(dsn, "_busy_timeout") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_busy_timeout=5000"
		}
		return "sqlite3", dsn, migrate.DialectSQLite
	}
	if cfg.Storage.URL != "" {
		return "pgx", cfg.Storage.URL, migrate.DialectPostgres
	}

	// Build DSN using url.URL to safely handle special characters in credentials
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.DBConfig.User, cfg.DBConfig.Password),
		Host:   net.JoinHostPort(cfg.DBConfig.Host, strconv.Itoa(cfg.DBConfig.Port)),
		Path:   "/" + cfg.DBConfig.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.DBConfig.SSLMode)
	u.RawQuery = q.Encode()
	return "pgx", u.String(), migrate.DialectPostgres
}

// NewJobRecordRepository returns the repository implementation for dialect.
//
//nolint:ireturn // the dialect picks the implementation at runtime.
func NewJobRecordRepository(db *sql.DB, dialect migrate.Dialect, logger *slog.Logger) JobRecordRepository {
	cfg := data.RepoConfig{Logger: logger}
	if dialect == migrate.DialectSQLite {
		return data.NewSQLiteJobRecordRepo(db, cfg)
	}
	return data.NewJobRecordRepo(db, cfg)
}

// RunMigrations applies the embedded job_records schema for dialect.
func RunMigrations(ctx context.Context, db *sql.DB, dialect migrate.Dialect, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db, dialect); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed", "dialect", dialect)
	}
	return nil
}
