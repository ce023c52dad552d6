package config

import (
	"strings"
)

// StorageDialect identifies the job record store backend.
type StorageDialect string

const (
	// StoragePostgres stores job records in PostgreSQL through pgx.
	StoragePostgres StorageDialect = "postgres"
	// StorageSQLite stores job records in a local SQLite file through go-sqlite3.
	StorageSQLite StorageDialect = "sqlite"
)

// StorageConfig selects the job record store.
// When URL is empty the Postgres DSN is built from the DB_* settings.
type StorageConfig struct {
	// URL is a postgres:// DSN, a sqlite://path, or a file: SQLite DSN.
	URL string `env:"DATABASE_URL" envDefault:""`
}

// Sanitize trims the URL.
func (s *StorageConfig) Sanitize() {
	s.URL = strings.TrimSpace(s.URL)
}

// Dialect reports which store backend URL selects.
func (s StorageConfig) Dialect() StorageDialect {
	switch {
	case strings.HasPrefix(s.URL, "sqlite://"), strings.HasPrefix(s.URL, "file:"):
		return StorageSQLite
	default:
		return StoragePostgres
	}
}

// SQLitePath returns the go-sqlite3 DSN for a SQLite URL.
func (s StorageConfig) SQLitePath() string {
	return strings.TrimPrefix(s.URL, "sqlite://")
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"receiptq"`
	Password string `env:"PASSWORD"                envDefault:"receiptq"`
	Name     string `env:"NAME"                    envDefault:"receiptq"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // 'require' in production
	// RunMigrationsOnStart controls whether the application applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains the broker's Redis connection configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"redis://localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}
