package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/receiptq/config"
	"github.com/target/receiptq/internal/domain/model"
	"github.com/target/receiptq/internal/migrate"
	"github.com/target/receiptq/internal/testutil"
)

func TestDatabaseDSN(t *testing.T) {
	tests := []struct {
		name        string
		cfg         DatabaseConfig
		wantDriver  string
		wantDSN     string
		wantDialect migrate.Dialect
	}{
		{
			name:        "sqlite path gets a busy timeout",
			cfg:         DatabaseConfig{Storage: config.StorageConfig{URL: "sqlite:///var/lib/receiptq/jobs.db"}},
			wantDriver:  "sqlite3",
			wantDSN:     "/var/lib/receiptq/jobs.db?_busy_timeout=5000",
			wantDialect: migrate.DialectSQLite,
		},
		{
			name:        "sqlite dsn with query keeps its params",
			cfg:         DatabaseConfig{Storage: config.StorageConfig{URL: "file:jobs.db?cache=shared"}},
			wantDriver:  "sqlite3",
			wantDSN:     "file:jobs.db?cache=shared&_busy_timeout=5000",
			wantDialect: migrate.DialectSQLite,
		},
		{
			name:        "explicit busy timeout is left alone",
			cfg:         DatabaseConfig{Storage: config.StorageConfig{URL: "file:jobs.db?_busy_timeout=100"}},
			wantDriver:  "sqlite3",
			wantDSN:     "file:jobs.db?_busy_timeout=100",
			wantDialect: migrate.DialectSQLite,
		},
		{
			name:        "postgres url is used as is",
			cfg:         DatabaseConfig{Storage: config.StorageConfig{URL: "postgres://u:p@db:5432/receipts"}},
			wantDriver:  "pgx",
			wantDSN:     "postgres://u:p@db:5432/receipts",
			wantDialect: migrate.DialectPostgres,
		},
		{
			name: "postgres dsn built from parts escapes credentials",
			cfg: DatabaseConfig{DBConfig: config.DBConfig{
				Host: "db", Port: 5433, User: "svc", Password: "p@ss/word", Name: "receipts", SSLMode: "require",
			}},
			wantDriver:  "pgx",
			wantDSN:     "postgres://svc:p%40ss%2Fword@db:5433/receipts?sslmode=require",
			wantDialect: migrate.DialectPostgres,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, dialect := databaseDSN(tt.cfg)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
			assert.Equal(t, tt.wantDialect, dialect)
		})
	}
}

func TestConnectDB_SQLiteRoundTrip(t *testing.T) {
	db, dialect, err := ConnectDB(DatabaseConfig{
		Storage: config.StorageConfig{URL: "file:bootstrap_roundtrip?mode=memory&cache=shared"},
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.Equal(t, migrate.DialectSQLite, dialect)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, RunMigrations(ctx, db, dialect, quietLogger()))

	repo := NewJobRecordRepository(db, dialect, quietLogger())
	req := testutil.NewCreateJobRecordRequest()
	created, err := repo.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, created.Status)

	got, err := repo.Get(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, req.ExternalReferenceID, got.ExternalReferenceID)
}

func TestNewRedisClientFactory(t *testing.T) {
	t.Run("direct url redacts credentials", func(t *testing.T) {
		factory, desc, err := NewRedisClientFactory(DatabaseConfig{
			RedisConfig: config.RedisConfig{URI: "redis://:hunter2@cache:6380/2"},
		})
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", desc)

		a, b := factory(), factory()
		t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
		assert.NotSame(t, a, b)
	})

	t.Run("plain address", func(t *testing.T) {
		_, desc, err := NewRedisClientFactory(DatabaseConfig{
			RedisConfig: config.RedisConfig{URI: "localhost:6379"},
		})
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", desc)
	})

	t.Run("cluster falls back to uri", func(t *testing.T) {
		_, desc, err := NewRedisClientFactory(DatabaseConfig{
			RedisConfig: config.RedisConfig{UseCluster: true, URI: "redis://node1:7000"},
		})
		require.NoError(t, err)
		assert.Equal(t, "cluster:node1:7000", desc)
	})

	errCases := map[string]config.RedisConfig{
		"direct without uri":         {URI: "  "},
		"bad redis url":              {URI: "redis://host:notaport/x"},
		"sentinel without nodes":     {UseSentinel: true},
		"cluster without any target": {UseCluster: true},
	}
	for name, rc := range errCases {
		t.Run(name, func(t *testing.T) {
			_, _, err := NewRedisClientFactory(DatabaseConfig{RedisConfig: rc})
			require.Error(t, err)
		})
	}
}

func TestRedactAddr(t *testing.T) {
	assert.Equal(t, "cache:6379", redactAddr("user:pw@cache:6379"))
	assert.Equal(t, "sentinel:mymaster", redactAddr("sentinel:mymaster"))
}
