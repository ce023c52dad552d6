// Package testutil provides database, Redis and fixture helpers for package tests.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Import go-sqlite3 driver for in-memory job record stores.
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/target/receiptq/internal/migrate"
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// TestDBConfig holds configuration for the Postgres test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig returns default test database configuration.
// Defaults to port 55432 (local test DB from docker-compose test profile).
// CI/CD environments should set TEST_DB_PORT=5432 explicitly.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "receiptq"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "receiptq"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "receiptq"),
	}
}

func buildBaseDSN(cfg TestDBConfig) string {
	hostPort := net.JoinHostPort(cfg.Host, cfg.Port)
	sslMode := getEnvOrDefault("DB_SSL_MODE", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s", cfg.User, cfg.Password, hostPort, cfg.DBName, sslMode)
}

// SkipIfNoTestDB skips the test if the Postgres test database is not available.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()

	db, err := sql.Open("pgx", buildBaseDSN(DefaultTestDBConfig()))
	if err != nil {
		skipOrFail(t, requireDB(), "Test database not available:", err)
		return
	}
	defer closeAndLog(t, "probe DB", db)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		skipOrFail(t, requireDB(), "Test database not available:", pingErr)
	}
}

// SetupTestDB opens the shared Postgres test database, migrates it and clears job_records.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	db, err := sql.Open("pgx", buildBaseDSN(DefaultTestDBConfig()))
	if err != nil {
		t.Fatal("Failed to open database:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if migrateErr := migrate.Run(ctx, db, migrate.DialectPostgres); migrateErr != nil {
		t.Fatal("Failed to run migrations:", migrateErr)
	}
	CleanupTestDB(t, db)
	t.Cleanup(func() {
		CleanupTestDB(t, db)
		closeAndLog(t, "test DB", db)
	})
	return db
}

// CleanupTestDB removes all job records.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "DELETE FROM job_records"); err != nil {
		t.Fatalf("Failed to clean up table job_records: %v", err)
	}
}

// SetupEphemeralSchemaDB creates a unique schema per test, sets search_path to it and runs migrations.
// The schema is dropped when the test completes.
func SetupEphemeralSchemaDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	baseDSN := buildBaseDSN(DefaultTestDBConfig())
	adminDB, err := sql.Open("pgx", baseDSN)
	if err != nil {
		t.Fatal("Failed to open admin DB:", err)
	}

	schema := generateSchemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, execErr := adminDB.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); execErr != nil {
		closeAndLog(t, "admin DB", adminDB)
		t.Fatalf("Failed to create schema %s: %v", schema, execErr)
	}

	u, err := url.Parse(baseDSN)
	if err != nil {
		closeAndLog(t, "admin DB", adminDB)
		t.Fatal("Failed to parse DSN:", err)
	}
	q := u.Query()
	q.Set("search_path", schema+",public")
	u.RawQuery = q.Encode()

	db, err := sql.Open("pgx", u.String())
	if err != nil {
		closeAndLog(t, "admin DB", adminDB)
		t.Fatal("Failed to open schema-scoped DB:", err)
	}
	t.Logf("Using ephemeral schema: %s", schema)
	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		closeAndLog(t, "schema DB", db)
		if _, dropErr := adminDB.ExecContext(cctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); dropErr != nil {
			t.Logf("Warning: failed to drop schema %s: %v", schema, dropErr)
		}
		closeAndLog(t, "admin DB", adminDB)
	})

	if migrateErr := migrate.Run(ctx, db, migrate.DialectPostgres); migrateErr != nil {
		t.Fatal("Failed to run migrations in ephemeral schema:", migrateErr)
	}
	return db
}

// WithAutoDB chooses an ephemeral per-test schema when TEST_DB_EPHEMERAL is truthy,
// otherwise the shared test DB.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	if envBool("TEST_DB_EPHEMERAL") {
		fn(SetupEphemeralSchemaDB(t))
		return
	}
	fn(SetupTestDB(t))
}

// SetupSQLiteDB opens a private in-memory SQLite database with the job_records schema applied.
// A single connection keeps every statement on the same in-memory database.
func SetupSQLiteDB(t TestingTB) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", generateSchemaName())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatal("Failed to open sqlite:", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { closeAndLog(t, "sqlite DB", db) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if migrateErr := migrate.Run(ctx, db, migrate.DialectSQLite); migrateErr != nil {
		t.Fatal("Failed to run sqlite migrations:", migrateErr)
	}
	return db
}

// GetTestRedisAddr returns the Redis address for tests and whether it answered a ping.
func GetTestRedisAddr(t TestingTB) (string, bool) {
	t.Helper()

	if ciAddr := os.Getenv("REDIS_ADDR"); ciAddr != "" {
		return ciAddr, pingRedis(t, ciAddr)
	}
	for _, candidate := range []string{"redis:6379", "localhost:6379"} {
		if pingRedis(t, candidate) {
			return candidate, true
		}
	}
	return "localhost:56379", pingRedis(t, "localhost:56379")
}

func pingRedis(t TestingTB, addr string) bool {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer closeAndLog(t, "redis probe", client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Logf("Redis not available at %s: %v", addr, err)
		return false
	}
	return true
}

// SetupTestRedis returns a client on a reserved, flushed Redis DB. The test is skipped
// when Redis is unavailable unless TEST_REQUIRE_REDIS is set.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, ok := GetTestRedisAddr(t)
	if !ok {
		skipOrFail(t, requireRedis(), "Redis not available for testing")
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: selectTestRedisDB(t, addr)})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		closeAndLog(t, "redis client", client)
		skipOrFail(t, requireRedis(), "Redis flush failed:", err)
		return nil
	}
	t.Cleanup(func() { closeAndLog(t, "redis client", client) })
	return client
}

// selectTestRedisDB reserves a DB index in [1..15] through a lock key in DB 0,
// honoring TEST_REDIS_DB when set.
func selectTestRedisDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("Invalid TEST_REDIS_DB=%q, falling back to auto-select", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	defer closeAndLog(t, "redis meta client", meta)

	for i := 1; i <= 15; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lockKey := fmt.Sprintf("receiptq:testutil:db_lock:%d", i)
		lockVal := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
		reserved, err := meta.SetNX(ctx, lockKey, lockVal, 30*time.Minute).Result()
		cancel()
		if err != nil || !reserved {
			continue
		}
		t.Cleanup(func() {
			c := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
			defer closeAndLog(t, "redis cleanup client", c)
			cctx, ccancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer ccancel()
			if delErr := c.Del(cctx, lockKey).Err(); delErr != nil {
				t.Logf("warning: failed to release redis db lock %s: %v", lockKey, delErr)
			}
		})
		return i
	}
	return 1
}

// RunConcurrent runs every fn in its own goroutine and returns their errors in order.
func RunConcurrent(funcs ...func() error) []error {
	errs := make([]error, len(funcs))
	var wg sync.WaitGroup
	for i, fn := range funcs {
		wg.Add(1)
		go func(i int, fn func() error) {
			defer wg.Done()
			errs[i] = fn()
		}(i, fn)
	}
	wg.Wait()
	return errs
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// StringPtr returns a pointer to the given string value.
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to the given time value.
func TimePtr(t time.Time) *time.Time {
	return &t
}

func skipOrFail(t TestingTB, required bool, args ...any) {
	t.Helper()
	if required {
		t.Fatal(args...)
	}
	t.Skip(args...)
}

func generateSchemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

func closeAndLog(t TestingTB, name string, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		t.Logf("warning: failed to close %s: %v", name, err)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }
