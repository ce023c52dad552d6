// Package migrate applies the embedded job_records schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Dialect selects the SQL flavor of the migrations to apply.
type Dialect string

const (
	// DialectPostgres applies migrations/postgres against a pgx-backed *sql.DB.
	DialectPostgres Dialect = "postgres"
	// DialectSQLite applies migrations/sqlite against a go-sqlite3-backed *sql.DB.
	DialectSQLite Dialect = "sqlite"
)

func (d Dialect) dir() (string, error) {
	switch d {
	case DialectPostgres, DialectSQLite:
		return "migrations/" + string(d), nil
	default:
		return "", fmt.Errorf("unsupported migration dialect %q", d)
	}
}

func (d Dialect) placeholder() string {
	if d == DialectSQLite {
		return "?"
	}
	return "$1"
}

func (d Dialect) createVersionTableSQL() string {
	if d == DialectSQLite {
		return `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	}
	return `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
}

// Run applies all SQL migrations embedded for the dialect. It is safe to call multiple times.
func Run(ctx context.Context, db *sql.DB, dialect Dialect) error {
	dir, err := dialect.dir()
	if err != nil {
		return err
	}

	if _, err = db.ExecContext(ctx, dialect.createVersionTableSQL()); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	files, err := listMigrations(dir)
	if err != nil {
		return err
	}

	r := runner{db: db, dialect: dialect, dir: dir, logger: slog.Default().With("component", "migrations")}
	for _, f := range files {
		if applyErr := r.apply(ctx, f); applyErr != nil {
			return applyErr
		}
	}
	return nil
}

func listMigrations(dir string) ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

type runner struct {
	db      *sql.DB
	dialect Dialect
	dir     string
	logger  *slog.Logger
}

func (r runner) applied(ctx context.Context, version string) (bool, error) {
	var n int
	query := `SELECT COUNT(1) FROM schema_migrations WHERE version = ` + r.dialect.placeholder()
	if err := r.db.QueryRowContext(ctx, query, version).Scan(&n); err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return n > 0, nil
}

func (r runner) apply(ctx context.Context, file string) error {
	version := strings.TrimSuffix(file, ".sql")
	done, err := r.applied(ctx, version)
	if err != nil || done {
		return err
	}

	sqlBytes, err := migrationsFS.ReadFile(r.dir + "/" + file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	r.logger.InfoContext(ctx, "applying migration", "version", version, "dialect", r.dialect)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			r.logger.ErrorContext(ctx, "failed to rollback transaction", "err", rollbackErr, "migration_file", file)
		}
	}()

	if _, execErr := tx.ExecContext(ctx, string(sqlBytes)); execErr != nil {
		return fmt.Errorf("exec migration %s: %w", file, execErr)
	}
	insert := `INSERT INTO schema_migrations (version) VALUES (` + r.dialect.placeholder() + `)`
	if _, insertErr := tx.ExecContext(ctx, insert, version); insertErr != nil {
		return fmt.Errorf("record migration %s: %w", file, insertErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit migration %s: %w", file, commitErr)
	}
	return nil
}
