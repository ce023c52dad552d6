// Package pgxutil runs job record statements over a database/sql pool, either through
// plain sql transactions (any driver) or through the native pgx connection underneath
// a pool opened with the pgx stdlib driver.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// WithSQLTx commits when fn returns nil and rolls back otherwise.
func WithSQLTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("open sql tx: %w", err)
	}
	defer func() {
		rbErr := tx.Rollback()
		if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("roll back sql tx: %w", rbErr))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit sql tx: %w", err)
	}
	return nil
}

// WithPgxConn pins one pooled connection and hands fn its *pgx.Conn.
// The pool must have been opened with the "pgx" driver.
func WithPgxConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	sqlConn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire pooled conn: %w", err)
	}
	defer func() { _ = sqlConn.Close() }()

	return sqlConn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("pool driver conn is %T, not a pgx stdlib conn", driverConn)
		}
		return fn(c.Conn())
	})
}

// WithPgxTx runs fn inside a read-write pgx transaction at the server's default isolation.
func WithPgxTx(ctx context.Context, db *sql.DB, fn func(pgx.Tx) error) error {
	return WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
		tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite})
		if err != nil {
			return fmt.Errorf("open pgx tx: %w", err)
		}
		// no-op once committed
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit pgx tx: %w", err)
		}
		return nil
	})
}
