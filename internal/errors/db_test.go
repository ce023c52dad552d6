package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

func TestMapDBError_NilError(t *testing.T) {
	err := MapDBError(nil)
	if err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{
			name:     "deadline exceeded",
			err:      context.DeadlineExceeded,
			wantCode: ErrCodeTimeout,
		},
		{
			name:     "canceled wrapped",
			err:      fmt.Errorf("query: %w", context.Canceled),
			wantCode: ErrCodeCanceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if got := GetCode(err); got != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", got, tt.wantCode)
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	for _, in := range []error{pgx.ErrNoRows, sql.ErrNoRows} {
		if err := MapDBError(in); !IsNotFound(err) {
			t.Errorf("MapDBError(%v) should be NotFound, got %v", in, GetCode(err))
		}
	}
}

func TestMapDBError_UniqueViolation(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name:      "column name metadata",
			pgErr:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "job_id"},
			wantField: "job_id",
		},
		{
			name: "detail fallback",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: "Key (job_id)=(7b0c) already exists.",
			},
			wantField: "job_id",
		},
		{
			name:  "no metadata",
			pgErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			if !IsConflict(err) {
				t.Fatalf("MapDBError() code = %v, want conflict", GetCode(err))
			}
			if got := GetField(err); got != tt.wantField {
				t.Errorf("MapDBError() field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestMapDBError_CheckViolation(t *testing.T) {
	err := MapDBError(&pgconn.PgError{Code: pgerrcode.CheckViolation, ColumnName: "status"})
	if !IsValidation(err) {
		t.Fatalf("MapDBError() code = %v, want validation", GetCode(err))
	}
	if GetField(err) != "status" {
		t.Errorf("MapDBError() field = %q, want status", GetField(err))
	}
}

func TestMapDBError_UnknownPgError(t *testing.T) {
	err := MapDBError(&pgconn.PgError{Code: pgerrcode.DiskFull})
	if !IsInternal(err) {
		t.Errorf("MapDBError() code = %v, want internal", GetCode(err))
	}
}

func TestMapDBError_SQLite(t *testing.T) {
	tests := []struct {
		name     string
		err      sqlite3.Error
		wantCode ErrorCode
	}{
		{
			name:     "primary key",
			err:      sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey},
			wantCode: ErrCodeConflict,
		},
		{
			name:     "unique",
			err:      sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique},
			wantCode: ErrCodeConflict,
		},
		{
			name:     "check",
			err:      sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck},
			wantCode: ErrCodeValidation,
		},
		{
			name:     "busy",
			err:      sqlite3.Error{Code: sqlite3.ErrBusy},
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(MapDBError(tt.err)); got != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", got, tt.wantCode)
			}
		})
	}
}

func TestMapDBError_StandardError(t *testing.T) {
	in := errors.New("plain")
	if err := MapDBError(in); !errors.Is(err, in) {
		t.Errorf("MapDBError() = %v, want original error", err)
	}
}
