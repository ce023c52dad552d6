package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/target/receiptq/internal/core"
	"github.com/target/receiptq/internal/data/pgxutil"
	"github.com/target/receiptq/internal/domain/model"
	apperrors "github.com/target/receiptq/internal/errors"
)

var (
	_ core.JobRecordStore       = (*SQLiteJobRecordRepo)(nil)
	_ core.JobRecordMaintenance = (*SQLiteJobRecordRepo)(nil)
)

// SQLiteJobRecordRepo is the go-sqlite3 implementation of core.JobRecordStore.
// Timestamps are stored as UTC unix nanoseconds so ordering is numeric.
type SQLiteJobRecordRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewSQLiteJobRecordRepo creates a new SQLite-backed job record repository.
func NewSQLiteJobRecordRepo(db *sql.DB, cfg RepoConfig) *SQLiteJobRecordRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteJobRecordRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_record_repo", "dialect", "sqlite"),
	}
}

const liteJobRecordColumns = `job_id, status, filename, external_reference_id, created_at, completed_at,
  result_message, result_reference_url`

var liteUpdateJobStatusSQL = `
  UPDATE job_records
  SET
    status = ?1,
    completed_at = CASE
      WHEN ?1 IN (` + terminalStatusSQL + `) AND status NOT IN (` + terminalStatusSQL + `) THEN ?4
      ELSE completed_at
    END,
    result_message = COALESCE(NULLIF(?2, ''), result_message),
    result_reference_url = COALESCE(NULLIF(?3, ''), result_reference_url)
  WHERE job_id = ?5
    AND (status NOT IN (` + terminalStatusSQL + `) OR status = ?1)
  RETURNING ` + liteJobRecordColumns

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLiteJobRecord(row rowScanner) (*model.JobRecord, error) {
	var (
		rec         model.JobRecord
		createdAt   int64
		completedAt sql.NullInt64
		filename    sql.NullString
		extRef      sql.NullString
		message     sql.NullString
		refURL      sql.NullString
	)
	if err := row.Scan(&rec.JobID, &rec.Status, &filename, &extRef, &createdAt, &completedAt,
		&message, &refURL); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64).UTC()
		rec.CompletedAt = &t
	}
	rec.Filename = nullStringPtr(filename)
	rec.ExternalReferenceID = nullStringPtr(extRef)
	rec.ResultMessage = nullStringPtr(message)
	rec.ResultReferenceURL = nullStringPtr(refURL)
	return &rec, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Create inserts a QUEUED record, checking for an existing id inside the same transaction.
func (r *SQLiteJobRecordRepo) Create(ctx context.Context, req model.CreateJobRecordRequest) (*model.JobRecord, error) {
	if err := validateJobID(req.JobID); err != nil {
		return nil, err
	}

	var rec *model.JobRecord
	txErr := pgxutil.WithSQLTx(ctx, r.DB, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM job_records WHERE job_id = ?`, req.JobID,
		).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return apperrors.AlreadyExists(req.JobID)
		}

		row := tx.QueryRowContext(ctx, `
		  INSERT INTO job_records (job_id, status, filename, external_reference_id, created_at)
		  VALUES (?, 'queued', ?, ?, ?)
		  RETURNING `+liteJobRecordColumns,
			req.JobID, req.Filename, req.ExternalReferenceID, r.timeProvider.Now().UnixNano())
		var err error
		rec, err = scanLiteJobRecord(row)
		return err
	})
	if txErr != nil {
		return nil, createError(txErr, req.JobID)
	}

	r.logger.DebugContext(ctx, "job record created", "job_id", rec.JobID)
	return rec, nil
}

// Get returns the record for jobID or a NotFound error.
func (r *SQLiteJobRecordRepo) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	if uuid.Validate(jobID) != nil {
		return nil, notFound(jobID)
	}
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+liteJobRecordColumns+` FROM job_records WHERE job_id = ?`, jobID)
	rec, err := scanLiteJobRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(jobID)
		}
		return nil, storageError(err, opGetJobRecord, jobID)
	}
	return rec, nil
}

// UpdateStatus moves a record to req.Status. Empty message or URL keep the stored values.
func (r *SQLiteJobRecordRepo) UpdateStatus(
	ctx context.Context,
	req model.UpdateJobStatusRequest,
) (*model.JobRecord, error) {
	if !req.Status.Reportable() {
		return nil, apperrors.ValidationField("status", fmt.Sprintf("status %q cannot be reported", req.Status))
	}
	if uuid.Validate(req.JobID) != nil {
		return nil, notFound(req.JobID)
	}

	var rec *model.JobRecord
	txErr := pgxutil.WithSQLTx(ctx, r.DB, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, liteUpdateJobStatusSQL,
			string(req.Status), req.Message, req.ReferenceURL, r.timeProvider.Now().UnixNano(), req.JobID)
		var err error
		rec, err = scanLiteJobRecord(row)
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		var current model.JobStatus
		if scanErr := tx.QueryRowContext(ctx,
			`SELECT status FROM job_records WHERE job_id = ?`, req.JobID,
		).Scan(&current); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return notFound(req.JobID)
			}
			return scanErr
		}
		return guardMissed(req.JobID, current, req.Status)
	})
	if txErr != nil {
		return nil, updateError(txErr, req.JobID)
	}
	return rec, nil
}

// List returns records ordered by created_at descending, optionally filtered by status.
func (r *SQLiteJobRecordRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.JobRecord, error) {
	var status any
	if opts.Status != nil {
		status = string(*opts.Status)
	}

	rows, err := r.DB.QueryContext(ctx, `
	  SELECT `+liteJobRecordColumns+`
	  FROM job_records
	  WHERE (?1 IS NULL OR status = ?1)
	  ORDER BY created_at DESC, job_id DESC
	  LIMIT ?2`, status, clampLimit(opts.Limit))
	if err != nil {
		return nil, storageError(err, opListJobRecords, "")
	}
	out, err := collectLiteRows(rows)
	if err != nil {
		return nil, storageError(err, opListJobRecords, "")
	}
	return out, nil
}

// ListStale returns records in q.Status created before q.OlderThan, oldest first.
func (r *SQLiteJobRecordRepo) ListStale(ctx context.Context, q model.StaleJobQuery) ([]*model.JobRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `
	  SELECT `+liteJobRecordColumns+`
	  FROM job_records
	  WHERE status = ? AND created_at < ?
	  ORDER BY created_at ASC
	  LIMIT ?`, string(q.Status), q.OlderThan.UTC().UnixNano(), clampLimit(q.Limit))
	if err != nil {
		return nil, storageError(err, opListStaleRecords, "")
	}
	out, err := collectLiteRows(rows)
	if err != nil {
		return nil, storageError(err, opListStaleRecords, "")
	}
	return out, nil
}

// PurgeCompleted deletes terminal records completed before the cutoff in batches.
func (r *SQLiteJobRecordRepo) PurgeCompleted(ctx context.Context, params model.PurgeJobsParams) (int64, error) {
	query := `
	  DELETE FROM job_records
	  WHERE job_id IN (
	    SELECT job_id FROM job_records
	    WHERE status IN (` + terminalStatusSQL + `) AND completed_at < ?
	    ORDER BY completed_at ASC
	    LIMIT ?
	  )`

	batch := purgeBatchSize(params.BatchSize)
	cutoff := params.CompletedBefore.UTC().UnixNano()
	var total int64
	for total < maxPurgeBatchPerRun {
		res, err := r.DB.ExecContext(ctx, query, cutoff, batch)
		if err != nil {
			return total, storageError(err, opPurgeCompleted, "")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, storageError(err, opPurgeCompleted, "")
		}
		total += n
		if n < int64(batch) {
			break
		}
	}
	return total, nil
}

func collectLiteRows(rows *sql.Rows) ([]*model.JobRecord, error) {
	defer func() { _ = rows.Close() }()

	var out []*model.JobRecord
	for rows.Next() {
		rec, err := scanLiteJobRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
