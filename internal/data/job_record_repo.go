package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/receiptq/internal/core"
	"github.com/target/receiptq/internal/data/pgxutil"
	"github.com/target/receiptq/internal/domain/job"
	"github.com/target/receiptq/internal/domain/model"
	apperrors "github.com/target/receiptq/internal/errors"
)

const (
	jobRecordsTable = "job_records"

	opCreateJobRecord   = "create_job_record"
	opGetJobRecord      = "get_job_record"
	opUpdateJobStatus   = "update_job_status"
	opListJobRecords    = "list_job_records"
	opListStaleRecords  = "list_stale_job_records"
	opPurgeCompleted    = "purge_completed_job_records"
	defaultListLimit    = 50
	maxListLimit        = 1000
	defaultPurgeBatch   = 500
	maxPurgeBatchPerRun = 10000
)

var (
	_ core.JobRecordStore       = (*JobRecordRepo)(nil)
	_ core.JobRecordMaintenance = (*JobRecordRepo)(nil)
)

// terminalStatusSQL is the quoted IN-list of statuses that stamp completed_at, shared by both dialects.
var terminalStatusSQL = func() string {
	quoted := make([]string, 0, len(model.TerminalStatuses()))
	for _, s := range model.TerminalStatuses() {
		quoted = append(quoted, "'"+string(s)+"'")
	}
	return strings.Join(quoted, ", ")
}()

// RepoConfig holds configuration options for the job record repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRecordRepo is the Postgres implementation of core.JobRecordStore.
// DB must be opened with the pgx stdlib driver.
type JobRecordRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRecordRepo creates a new Postgres-backed job record repository.
func NewJobRecordRepo(db *sql.DB, cfg RepoConfig) *JobRecordRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRecordRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_record_repo", "dialect", "postgres"),
	}
}

const pgJobRecordColumns = `
  job_id::text AS job_id,
  status,
  filename,
  external_reference_id,
  created_at,
  completed_at,
  result_message,
  result_reference_url
`

const pgInsertJobRecordSQL = `
  INSERT INTO job_records (job_id, status, filename, external_reference_id, created_at)
  VALUES ($1, 'queued', $2, $3, $4)
  RETURNING ` + pgJobRecordColumns

// pgUpdateJobStatusSQL applies a transition only when the current status allows it.
// completed_at is stamped on the first entry into a terminal status and never moved afterwards.
var pgUpdateJobStatusSQL = `
  UPDATE job_records
  SET
    status = $2,
    completed_at = CASE
      WHEN $2 IN (` + terminalStatusSQL + `) AND status NOT IN (` + terminalStatusSQL + `) THEN $5
      ELSE completed_at
    END,
    result_message = COALESCE(NULLIF($3, ''), result_message),
    result_reference_url = COALESCE(NULLIF($4, ''), result_reference_url)
  WHERE job_id = $1
    AND (status NOT IN (` + terminalStatusSQL + `) OR status = $2)
  RETURNING ` + pgJobRecordColumns

// Create inserts a QUEUED record. The existence check and the insert share one transaction;
// the primary key covers the race between concurrent creators.
func (r *JobRecordRepo) Create(ctx context.Context, req model.CreateJobRecordRequest) (*model.JobRecord, error) {
	if err := validateJobID(req.JobID); err != nil {
		return nil, err
	}

	var rec *model.JobRecord
	txErr := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM job_records WHERE job_id = $1)`, req.JobID,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return apperrors.AlreadyExists(req.JobID)
		}

		rows, err := tx.Query(ctx, pgInsertJobRecordSQL,
			req.JobID, req.Filename, req.ExternalReferenceID, r.timeProvider.Now())
		if err != nil {
			return err
		}
		rec, err = pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.JobRecord])
		return err
	})
	if txErr != nil {
		return nil, createError(txErr, req.JobID)
	}

	r.logger.DebugContext(ctx, "job record created", "job_id", rec.JobID)
	return rec, nil
}

// Get returns the record for jobID or a NotFound error.
func (r *JobRecordRepo) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	if uuid.Validate(jobID) != nil {
		return nil, notFound(jobID)
	}

	var rec *model.JobRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+pgJobRecordColumns+` FROM job_records WHERE job_id = $1`, jobID)
		if err != nil {
			return err
		}
		rec, err = pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.JobRecord])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(jobID)
		}
		return nil, storageError(err, opGetJobRecord, jobID)
	}
	return rec, nil
}

// UpdateStatus moves a record to req.Status. Empty message or URL keep the stored values.
func (r *JobRecordRepo) UpdateStatus(ctx context.Context, req model.UpdateJobStatusRequest) (*model.JobRecord, error) {
	if !req.Status.Reportable() {
		return nil, apperrors.ValidationField("status", fmt.Sprintf("status %q cannot be reported", req.Status))
	}
	if uuid.Validate(req.JobID) != nil {
		return nil, notFound(req.JobID)
	}

	var rec *model.JobRecord
	txErr := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, pgUpdateJobStatusSQL,
			req.JobID, string(req.Status), req.Message, req.ReferenceURL, r.timeProvider.Now())
		if err != nil {
			return err
		}
		rec, err = pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.JobRecord])
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		var current model.JobStatus
		if scanErr := tx.QueryRow(ctx,
			`SELECT status FROM job_records WHERE job_id = $1`, req.JobID,
		).Scan(&current); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
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
func (r *JobRecordRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.JobRecord, error) {
	var status *string
	if opts.Status != nil {
		s := string(*opts.Status)
		status = &s
	}

	query := `SELECT ` + pgJobRecordColumns + `
	  FROM job_records
	  WHERE ($1::text IS NULL OR status = $1::text)
	  ORDER BY created_at DESC, job_id DESC
	  LIMIT $2`

	var out []*model.JobRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, status, clampLimit(opts.Limit))
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.JobRecord])
		return err
	})
	if err != nil {
		return nil, storageError(err, opListJobRecords, "")
	}
	return out, nil
}

// ListStale returns records in q.Status created before q.OlderThan, oldest first.
func (r *JobRecordRepo) ListStale(ctx context.Context, q model.StaleJobQuery) ([]*model.JobRecord, error) {
	query := `SELECT ` + pgJobRecordColumns + `
	  FROM job_records
	  WHERE status = $1 AND created_at < $2
	  ORDER BY created_at ASC
	  LIMIT $3`

	var out []*model.JobRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, string(q.Status), q.OlderThan, clampLimit(q.Limit))
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.JobRecord])
		return err
	})
	if err != nil {
		return nil, storageError(err, opListStaleRecords, "")
	}
	return out, nil
}

// PurgeCompleted deletes terminal records completed before the cutoff in batches.
func (r *JobRecordRepo) PurgeCompleted(ctx context.Context, params model.PurgeJobsParams) (int64, error) {
	query := `
	  DELETE FROM job_records
	  WHERE job_id IN (
	    SELECT job_id FROM job_records
	    WHERE status IN (` + terminalStatusSQL + `) AND completed_at < $1
	    ORDER BY completed_at ASC
	    LIMIT $2
	  )`

	batch := purgeBatchSize(params.BatchSize)
	var total int64
	for total < maxPurgeBatchPerRun {
		res, err := r.DB.ExecContext(ctx, query, params.CompletedBefore, batch)
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

// validateJobID rejects ids that are not canonical UUID text.
func validateJobID(jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return apperrors.ValidationField("job_id", "job id is required")
	}
	if err := uuid.Validate(jobID); err != nil {
		return apperrors.ValidationField("job_id", "job id must be a UUID")
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

func purgeBatchSize(n int) int {
	if n <= 0 {
		return defaultPurgeBatch
	}
	return n
}

// guardMissed explains a guarded UPDATE that matched no row, given the status
// read back in the same transaction. If that status permits the transition,
// another writer changed the row between the two statements.
func guardMissed(jobID string, current, to model.JobStatus) error {
	if err := job.CheckTransition(current, to); err != nil {
		return err
	}
	return apperrors.Conflictf("job %s changed concurrently, now %s", jobID, current)
}

func notFound(jobID string) error {
	return apperrors.NotFoundf("job %s not found", jobID).WithJobID(jobID)
}

// storageError wraps a driver error into the taxonomy. Context errors keep their own code.
func storageError(err error, op, jobID string) error {
	mapped := apperrors.MapDBError(err)
	switch apperrors.GetCode(mapped) {
	case apperrors.ErrCodeTimeout, apperrors.ErrCodeCanceled:
		var appErr *apperrors.AppError
		if errors.As(mapped, &appErr) {
			return appErr.WithOp(op).WithJobID(jobID)
		}
	}
	return apperrors.Storage(err, op, jobRecordsTable).WithJobID(jobID)
}

func createError(err error, jobID string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.ErrCodeConflict {
		return err
	}
	if apperrors.IsConflict(apperrors.MapDBError(err)) {
		return apperrors.AlreadyExists(jobID)
	}
	return storageError(err, opCreateJobRecord, jobID)
}

func updateError(err error, jobID string) error {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNotFound, apperrors.ErrCodeConflict, apperrors.ErrCodeValidation:
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return appErr.WithJobID(jobID)
		}
	}
	return storageError(err, opUpdateJobStatus, jobID)
}
