package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/target/receiptq/internal/bootstrap"
	"github.com/target/receiptq/internal/broker"
	"github.com/target/receiptq/internal/domain/model"
	"github.com/target/receiptq/internal/migrate"
	"github.com/target/receiptq/internal/service"
)

const defaultListLimit = 50

type migrateOptions struct {
	Timeout time.Duration
}

type listOptions struct {
	Status *model.JobStatus
	Limit  int
}

type requeueOptions struct {
	JobID string
	File  string
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := newFlagSet("migrate")
	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration to wait for migrations to complete")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseListFlags(args []string) (listOptions, error) {
	fs := newFlagSet("jobs-list")
	var status string
	opts := listOptions{}
	fs.StringVar(&status, "status", "", "Only list jobs in this status (queued, processing, success, failure)")
	fs.IntVar(&opts.Limit, "limit", defaultListLimit, "Maximum number of jobs to print")

	if err := fs.Parse(args); err != nil {
		return listOptions{}, err
	}
	if opts.Limit <= 0 {
		return listOptions{}, errors.New("--limit must be greater than zero")
	}
	if status != "" {
		var s model.JobStatus
		if err := s.UnmarshalText([]byte(status)); err != nil {
			return listOptions{}, fmt.Errorf("--status: %w", err)
		}
		opts.Status = &s
	}
	return opts, nil
}

func parseJobIDFlag(name string, args []string) (string, error) {
	fs := newFlagSet(name)
	var id string
	fs.StringVar(&id, "id", "", "Job id")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("--id is required")
	}
	return id, nil
}

func parseRequeueFlags(args []string) (requeueOptions, error) {
	fs := newFlagSet("requeue")
	opts := requeueOptions{}
	fs.StringVar(&opts.JobID, "id", "", "Job id of the queued record")
	fs.StringVar(&opts.File, "file", "", "Path to a local copy of the receipt image")
	if err := fs.Parse(args); err != nil {
		return requeueOptions{}, err
	}
	if opts.JobID == "" || opts.File == "" {
		return requeueOptions{}, errors.New("--id and --file are required")
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}
	ctx, cancel := commandScope(cmdCtx, opts.Timeout)
	defer cancel()

	return withDatabase(ctx, cmdCtx, func(ctx context.Context, db *sql.DB, dialect migrate.Dialect) error {
		cmdCtx.Logger.Info("running database migrations", "dialect", dialect)
		return bootstrap.RunMigrations(ctx, db, dialect, cmdCtx.Logger)
	})
}

func runJobsList(cmdCtx *commandContext, args []string) error {
	opts, err := parseListFlags(args)
	if err != nil {
		return err
	}
	ctx, cancel := commandScope(cmdCtx, defaultCommandTimeout)
	defer cancel()

	return withDatabase(ctx, cmdCtx, func(ctx context.Context, db *sql.DB, dialect migrate.Dialect) error {
		repo := bootstrap.NewJobRecordRepository(db, dialect, cmdCtx.Logger)
		recs, err := repo.List(ctx, model.JobListOptions{Status: opts.Status, Limit: opts.Limit})
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		return renderJobs(cmdCtx.Out, recs)
	})
}

func runJobGet(cmdCtx *commandContext, args []string) error {
	id, err := parseJobIDFlag("job-get", args)
	if err != nil {
		return err
	}
	ctx, cancel := commandScope(cmdCtx, defaultCommandTimeout)
	defer cancel()

	return withDatabase(ctx, cmdCtx, func(ctx context.Context, db *sql.DB, dialect migrate.Dialect) error {
		rec, err := bootstrap.NewJobRecordRepository(db, dialect, cmdCtx.Logger).Get(ctx, id)
		if err != nil {
			return err
		}
		return renderJSON(cmdCtx.Out, rec)
	})
}

func runQueueStats(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := commandScope(cmdCtx, defaultCommandTimeout)
	defer cancel()

	return withBroker(ctx, cmdCtx, func(ctx context.Context, client *broker.Client) error {
		stats, err := client.QueueStats(ctx)
		if err != nil {
			return err
		}
		return renderQueueStats(cmdCtx.Out, stats)
	})
}

func runRequeue(cmdCtx *commandContext, args []string) error {
	opts, err := parseRequeueFlags(args)
	if err != nil {
		return err
	}
	payload, err := os.ReadFile(opts.File)
	if err != nil {
		return fmt.Errorf("read %s: %w", opts.File, err)
	}

	ctx, cancel := commandScope(cmdCtx, defaultCommandTimeout)
	defer cancel()

	return withDatabase(ctx, cmdCtx, func(ctx context.Context, db *sql.DB, dialect migrate.Dialect) error {
		return withBroker(ctx, cmdCtx, func(ctx context.Context, client *broker.Client) error {
			svc, err := service.NewJobService(service.JobServiceOptions{
				Store:          bootstrap.NewJobRecordRepository(db, dialect, cmdCtx.Logger),
				Queue:          client,
				Inspector:      client,
				DefaultTimeout: cmdCtx.Config.Queue.DefaultTimeout,
				Logger:         cmdCtx.Logger,
			})
			if err != nil {
				return err
			}
			if err := svc.Requeue(ctx, opts.JobID, model.SubmitRequest{
				Payload:     payload,
				ContentType: http.DetectContentType(payload),
			}); err != nil {
				return err
			}
			return writef(cmdCtx.Out, "requeued %s on %s\n", opts.JobID, client.QueueName())
		})
	})
}

func renderJobs(w io.Writer, recs []*model.JobRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "JOB ID\tSTATUS\tCREATED\tCOMPLETED\tEXTERNAL REF"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range recs {
		completed := "-"
		if rec.CompletedAt != nil {
			completed = rec.CompletedAt.UTC().Format(time.RFC3339)
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.JobID,
			rec.Status,
			rec.CreatedAt.UTC().Format(time.RFC3339),
			completed,
			deref(rec.ExternalReferenceID),
		); err != nil {
			return fmt.Errorf("write job %s: %w", rec.JobID, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writef(w, "%d job(s)\n", len(recs))
}

func renderQueueStats(w io.Writer, stats *model.QueueStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		value int64
	}{
		{"queued", stats.Length},
		{"started", stats.StartedCount},
		{"failed", stats.FailedCount},
		{"scheduled", stats.ScheduledCount},
		{"deferred", stats.DeferredCount},
	}
	if err := writef(tw, "Queue\t%s\n", stats.Name); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writef(tw, "%s\t%d\n", row.label, row.value); err != nil {
			return fmt.Errorf("write %s: %w", row.label, err)
		}
	}
	return tw.Flush()
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
