// Command receiptq-admin inspects and repairs job records and the broker queue
// from an operator shell, using the same environment as the service.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/target/receiptq/config"
	"github.com/target/receiptq/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

// commands is listed in the order printUsage shows it.
var commands = []command{
	{name: "migrate", description: "Apply job record schema migrations", run: runMigrations},
	{name: "jobs-list", description: "List job records, newest first", run: runJobsList},
	{name: "job-get", description: "Print one job record as JSON", run: runJobGet},
	{name: "queue-stats", description: "Print broker queue depth counters", run: runQueueStats},
	{name: "requeue", description: "Re-enqueue a queued job whose broker task is missing", run: runRequeue},
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func main() {
	os.Exit(run(os.Args[1:])) //nolint:forbidigo // exit status is the CLI's contract with shell scripts
}

// run returns the process exit status: 2 for usage errors, 1 for failures.
func run(args []string) int {
	logger := bootstrap.InitLogger("info", false)

	if len(args) == 0 {
		_ = printUsage(os.Stdout)
		return 2
	}
	cmd, ok := lookupCommand(args[0])
	if !ok {
		_ = writef(os.Stderr, "unknown command %q\n\n", args[0])
		_ = printUsage(os.Stderr)
		return 2
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		return 1
	}
	logger = bootstrap.InitLogger(cfg.LogLevel, cfg.IsDev)

	cmdCtx := &commandContext{Ctx: context.Background(), Logger: logger, Config: cfg, Out: os.Stdout}
	if err := cmd.run(cmdCtx, args[1:]); err != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmd.name, "error", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: receiptq-admin <command> [flags]\n\nCommands:\n"); err != nil {
		return err
	}
	for _, c := range commands {
		if err := writef(w, "  %-14s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
