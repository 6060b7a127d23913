package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qingbu/internal/amqp"
	"qingbu/internal/cli"
	"qingbu/internal/config"
	"qingbu/internal/export"
	"qingbu/internal/log"
	"qingbu/internal/services"
	"qingbu/internal/stats"
	"qingbu/internal/storage"
)

// sweepPublisher queues sweeps for the recurring worker.
type sweepPublisher interface {
	PublishSweepRequest(ctx context.Context, msg *amqp.SweepRequest) error
}

// app carries what the subcommands share.
type app struct {
	cfg    *config.Config
	store  *storage.Store
	loc    *time.Location
	out    io.Writer
	in     io.Reader
	now    func() time.Time
	logger *log.Logger

	records *services.RecordService
	stats   *stats.Service
	sweeps  sweepPublisher
	// openSheets connects to Google Sheets on demand.
	openSheets func(ctx context.Context) (export.Pusher, error)
}

var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	cmd := os.Args[1]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage(os.Stdout)
		return
	}

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentCLI)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.NewContext(ctx, logger)

	store := cli.InitStore(ctx, logger, cfg)

	var events services.EventPublisher
	var sweeps sweepPublisher
	if needsBroker(cmd) {
		if client := cli.InitAMQP(logger, cfg); client != nil {
			events, sweeps = client, client
		}
	}

	a := newApp(cfg, store, events, logger)
	a.sweeps = sweeps
	a.openSheets = func(ctx context.Context) (export.Pusher, error) {
		if !cfg.SheetsEnabled() {
			return nil, errors.New("GOOGLE_SPREADSHEET_ID is not set")
		}
		client := cli.InitSheets(ctx, logger, cfg)
		if client == nil {
			return nil, errors.New("google sheets unavailable")
		}
		return client, nil
	}

	err := a.run(ctx, cmd, os.Args[2:])
	if cerr := a.records.Close(); cerr != nil {
		logger.Warn("Close failed", log.FieldError, cerr)
	}
	if err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, store *storage.Store, events services.EventPublisher, logger *log.Logger) *app {
	loc := store.Location()
	return &app{
		cfg:     cfg,
		store:   store,
		loc:     loc,
		out:     os.Stdout,
		in:      os.Stdin,
		now:     time.Now,
		logger:  logger,
		records: services.NewRecordService(store, events),
		stats:   stats.NewService(store, loc),
	}
}

func needsBroker(cmd string) bool {
	switch cmd {
	case "add", "update", "delete", "trigger":
		return true
	}
	return false
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "add":
		return a.runAdd(ctx, args)
	case "update":
		return a.runUpdate(ctx, args)
	case "delete":
		return a.runDelete(ctx, args)
	case "get":
		return a.runGet(ctx, args)
	case "list":
		return a.runList(ctx, args)
	case "summary":
		return a.runSummary(ctx, args)
	case "categories":
		return a.runCategories(ctx, args)
	case "daily":
		return a.runDaily(ctx, args)
	case "compare":
		return a.runCompare(ctx, args)
	case "export":
		return a.runExport(ctx, args)
	case "template":
		return a.runTemplate(ctx, args)
	case "sweep":
		return a.runSweep(ctx, args)
	case "trigger":
		return a.runTrigger(ctx, args)
	}
	fmt.Fprintf(a.out, "Unknown command: %s\n\n", cmd)
	printUsage(a.out)
	return errUsage
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "轻簿 - personal income and expense ledger")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  qingbu <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  add         Record an income or expense")
	fmt.Fprintln(w, "  update      Change fields of a record")
	fmt.Fprintln(w, "  delete      Delete a record")
	fmt.Fprintln(w, "  get         Show one record")
	fmt.Fprintln(w, "  list        List records of a month, a year or all")
	fmt.Fprintln(w, "  summary     Income, expense and balance of a month")
	fmt.Fprintln(w, "  categories  Per-category totals of a month")
	fmt.Fprintln(w, "  daily       Per-day totals of a month")
	fmt.Fprintln(w, "  compare     Compare a month or year with the previous one")
	fmt.Fprintln(w, "  export      Write records to CSV, optionally push to Google Sheets")
	fmt.Fprintln(w, "  template    Manage recurring templates (add, list, update, enable, disable, delete, quick-add)")
	fmt.Fprintln(w, "  sweep       Materialize due recurring records")
	fmt.Fprintln(w, "  trigger     Ask the recurring worker to sweep")
	fmt.Fprintln(w, "  help        Show this help message")
	fmt.Fprintln(w, "\nRun 'qingbu <command> -h' for more information on a command.")
}
