package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"qingbu/internal/cli"
	"qingbu/internal/export"
	"qingbu/internal/log"
	"qingbu/internal/recurring"
	"qingbu/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting recurring-worker")

	amqpClient := cli.InitAMQP(logger, cfg)
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if amqpClient != nil {
			amqpClient.Close()
		}
	})
	ctx = log.NewContext(ctx, logger)

	store := cli.InitStore(ctx, logger, cfg)
	defer store.Close()

	loc := cfg.Location()
	engine := recurring.NewEngine(store, loc,
		recurring.WithLookahead(cfg.LookaheadDays),
		recurring.WithLogger(logger.WithComponent(log.ComponentRecurring)))

	opts := []worker.Option{worker.WithLogger(logger)}
	if sheets := cli.InitSheets(ctx, logger, cfg); sheets != nil {
		exporter := export.NewExporter(store, loc, export.WithAppName(cfg.AppName))
		opts = append(opts, worker.WithSheetsSync(exporter, sheets, loc))
		logger.Info("Google Sheets sync enabled", "sheet", cfg.GoogleSheetName)
	}
	w := worker.NewSweepWorker(engine, recurring.NewGate(loc), cfg.Policy(), opts...)

	logger.Info("Recurring sweep configured",
		"interval", cfg.RecurringInterval,
		"lookahead_days", cfg.LookaheadDays,
		log.FieldPolicy, cfg.Policy().String(),
		log.FieldPath, cfg.DBPath)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runTicker(gctx, logger, w, cfg.RecurringInterval)
	})

	if amqpClient != nil {
		g.Go(func() error {
			logger.Info("Consuming sweep requests", "queue", cfg.AMQPSweepQueue)
			return amqpClient.ConsumeSweepRequests(gctx, w.HandleSweepRequest)
		})
	} else {
		logger.Info("AMQP disabled - sweeps run on the ticker only")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Recurring-worker stopped", log.FieldError, err)
		store.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker shutdown complete")
}

// runTicker sweeps once at startup and then on every tick. The worker's
// gate keeps it to one sweep per local day.
func runTicker(ctx context.Context, logger *log.Logger, w *worker.SweepWorker, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Running initial recurring sweep...")
	sweep(ctx, logger, w)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if sweep(ctx, logger, w) {
				logger.Info("Periodic sweep complete",
					"next_check", now.Add(interval).Format("15:04:05"))
			}
		}
	}
}

func sweep(ctx context.Context, logger *log.Logger, w *worker.SweepWorker) bool {
	ran, err := w.RunOnce(ctx)
	if err != nil {
		// retried on the next tick
		logger.Error("Recurring sweep failed", log.FieldError, err)
		return false
	}
	return ran
}
