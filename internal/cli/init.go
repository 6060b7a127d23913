// Package cli provides common initialization shared by cmd/qingbu and
// cmd/recurring-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"qingbu/internal/amqp"
	"qingbu/internal/config"
	"qingbu/internal/log"
	"qingbu/internal/sheets/google"
	"qingbu/internal/storage"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stderr,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		// the configured logger depends on a valid config
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitStore opens the ledger database in the configured zone.
// Returns the store or exits the process on failure.
func InitStore(ctx context.Context, logger *log.Logger, cfg *config.Config) *storage.Store {
	store := storage.New(cfg.DBPath, storage.WithLocation(cfg.Location()))
	if err := store.Init(ctx); err != nil {
		logger.Error("Failed to initialize ledger database", log.FieldError, err, log.FieldPath, cfg.DBPath)
		os.Exit(1)
	}
	return store
}

// InitAMQP connects to the broker when AMQP_URL is set. A connection
// failure is logged and yields nil so callers run without messaging.
func InitAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled")
		return nil
	}
	client, err := amqp.NewClient(amqp.Config{
		URL:         cfg.AMQPURL,
		Exchange:    cfg.AMQPExchange,
		SweepQueue:  cfg.AMQPSweepQueue,
		EventsQueue: cfg.AMQPEventsQueue,
	})
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without messaging", log.FieldError, err)
		return nil
	}
	return client
}

// InitSheets creates the Google Sheets client when a spreadsheet is
// configured. Failures are logged and yield nil.
func InitSheets(ctx context.Context, logger *log.Logger, cfg *config.Config) *google.Client {
	if !cfg.SheetsEnabled() {
		return nil
	}
	client, err := google.New(ctx, google.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Warn("Failed to initialize Google Sheets client", log.FieldError, err)
		return nil
	}
	return client
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
