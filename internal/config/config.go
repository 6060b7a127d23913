package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"qingbu/internal/log"
	"qingbu/internal/recurring"
)

type Config struct {
	AppName string

	// Database
	DBPath   string
	Timezone string

	LogLevel  string
	LogFormat string

	// Recurring
	LookaheadDays     int
	DuplicatePolicy   string
	RecurringInterval time.Duration

	// Export
	ExportDir string
	ExportBOM bool

	// AMQP
	AMQPURL         string
	AMQPExchange    string
	AMQPSweepQueue  string
	AMQPEventsQueue string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

func Load() *Config {
	return &Config{
		AppName:  getEnv("APP_NAME", "轻簿"),
		DBPath:   getEnv("QINGBU_DB_PATH", "./data/qingbu.db"),
		Timezone: getEnv("QINGBU_TIMEZONE", "Local"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		LookaheadDays:     getEnvInt("RECURRING_LOOKAHEAD_DAYS", recurring.DefaultLookahead),
		DuplicatePolicy:   getEnv("RECURRING_DUPLICATE_POLICY", "skip"),
		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", time.Hour),

		ExportDir: getEnv("EXPORT_DIR", "./exports"),
		ExportBOM: getEnvBool("EXPORT_BOM", true),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "qingbu"),
		AMQPSweepQueue:  getEnv("AMQP_SWEEP_QUEUE", "recurring_sweep"),
		AMQPEventsQueue: getEnv("AMQP_EVENTS_QUEUE", "record_events"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	} else if c.DBPath == ":memory:" || strings.HasPrefix(c.DBPath, "file:") || strings.Contains(c.DBPath, "?") {
		// migrations open their own connection, so the path must name a plain file
		errors = append(errors, fmt.Sprintf("invalid database path '%s': must be a plain file path, not :memory: or a URI", c.DBPath))
	} else if dir := filepath.Dir(c.DBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
			}
		}
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if c.LookaheadDays < 0 {
		errors = append(errors, fmt.Sprintf("invalid lookahead %d: must not be negative", c.LookaheadDays))
	} else if c.LookaheadDays > 366 {
		errors = append(errors, fmt.Sprintf("invalid lookahead %d: must be at most 366 days", c.LookaheadDays))
	}
	if _, err := recurring.ParseDecision(c.DuplicatePolicy); err != nil {
		errors = append(errors, fmt.Sprintf("invalid duplicate policy '%s': must be skip, create or replace", c.DuplicatePolicy))
	}
	if c.RecurringInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at least 1 minute", c.RecurringInterval))
	} else if c.RecurringInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at most 24 hours", c.RecurringInterval))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPSweepQueue == "" {
			errors = append(errors, "AMQP sweep queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Policy resolves DuplicatePolicy, falling back to skip.
func (c *Config) Policy() recurring.Decision {
	d, err := recurring.ParseDecision(c.DuplicatePolicy)
	if err != nil {
		return recurring.Skip
	}
	return d
}

// SheetsEnabled reports whether a spreadsheet is configured.
func (c *Config) SheetsEnabled() bool {
	return strings.TrimSpace(c.GoogleSpreadsheetID) != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
