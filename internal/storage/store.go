// Package storage persists records, recurring templates and their
// materialization links in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"qingbu/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotInitialized is returned by every operation invoked before Init succeeded.
	ErrNotInitialized = errors.New("database not initialized, call Init first")

	// ErrAlreadyMaterialized reports that a template already produced a record for the day.
	ErrAlreadyMaterialized = errors.New("recurring record already exists for this date")
)

type Option func(*Store)

// WithLocation sets the zone used for month boundaries and day truncation.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the source of created_at/updated_at timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is the ledger's single-connection SQLite store. Construct it once with
// New, call Init before use and Close when done.
type Store struct {
	path string
	loc  *time.Location
	now  func() time.Time

	mu          sync.Mutex
	db          *sql.DB
	queries     *Queries
	initialized bool
}

// New returns an uninitialized store for the database file at dbPath. dbPath
// must be a plain file path: Init migrates over a separate connection, so
// ":memory:" and file: URIs with query parameters are not supported.
func New(dbPath string, opts ...Option) *Store {
	s := &Store{
		path: dbPath,
		loc:  time.Local,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init opens the database and applies the schema. Calling it again after a
// successful Init does nothing.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized && s.db != nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	if err := RunMigrations(s.path); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection: statements are serialized by the connection itself.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	s.db = db
	s.queries = NewQueries(db)
	s.initialized = true

	slog.InfoContext(ctx, "Ledger database ready", "path", s.path)
	return nil
}

// Close releases the connection. The store can be initialized again afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.queries = nil
	s.initialized = false
	return err
}

// Location returns the zone used for calendar computations.
func (s *Store) Location() *time.Location {
	return s.loc
}

func (s *Store) handle() (*sql.DB, *Queries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized || s.db == nil {
		return nil, nil, ErrNotInitialized
	}
	return s.db, s.queries, nil
}

func (s *Store) withTx(ctx context.Context, fn func(q *Queries) error) error {
	db, q, err := s.handle()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(q.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AddRecord inserts r and returns its store-assigned id.
func (s *Store) AddRecord(ctx context.Context, r core.Record) (int64, error) {
	_, q, err := s.handle()
	if err != nil {
		return 0, err
	}
	id, err := q.InsertTransaction(ctx, insertParams(r))
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}

	slog.DebugContext(ctx, "Record saved",
		"id", id,
		"type", r.Type,
		"amount_cents", r.Amount.Cents,
		"category", r.Category)
	return id, nil
}

// DeleteRecord removes the record and any recurring link pointing at it.
func (s *Store) DeleteRecord(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(q *Queries) error {
		if err := q.DeleteLinksByTransaction(ctx, id); err != nil {
			return fmt.Errorf("delete recurring links: %w", err)
		}
		if err := q.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "Record deleted", "id", id)
	return nil
}

// UpdateRecord applies the non-nil fields of patch. An empty patch is a no-op.
func (s *Store) UpdateRecord(ctx context.Context, id int64, patch core.RecordPatch) error {
	_, q, err := s.handle()
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return nil
	}

	var set []assignment
	if patch.Amount != nil {
		set = append(set, assignment{"amount_cents", patch.Amount.Cents})
	}
	if patch.Type != nil {
		set = append(set, assignment{"type", string(*patch.Type)})
	}
	if patch.Category != nil {
		set = append(set, assignment{"category", *patch.Category})
	}
	if patch.Date != nil {
		set = append(set, assignment{"date", patch.Date.UnixMilli()})
	}
	if patch.Note != nil {
		set = append(set, assignment{"note", nullString(*patch.Note)})
	}

	if err := q.updateByID(ctx, "transactions", id, set); err != nil {
		return fmt.Errorf("update record %d: %w", id, err)
	}
	return nil
}

// GetRecord returns the record with the given id, or nil when it does not exist.
func (s *Store) GetRecord(ctx context.Context, id int64) (*core.Record, error) {
	_, q, err := s.handle()
	if err != nil {
		return nil, err
	}
	t, err := q.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record by id: %w", err)
	}
	r := s.toRecord(t)
	return &r, nil
}

// RecordsByMonth returns the month's records, newest first.
func (s *Store) RecordsByMonth(ctx context.Context, year, month int) ([]core.Record, error) {
	r := core.MonthRange(year, month, s.loc)
	return s.RecordsByRange(ctx, r.Start, r.End)
}

// RecordsByRange returns records with start <= date <= end, newest first.
func (s *Store) RecordsByRange(ctx context.Context, start, end time.Time) ([]core.Record, error) {
	_, q, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := q.ListTransactionsByRange(ctx, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list records by range: %w", err)
	}
	return s.toRecords(rows), nil
}

// AllRecords returns every record, newest first.
func (s *Store) AllRecords(ctx context.Context) ([]core.Record, error) {
	_, q, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := q.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return s.toRecords(rows), nil
}

// SumByType totals the amounts of one record type inside [start, end].
func (s *Store) SumByType(ctx context.Context, t core.RecordType, start, end time.Time) (core.Money, error) {
	_, q, err := s.handle()
	if err != nil {
		return core.Money{}, err
	}
	total, err := q.SumAmountByType(ctx, string(t), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return core.Money{}, fmt.Errorf("sum %s: %w", t, err)
	}
	return core.FromCents(total), nil
}

// CategoryTotals groups one record type by exact category string inside
// [start, end], largest total first.
func (s *Store) CategoryTotals(ctx context.Context, t core.RecordType, start, end time.Time) ([]core.CategoryTotal, error) {
	_, q, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := q.CategoryTotals(ctx, string(t), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("get category sums: %w", err)
	}
	totals := make([]core.CategoryTotal, len(rows))
	for i, r := range rows {
		totals[i] = core.CategoryTotal{
			Category: r.Category,
			Amount:   core.FromCents(r.TotalAmount),
			Count:    int(r.Count),
		}
	}
	return totals, nil
}

func insertParams(r core.Record) InsertTransactionParams {
	return InsertTransactionParams{
		AmountCents: r.Amount.Cents,
		Type:        string(r.Type),
		Category:    r.Category,
		Date:        r.Date.UnixMilli(),
		Note:        nullString(r.Note),
	}
}

func (s *Store) toRecord(t Transaction) core.Record {
	return core.Record{
		ID:       t.ID,
		Amount:   core.FromCents(t.AmountCents),
		Type:     core.RecordType(t.Type),
		Category: t.Category,
		Date:     core.FromMillis(t.Date, s.loc),
		Note:     t.Note.String,
	}
}

func (s *Store) toRecords(rows []Transaction) []core.Record {
	records := make([]core.Record, len(rows))
	for i, t := range rows {
		records[i] = s.toRecord(t)
	}
	return records
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
