// Package export serializes records to CSV.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"qingbu/internal/core"
)

// DefaultHeader is the header row of an export.
var DefaultHeader = []string{"ID", "类型", "金额", "分类", "日期", "备注"}

// DateLayout renders record dates in local time.
const DateLayout = "2006-01-02 15:04"

const bom = "\uFEFF"

// Lister provides the records to export. *storage.Store implements it.
type Lister interface {
	AllRecords(ctx context.Context) ([]core.Record, error)
	RecordsByRange(ctx context.Context, start, end time.Time) ([]core.Record, error)
}

// Row renders one record as export fields.
func Row(r core.Record, loc *time.Location) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.Type.Label(),
		r.Amount.String(),
		r.Category,
		r.Date.In(loc).Format(DateLayout),
		r.Note,
	}
}

// Rows renders records in the given order.
func Rows(records []core.Record, loc *time.Location) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = Row(r, loc)
	}
	return rows
}

// WriteCSV writes header and rows. Fields containing a comma, quote or line
// break are quoted with inner quotes doubled.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

type Option func(*Exporter)

// WithBOM prefixes output with a UTF-8 byte order mark.
func WithBOM(on bool) Option {
	return func(e *Exporter) { e.bom = on }
}

// WithHeader replaces DefaultHeader.
func WithHeader(h []string) Option {
	return func(e *Exporter) {
		if len(h) > 0 {
			e.header = h
		}
	}
}

// WithAppName sets the file name prefix.
func WithAppName(name string) Option {
	return func(e *Exporter) {
		if name != "" {
			e.app = name
		}
	}
}

type Exporter struct {
	lister Lister
	loc    *time.Location
	header []string
	bom    bool
	app    string
}

func NewExporter(lister Lister, loc *time.Location, opts ...Option) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	e := &Exporter{lister: lister, loc: loc, header: DefaultHeader, app: "轻簿"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exporter) Header() []string {
	return e.header
}

// Table returns the header and rows of the records in r, or of every
// record when r is nil. Records come newest first.
func (e *Exporter) Table(ctx context.Context, r *core.DateRange) ([]string, [][]string, error) {
	var (
		records []core.Record
		err     error
	)
	if r == nil {
		records, err = e.lister.AllRecords(ctx)
	} else {
		records, err = e.lister.RecordsByRange(ctx, r.Start, r.End)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load records: %w", err)
	}
	return e.header, Rows(records, e.loc), nil
}

// CSV renders the records in r (all records when nil). An empty range
// yields the header line only.
func (e *Exporter) CSV(ctx context.Context, r *core.DateRange) (string, error) {
	header, rows, err := e.Table(ctx, r)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if e.bom {
		buf.WriteString(bom)
	}
	if err := WriteCSV(&buf, header, rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Pusher receives an export table, a spreadsheet for instance.
type Pusher interface {
	Push(ctx context.Context, header []string, rows [][]string) (string, error)
}

// Push sends the records in r (all records when nil) to p and returns the
// reference p reports for the written data.
func (e *Exporter) Push(ctx context.Context, p Pusher, r *core.DateRange) (string, error) {
	header, rows, err := e.Table(ctx, r)
	if err != nil {
		return "", err
	}
	ref, err := p.Push(ctx, header, rows)
	if err != nil {
		return "", fmt.Errorf("push export: %w", err)
	}
	return ref, nil
}

// WriteFile exports the range named by label into dir and returns the
// file's path.
func (e *Exporter) WriteFile(ctx context.Context, dir string, label RangeLabel, now time.Time) (string, error) {
	r, err := RangeFor(label, now, e.loc)
	if err != nil {
		return "", err
	}
	content, err := e.CSV(ctx, r)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(dir, FileName(e.app, label, now.In(e.loc)))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}

	slog.InfoContext(ctx, "Export written", "path", path, "range", string(label), "bytes", len(content))
	return path, nil
}
