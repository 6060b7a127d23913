package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"qingbu/internal/core"
	"qingbu/internal/export"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
	monthLayout    = "2006-01"
)

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

// parseDate reads "2006-01-02 15:04" or "2006-01-02" in loc. A bare date
// is placed at noon; an empty string means now.
func parseDate(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now.In(loc), nil
	}
	if t, err := time.ParseInLocation(dateTimeLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or \"YYYY-MM-DD HH:MM\"", s)
	}
	return core.AtNoon(t, loc), nil
}

// parseMonth reads "2006-01"; empty means the month of now.
func parseMonth(s string, now time.Time, loc *time.Location) (int, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		now = now.In(loc)
		return now.Year(), int(now.Month()), nil
	}
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q: want YYYY-MM", s)
	}
	return t.Year(), int(t.Month()), nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func (a *app) runAdd(ctx context.Context, args []string) error {
	fs := a.flagSet("add")
	typ := fs.String("type", "expense", "income or expense")
	amount := fs.String("amount", "", "amount, e.g. 32.50")
	cat := fs.String("category", "", `category, "Parent" or "Parent/Sub"`)
	date := fs.String("date", "", `YYYY-MM-DD or "YYYY-MM-DD HH:MM" (default now)`)
	note := fs.String("note", "", "optional note")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := core.ParseRecordType(*typ)
	if err != nil {
		return err
	}
	m, err := core.ParseMoney(*amount)
	if err != nil {
		return fmt.Errorf("amount %q: %w", *amount, err)
	}
	d, err := parseDate(*date, a.now(), a.loc)
	if err != nil {
		return err
	}

	id, err := a.records.Add(ctx, core.Record{Amount: m, Type: t, Category: *cat, Date: d, Note: *note})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s #%d: %s %s\n", t.Label(), id, m, strings.TrimSpace(*cat))
	return nil
}

func (a *app) runUpdate(ctx context.Context, args []string) error {
	fs := a.flagSet("update")
	idFlag := fs.String("id", "", "record id")
	typ := fs.String("type", "", "income or expense")
	amount := fs.String("amount", "", "amount")
	cat := fs.String("category", "", "category")
	date := fs.String("date", "", "YYYY-MM-DD or \"YYYY-MM-DD HH:MM\"")
	note := fs.String("note", "", "note; pass an empty value to clear it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(*idFlag)
	if err != nil {
		return err
	}

	var patch core.RecordPatch
	var perr error
	fs.Visit(func(f *flag.Flag) {
		if perr != nil {
			return
		}
		switch f.Name {
		case "type":
			t, err := core.ParseRecordType(*typ)
			patch.Type, perr = &t, err
		case "amount":
			m, err := core.ParseMoney(*amount)
			patch.Amount, perr = &m, err
		case "category":
			patch.Category = cat
		case "date":
			if strings.TrimSpace(*date) == "" {
				perr = core.ErrInvalidDate
				return
			}
			d, err := parseDate(*date, a.now(), a.loc)
			patch.Date, perr = &d, err
		case "note":
			patch.Note = note
		}
	})
	if perr != nil {
		return perr
	}

	if err := a.records.Update(ctx, id, patch); err != nil {
		return err
	}
	if patch.IsEmpty() {
		fmt.Fprintln(a.out, "Nothing to update")
		return nil
	}
	fmt.Fprintf(a.out, "Updated record #%d\n", id)
	return nil
}

func (a *app) runDelete(ctx context.Context, args []string) error {
	fs := a.flagSet("delete")
	idFlag := fs.String("id", "", "record id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(*idFlag)
	if err != nil {
		return err
	}
	if err := a.records.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted record #%d\n", id)
	return nil
}

func (a *app) runGet(ctx context.Context, args []string) error {
	fs := a.flagSet("get")
	idFlag := fs.String("id", "", "record id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(*idFlag)
	if err != nil {
		return err
	}
	r, err := a.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("record #%d not found", id)
	}
	return printRecords(a.out, []core.Record{*r}, a.loc)
}

func (a *app) runList(ctx context.Context, args []string) error {
	fs := a.flagSet("list")
	month := fs.String("month", "", "YYYY-MM (default current month)")
	year := fs.Int("year", 0, "list a whole year instead of a month")
	all := fs.Bool("all", false, "list every record")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *all && *year != 0 {
		return errors.New("-all and -year are exclusive")
	}

	var (
		records []core.Record
		err     error
	)
	switch {
	case *all:
		records, err = a.store.AllRecords(ctx)
	case *year != 0:
		r := core.YearRange(*year, a.loc)
		records, err = a.store.RecordsByRange(ctx, r.Start, r.End)
	default:
		y, m, perr := parseMonth(*month, a.now(), a.loc)
		if perr != nil {
			return perr
		}
		records, err = a.store.RecordsByMonth(ctx, y, m)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No records")
		return nil
	}
	return printRecords(a.out, records, a.loc)
}

// printRecords renders records with the export columns.
func printRecords(w io.Writer, records []core.Record, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(export.DefaultHeader, "\t"))
	for _, r := range records {
		fmt.Fprintln(tw, strings.Join(export.Row(r, loc), "\t"))
	}
	return tw.Flush()
}
