// Package stats derives summaries, category breakdowns, daily series and
// period comparisons from stored records. Nothing is cached: every call
// reads the store again.
package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"qingbu/internal/category"
	"qingbu/internal/core"
)

// Reader is the read side of the record store.
type Reader interface {
	SumByType(ctx context.Context, t core.RecordType, start, end time.Time) (core.Money, error)
	CategoryTotals(ctx context.Context, t core.RecordType, start, end time.Time) ([]core.CategoryTotal, error)
	RecordsByRange(ctx context.Context, start, end time.Time) ([]core.Record, error)
}

// Mode picks the period a comparison is measured against.
type Mode string

const (
	// ModeMonth compares with the previous calendar month.
	ModeMonth Mode = "month"
	// ModeYear compares with the same month one year earlier.
	ModeYear Mode = "year"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMonth, "":
		return ModeMonth, nil
	case ModeYear:
		return ModeYear, nil
	}
	return "", fmt.Errorf("unknown comparison mode %q", s)
}

type Service struct {
	reader Reader
	loc    *time.Location
}

// NewService builds the aggregation service. Month boundaries and day
// buckets are computed in loc.
func NewService(reader Reader, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{reader: reader, loc: loc}
}

// MonthlySummary totals a calendar month. Months outside 1-12 roll over
// into the neighbouring year.
func (s *Service) MonthlySummary(ctx context.Context, year, month int) (core.MonthlySummary, error) {
	r := core.MonthRange(year, month, s.loc)
	return s.Summary(ctx, r.Start, r.End)
}

// Summary totals income and expense over [start, end].
func (s *Service) Summary(ctx context.Context, start, end time.Time) (core.MonthlySummary, error) {
	income, err := s.reader.SumByType(ctx, core.Income, start, end)
	if err != nil {
		return core.MonthlySummary{}, err
	}
	expense, err := s.reader.SumByType(ctx, core.Expense, start, end)
	if err != nil {
		return core.MonthlySummary{}, err
	}
	return core.NewSummary(income, expense), nil
}

// CategoryStats rolls the records of one type up to parent categories,
// largest amount first.
func (s *Service) CategoryStats(ctx context.Context, start, end time.Time, t core.RecordType) ([]core.CategoryStat, error) {
	totals, err := s.reader.CategoryTotals(ctx, t, start, end)
	if err != nil {
		return nil, err
	}
	return MergeByParent(totals), nil
}

// MergeByParent sums totals sharing a parent category and computes each
// parent's share of the grand total. Equal amounts keep first-seen order.
func MergeByParent(totals []core.CategoryTotal) []core.CategoryStat {
	index := make(map[string]int)
	var merged []core.CategoryStat
	var grand core.Money

	for _, t := range totals {
		parent := category.Parse(t.Category).Parent
		grand = grand.Add(t.Amount)
		if i, ok := index[parent]; ok {
			merged[i].Amount = merged[i].Amount.Add(t.Amount)
			merged[i].Count += t.Count
			continue
		}
		index[parent] = len(merged)
		merged = append(merged, core.CategoryStat{Category: parent, Amount: t.Amount, Count: t.Count})
	}

	for i := range merged {
		if grand.Cents > 0 {
			merged[i].Percentage = float64(merged[i].Amount.Cents) / float64(grand.Cents) * 100
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Amount.Cents > merged[j].Amount.Cents
	})
	return merged
}

// DailyStats returns one entry per local day with at least one record in
// [start, end], oldest first.
func (s *Service) DailyStats(ctx context.Context, start, end time.Time) ([]core.DailyStat, error) {
	records, err := s.reader.RecordsByRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return BucketDaily(records, s.loc), nil
}

// BucketDaily groups records by local day. Days without records are absent.
func BucketDaily(records []core.Record, loc *time.Location) []core.DailyStat {
	byDay := make(map[int64]*core.DailyStat)
	for _, r := range records {
		d := core.TruncateDay(r.Date, loc)
		key := d.UnixMilli()
		stat, ok := byDay[key]
		if !ok {
			stat = &core.DailyStat{Day: d}
			byDay[key] = stat
		}
		switch r.Type {
		case core.Income:
			stat.Income = stat.Income.Add(r.Amount)
		case core.Expense:
			stat.Expense = stat.Expense.Add(r.Amount)
		}
	}

	days := make([]core.DailyStat, 0, len(byDay))
	for _, stat := range byDay {
		stat.Balance = stat.Income.Sub(stat.Expense)
		days = append(days, *stat)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day.Before(days[j].Day) })
	return days
}

// ComparisonStats compares a month with the previous month (ModeMonth) or
// the same month of the previous year (ModeYear).
func (s *Service) ComparisonStats(ctx context.Context, year, month int, mode Mode) (core.Comparison, error) {
	current, err := s.MonthlySummary(ctx, year, month)
	if err != nil {
		return core.Comparison{}, err
	}

	prevYear, prevMonth := PreviousPeriod(year, month, mode)
	previous, err := s.MonthlySummary(ctx, prevYear, prevMonth)
	if err != nil {
		return core.Comparison{}, err
	}
	return Compare(current, previous), nil
}

// PreviousPeriod returns the (year, month) a comparison uses as baseline.
// January in ModeMonth goes back to December of the previous year.
func PreviousPeriod(year, month int, mode Mode) (int, int) {
	t := time.Date(year, time.Month(month)-1, 1, 0, 0, 0, 0, time.UTC)
	if mode == ModeYear {
		t = time.Date(year-1, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	}
	return t.Year(), int(t.Month())
}

// Compare computes the deltas between two summaries.
func Compare(current, previous core.MonthlySummary) core.Comparison {
	return core.Comparison{
		Current:              current,
		Previous:             previous,
		IncomeChange:         current.Income.Sub(previous.Income),
		ExpenseChange:        current.Expense.Sub(previous.Expense),
		BalanceChange:        current.Balance.Sub(previous.Balance),
		IncomeChangePercent:  changePercent(current.Income, previous.Income),
		ExpenseChangePercent: changePercent(current.Expense, previous.Expense),
		BalanceChangePercent: balanceChangePercent(current.Balance, previous.Balance),
	}
}

func changePercent(current, previous core.Money) float64 {
	if previous.Cents > 0 {
		return float64(current.Cents-previous.Cents) / float64(previous.Cents) * 100
	}
	if current.Cents > 0 {
		return 100
	}
	return 0
}

// balance can be negative, so the base is |previous|.
func balanceChangePercent(current, previous core.Money) float64 {
	if previous.Cents != 0 {
		return float64(current.Cents-previous.Cents) / float64(previous.Abs().Cents) * 100
	}
	if current.Cents != 0 {
		return 100
	}
	return 0
}

// Overview is everything a month view shows at once.
type Overview struct {
	Range      core.DateRange
	Summary    core.MonthlySummary
	Expense    []core.CategoryStat
	Income     []core.CategoryStat
	Daily      []core.DailyStat
	Comparison core.Comparison
}

// MonthOverview loads the summary, both category breakdowns, the daily
// series and the month-over-month comparison of one month.
func (s *Service) MonthOverview(ctx context.Context, year, month int) (Overview, error) {
	r := core.MonthRange(year, month, s.loc)
	o := Overview{Range: r}

	var err error
	if o.Summary, err = s.Summary(ctx, r.Start, r.End); err != nil {
		return Overview{}, fmt.Errorf("summary: %w", err)
	}
	if o.Expense, err = s.CategoryStats(ctx, r.Start, r.End, core.Expense); err != nil {
		return Overview{}, fmt.Errorf("expense categories: %w", err)
	}
	if o.Income, err = s.CategoryStats(ctx, r.Start, r.End, core.Income); err != nil {
		return Overview{}, fmt.Errorf("income categories: %w", err)
	}
	if o.Daily, err = s.DailyStats(ctx, r.Start, r.End); err != nil {
		return Overview{}, fmt.Errorf("daily stats: %w", err)
	}
	if o.Comparison, err = s.ComparisonStats(ctx, year, month, ModeMonth); err != nil {
		return Overview{}, fmt.Errorf("comparison: %w", err)
	}
	return o, nil
}
