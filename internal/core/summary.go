package core

import "time"

// DateRange is a closed interval: Start <= t <= End.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range, both bounds included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// MonthlySummary holds income and expense totals over an interval.
type MonthlySummary struct {
	Income  Money
	Expense Money
	Balance Money // Income - Expense
}

func NewSummary(income, expense Money) MonthlySummary {
	return MonthlySummary{Income: income, Expense: expense, Balance: income.Sub(expense)}
}

// CategoryTotal is the raw per-category-string aggregate read from storage.
type CategoryTotal struct {
	Category string
	Amount   Money
	Count    int
}

// CategoryStat is a parent-category rollup with its share of the type total.
type CategoryStat struct {
	Category   string
	Amount     Money
	Percentage float64
	Count      int
}

type DailyStat struct {
	Day     time.Time // local midnight
	Income  Money
	Expense Money
	Balance Money
}

// Comparison pairs a period with the one it is measured against.
type Comparison struct {
	Current  MonthlySummary
	Previous MonthlySummary

	IncomeChange  Money
	ExpenseChange Money
	BalanceChange Money

	IncomeChangePercent  float64
	ExpenseChangePercent float64
	BalanceChangePercent float64
}
