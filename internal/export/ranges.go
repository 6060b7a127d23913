package export

import (
	"fmt"
	"time"

	"qingbu/internal/core"
)

// RangeLabel names an export range. The label is also part of the file name.
type RangeLabel string

const (
	RangeAll       RangeLabel = "全部"
	RangeThisMonth RangeLabel = "本月"
	RangeThisYear  RangeLabel = "本年"
)

// ParseRangeLabel accepts the labels themselves or all, month and year.
func ParseRangeLabel(s string) (RangeLabel, error) {
	switch s {
	case "", "all", string(RangeAll):
		return RangeAll, nil
	case "month", string(RangeThisMonth):
		return RangeThisMonth, nil
	case "year", string(RangeThisYear):
		return RangeThisYear, nil
	}
	return "", fmt.Errorf("unknown export range %q", s)
}

// RangeFor resolves label against now. RangeAll returns nil: no bounds.
func RangeFor(label RangeLabel, now time.Time, loc *time.Location) (*core.DateRange, error) {
	now = now.In(loc)
	switch label {
	case RangeAll:
		return nil, nil
	case RangeThisMonth:
		r := core.MonthRange(now.Year(), int(now.Month()), loc)
		return &r, nil
	case RangeThisYear:
		r := core.YearRange(now.Year(), loc)
		return &r, nil
	}
	return nil, fmt.Errorf("unknown export range %q", label)
}

// FileName builds "{app}_{label}_{timestamp}.csv".
func FileName(app string, label RangeLabel, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s.csv", app, label, now.Format("20060102_150405"))
}
