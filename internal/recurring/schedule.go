// Package recurring turns recurring templates into concrete records.
//
// Each cadence has its own Schedule that lists the days a template is due
// inside a lookahead window. The Engine materializes those days through the
// store, which refuses a second record for the same (template, day).
package recurring

import (
	"fmt"
	"time"

	"qingbu/internal/core"
)

// DefaultLookahead is how many days past today a sweep creates records for.
const DefaultLookahead = 3

// Schedule lists the target days of a template. base is a local midnight;
// every returned date is a local midnight d with 0 <= DaysBetween(base, d) <= lookahead.
type Schedule interface {
	TargetDates(t core.Template, base time.Time, lookahead int) []time.Time
}

// DailySchedule is due every day of the window.
type DailySchedule struct{}

func (DailySchedule) TargetDates(_ core.Template, base time.Time, lookahead int) []time.Time {
	dates := make([]time.Time, 0, lookahead+1)
	for i := 0; i <= lookahead; i++ {
		dates = append(dates, base.AddDate(0, 0, i))
	}
	return dates
}

// WeeklySchedule is due on base's weekday, every 7 days.
type WeeklySchedule struct{}

func (WeeklySchedule) TargetDates(_ core.Template, base time.Time, lookahead int) []time.Time {
	var dates []time.Time
	for week := 0; week*7 <= lookahead; week++ {
		dates = append(dates, base.AddDate(0, 0, week*7))
	}
	return dates
}

// MonthlySchedule is due on PeriodDay of each month, clamped to the month's
// last day. This month's occurrence counts only while it has not passed.
type MonthlySchedule struct{}

func (MonthlySchedule) TargetDates(t core.Template, base time.Time, lookahead int) []time.Time {
	day := t.PeriodDay
	if day <= 0 {
		return nil
	}

	loc := base.Location()
	inWindow := func(d time.Time) bool {
		diff := core.DaysBetween(base, d)
		return diff >= 0 && diff <= lookahead
	}

	var dates []time.Time
	if base.Day() <= day {
		d := core.ClampedDate(base.Year(), base.Month(), day, loc)
		if inWindow(d) {
			dates = append(dates, d)
		}
	}
	months := (lookahead+29)/30 + 1
	for m := 1; m <= months; m++ {
		d := core.ClampedDate(base.Year(), base.Month()+time.Month(m), day, loc)
		if inWindow(d) {
			dates = append(dates, d)
		}
	}
	return dates
}

var schedules = map[core.PeriodType]Schedule{
	core.Daily:   DailySchedule{},
	core.Weekly:  WeeklySchedule{},
	core.Monthly: MonthlySchedule{},
}

// ScheduleFor returns the schedule registered for a cadence.
func ScheduleFor(p core.PeriodType) (Schedule, error) {
	s, ok := schedules[p]
	if !ok {
		return nil, fmt.Errorf("unknown period type: %s", p)
	}
	return s, nil
}

// RegisterSchedule adds or replaces the schedule of a cadence.
func RegisterSchedule(p core.PeriodType, s Schedule) {
	schedules[p] = s
}

// TargetDates lists the days t is due within lookahead days of base's day.
func TargetDates(t core.Template, base time.Time, lookahead int) ([]time.Time, error) {
	s, err := ScheduleFor(t.PeriodType)
	if err != nil {
		return nil, err
	}
	if lookahead < 0 {
		lookahead = 0
	}
	return s.TargetDates(t, core.TruncateDay(base, base.Location()), lookahead), nil
}

// QuickAddDate is the date a manual "add now" of t uses: for monthly
// templates the next PeriodDay strictly after today (clamped), otherwise
// today. Always 12:00 local.
func QuickAddDate(t core.Template, now time.Time, loc *time.Location) time.Time {
	now = now.In(loc)
	if t.PeriodType != core.Monthly || t.PeriodDay <= 0 {
		return core.AtNoon(now, loc)
	}
	month := now.Month()
	if now.Day() >= t.PeriodDay {
		month++
	}
	return core.AtNoon(core.ClampedDate(now.Year(), month, t.PeriodDay, loc), loc)
}
