package core

import "time"

// MonthRange returns the closed interval from the 1st 00:00:00.000 to the
// last day 23:59:59.999 of the month in loc. Out-of-range months normalize
// the way time.Date does (month 13 is January of the following year).
func MonthRange(year, month int, loc *time.Location) DateRange {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	end := time.Date(year, time.Month(month)+1, 0, 23, 59, 59, int(999*time.Millisecond), loc)
	return DateRange{Start: start, End: end}
}

// YearRange returns the closed interval covering the calendar year in loc.
func YearRange(year int, loc *time.Location) DateRange {
	return DateRange{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, loc),
		End:   time.Date(year, time.December, 31, 23, 59, 59, int(999*time.Millisecond), loc),
	}
}

// TruncateDay resets the time of day to local midnight in loc.
func TruncateDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// AtNoon returns 12:00 local time on t's day.
func AtNoon(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, loc)
}

// LastDayOfMonth returns the number of days in the given month.
func LastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampedDate returns day of the given month at midnight, clamped to the
// month's last day.
func ClampedDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	// normalize first so month 13 etc. behave like time.Date
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := LastDayOfMonth(first.Year(), first.Month())
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, loc)
}

// DaysBetween counts calendar days from a to b, ignoring time of day and DST.
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// FromMillis converts a Unix millisecond timestamp into loc.
func FromMillis(ms int64, loc *time.Location) time.Time {
	return time.UnixMilli(ms).In(loc)
}
