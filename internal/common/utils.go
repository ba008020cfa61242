package common

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used by the feature store.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// NextDate returns the calendar day after t.
func NextDate(t time.Time) time.Time {
	return Day(t).AddDate(0, 0, 1)
}

// AddDays shifts a date by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, n)
}

// DateToUnix converts a date to unix milliseconds, the timestamp unit of
// the feature groups.
func DateToUnix(t time.Time) int64 {
	return Day(t).UnixMilli()
}

// UnixToDate is the inverse of DateToUnix.
func UnixToDate(ms int64) time.Time {
	return Day(time.UnixMilli(ms))
}
