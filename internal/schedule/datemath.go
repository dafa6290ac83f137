// Package schedule turns raw patient and procedure records into the grouped
// month, week and day structure the calendar views render. All date math is
// local-time and Monday-aligned to match the labels the booking team reads.
package schedule

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// UndatedSortKey orders entries without a usable procedure date after every
// dated entry.
const UndatedSortKey = int64(math.MaxInt64)

// UndatedMonthLabel heads the synthetic month bucket for undated entries.
const UndatedMonthLabel = "Date not set"

const isoDateLayout = "2006-01-02"

// mondayOffset maps a weekday onto a Monday-based index (Mon=0 .. Sun=6).
func mondayOffset(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// WeekMeta reports the Monday-aligned week-of-month index of t along with the
// "Week N" label and the Monday-to-Sunday range string used on week headers.
// The range may cross a month boundary and is never clipped to the month.
func WeekMeta(t time.Time) (order int, label, dateRange string) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	order = (mondayOffset(first.Weekday())+t.Day()-1)/7 + 1
	label = fmt.Sprintf("Week %d", order)
	start := t.AddDate(0, 0, -mondayOffset(t.Weekday()))
	end := start.AddDate(0, 0, 6)
	dateRange = fmt.Sprintf("%s %d – %s %d", start.Format("Jan"), start.Day(), end.Format("Jan"), end.Day())
	return order, label, dateRange
}

// MonthLabel is the calendar heading for t, for example "June 2024".
func MonthLabel(t time.Time) string { return t.Format("January 2006") }

// DayLabel is the abbreviated weekday heading, for example "Mon".
func DayLabel(t time.Time) string { return t.Format("Mon") }

// ParseISODate reads a date or datetime string and returns the local midnight
// of its date part. The second return is false when s carries no parsable
// date; callers treat that as "undated", never as a failure.
func ParseISODate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if i := strings.IndexAny(s, "T "); i > 0 {
		s = s[:i]
	}
	t, err := time.ParseInLocation(isoDateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatLocalISODate is the round-trip inverse of ParseISODate for values in
// the local timezone.
func FormatLocalISODate(t time.Time) string { return t.Format(isoDateLayout) }

// SortKey is the millisecond timestamp of the local midnight of t. Entries
// inside a week sort by it ascending, with the record id as tiebreak.
func SortKey(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).UnixMilli()
}

// ParseMonthKey reads a "YYYY-MM" calendar key, as carried by the month query
// parameter.
func ParseMonthKey(s string) (year int, month time.Month, ok bool) {
	t, err := time.ParseInLocation("2006-01", strings.TrimSpace(s), time.Local)
	if err != nil {
		return 0, 0, false
	}
	return t.Year(), t.Month(), true
}
