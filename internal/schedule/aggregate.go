package schedule

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// MonthGroup is one calendar month of the schedule. Year and Month are zero
// for buckets built purely from fallback labels, including the undated
// bucket, which always sorts last.
type MonthGroup struct {
	Label string      `json:"label"`
	Year  int         `json:"year,omitempty"`
	Month int         `json:"month,omitempty"`
	Weeks []WeekGroup `json:"weeks"`
}

// Key is the "YYYY-MM" form matched against the month query parameter. Empty
// for label-only buckets.
func (m MonthGroup) Key() string {
	if m.Year == 0 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

// WeekGroup is one Monday-aligned week inside a month.
type WeekGroup struct {
	Label string     `json:"label"`
	Range string     `json:"range,omitempty"`
	Order int        `json:"order"`
	Days  []DayGroup `json:"days"`
}

// DayGroup collects the entries under one date heading. Undated entries get
// a synthetic per-entry key so they never merge into a shared bucket.
type DayGroup struct {
	Key     string  `json:"key"`
	Date    string  `json:"date,omitempty"`
	Label   string  `json:"label,omitempty"`
	Entries []Entry `json:"entries"`
}

// BuildMonthlySchedules groups entries into months, weeks and days. The
// output is fully deterministic: running it twice over the same input yields
// identical membership and ordering, which the realtime diffing relies on.
// Entries sort by date then procedure id, undated entries after all dated
// ones, and the undated month bucket closes the list.
func BuildMonthlySchedules(entries []Entry) []MonthGroup {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SortKey != sorted[j].SortKey {
			return sorted[i].SortKey < sorted[j].SortKey
		}
		return sorted[i].ProcedureID < sorted[j].ProcedureID
	})

	type monthAcc struct {
		label   string
		year    int
		month   time.Month
		entries []Entry
	}
	var labels []string
	buckets := make(map[string]*monthAcc)
	for _, e := range sorted {
		acc, ok := buckets[e.MonthLabel]
		if !ok {
			acc = &monthAcc{label: e.MonthLabel}
			buckets[e.MonthLabel] = acc
			labels = append(labels, e.MonthLabel)
		}
		if acc.year == 0 && e.Year != 0 {
			acc.year, acc.month = e.Year, e.Month
		}
		acc.entries = append(acc.entries, e)
	}

	rank := func(label string) int64 {
		acc := buckets[label]
		switch {
		case acc.label == UndatedMonthLabel:
			return math.MaxInt64
		case acc.year == 0:
			return math.MaxInt64 - 1
		default:
			return int64(acc.year)*100 + int64(acc.month)
		}
	}
	sort.SliceStable(labels, func(i, j int) bool {
		ri, rj := rank(labels[i]), rank(labels[j])
		if ri != rj {
			return ri < rj
		}
		return labels[i] < labels[j]
	})

	out := make([]MonthGroup, 0, len(labels))
	for _, label := range labels {
		acc := buckets[label]
		out = append(out, MonthGroup{
			Label: acc.label,
			Year:  acc.year,
			Month: int(acc.month),
			Weeks: buildWeeks(acc.entries),
		})
	}
	return out
}

// buildWeeks groups one month's entries by week label, ordered by week order
// with the label as tiebreak. Entries arrive pre-sorted, so each week's day
// buckets inherit date order.
func buildWeeks(entries []Entry) []WeekGroup {
	type weekAcc struct {
		label   string
		rng     string
		order   int
		entries []Entry
	}
	var labels []string
	buckets := make(map[string]*weekAcc)
	for _, e := range entries {
		acc, ok := buckets[e.WeekLabel]
		if !ok {
			acc = &weekAcc{label: e.WeekLabel}
			buckets[e.WeekLabel] = acc
			labels = append(labels, e.WeekLabel)
		}
		if acc.order == 0 && e.WeekOrder != 0 {
			acc.order = e.WeekOrder
		}
		if acc.rng == "" && e.WeekRange != "" {
			acc.rng = e.WeekRange
		}
		acc.entries = append(acc.entries, e)
	}

	sort.SliceStable(labels, func(i, j int) bool {
		a, b := buckets[labels[i]], buckets[labels[j]]
		if a.order != b.order {
			return a.order < b.order
		}
		return a.label < b.label
	})

	out := make([]WeekGroup, 0, len(labels))
	for _, label := range labels {
		acc := buckets[label]
		out = append(out, WeekGroup{
			Label: acc.label,
			Range: acc.rng,
			Order: acc.order,
			Days:  GroupWeekDays(acc.entries),
		})
	}
	return out
}

// GroupWeekDays buckets a week's entries by exact date so several bookings on
// one day share a heading. Buckets surface in first-seen order, which is date
// order when the input is sorted.
func GroupWeekDays(entries []Entry) []DayGroup {
	var out []DayGroup
	index := make(map[string]int)
	for _, e := range entries {
		key := e.ProcedureDate
		if key == "" {
			key = fmt.Sprintf("undated-%d", e.ProcedureID)
		}
		if i, ok := index[key]; ok {
			out[i].Entries = append(out[i].Entries, e)
			continue
		}
		index[key] = len(out)
		out = append(out, DayGroup{
			Key:     key,
			Date:    e.ProcedureDate,
			Label:   e.DayLabel,
			Entries: []Entry{e},
		})
	}
	return out
}
