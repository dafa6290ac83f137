package schedule

import (
	"strings"
	"time"

	"github.com/livhair/schedule-engine/internal/search"
)

// Entry is the merged patient and procedure row every view renders from. The
// grouping fields are computed once here so aggregation and diffing never
// re-derive them.
type Entry struct {
	ProcedureID int64 `json:"procedure_id"`
	PatientID   int64 `json:"patient_id"`

	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	PhotoCount int    `json:"photo_count,omitempty"`

	Procedure Procedure `json:"procedure"`

	MonthLabel    string     `json:"month_label"`
	WeekLabel     string     `json:"week_label"`
	WeekRange     string     `json:"week_range,omitempty"`
	WeekOrder     int        `json:"week_order"`
	DayLabel      string     `json:"day_label,omitempty"`
	ProcedureDate string     `json:"procedure_date,omitempty"`
	SortKey       int64      `json:"sort_key"`
	Year          int        `json:"-"`
	Month         time.Month `json:"-"`

	// Folded search strings, precomputed so interactive search never
	// normalizes per keystroke.
	SearchName  string `json:"-"`
	SearchFirst string `json:"-"`
	SearchLast  string `json:"-"`
}

// DisplayName joins the entry's resolved names.
func (e Entry) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(e.FirstName) + " " + strings.TrimSpace(e.LastName))
}

// Dated reports whether the entry carries a usable procedure date.
func (e Entry) Dated() bool { return e.SortKey != UndatedSortKey }

// NormalizeEntry merges one procedure with its patient and computes the
// grouping and search fields. The patient is resolved by id from patients,
// falling back to any patient fields embedded on the procedure row, so mixed
// server shapes still render. Missing or unparsable dates fall back to the
// server's precomputed labels when present, then to the undated bucket.
func NormalizeEntry(proc Procedure, patients map[int64]Patient) Entry {
	e := Entry{
		ProcedureID: proc.ID,
		PatientID:   proc.PatientID,
		Procedure:   proc,
	}

	if p, ok := patients[proc.PatientID]; ok {
		e.FirstName = p.FirstName
		e.LastName = p.LastName
		e.Email = p.Email
		e.Phone = p.Phone
		e.Address = p.Address
		e.PhotoCount = p.PhotoCount
	} else {
		e.FirstName = proc.FirstName
		e.LastName = proc.LastName
		e.Email = proc.Email
		e.Phone = proc.Phone
		e.Address = proc.Address
		e.PhotoCount = proc.Photos
	}

	if t, ok := ParseISODate(proc.ProcedureDate); ok {
		order, label, dateRange := WeekMeta(t)
		e.MonthLabel = MonthLabel(t)
		e.WeekLabel = label
		e.WeekRange = dateRange
		e.WeekOrder = order
		e.DayLabel = DayLabel(t)
		e.ProcedureDate = FormatLocalISODate(t)
		e.SortKey = SortKey(t)
		e.Year = t.Year()
		e.Month = t.Month()
	} else {
		e.MonthLabel = fallback(proc.MonthLabel, UndatedMonthLabel)
		e.WeekLabel = fallback(proc.WeekLabel, "Week 1")
		e.WeekRange = proc.WeekRange
		e.WeekOrder = proc.WeekOrder
		if e.WeekOrder == 0 {
			e.WeekOrder = 1
		}
		e.DayLabel = proc.DayLabel
		e.SortKey = UndatedSortKey
	}

	e.SearchFirst = search.NormalizeText(e.FirstName)
	e.SearchLast = search.NormalizeText(e.LastName)
	e.SearchName = strings.TrimSpace(e.SearchFirst + " " + e.SearchLast)
	return e
}

// NormalizeEntries maps procedures through NormalizeEntry, skipping deleted
// rows on either side of the merge.
func NormalizeEntries(procs []Procedure, patients map[int64]Patient) []Entry {
	out := make([]Entry, 0, len(procs))
	for _, proc := range procs {
		if proc.Deleted {
			continue
		}
		if p, ok := patients[proc.PatientID]; ok && p.Deleted {
			continue
		}
		out = append(out, NormalizeEntry(proc, patients))
	}
	return out
}

func fallback(value, alt string) string {
	if strings.TrimSpace(value) == "" {
		return alt
	}
	return value
}
