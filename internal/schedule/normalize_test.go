package schedule

import (
	"testing"
)

func patientsByID(patients ...Patient) map[int64]Patient {
	m := make(map[int64]Patient, len(patients))
	for _, p := range patients {
		m[p.ID] = p
	}
	return m
}

func TestNormalizeEntryResolvesPatient(t *testing.T) {
	patients := patientsByID(Patient{ID: 3, FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", PhotoCount: 4})
	proc := Procedure{ID: 10, PatientID: 3, ProcedureDate: "2024-06-03", Status: "confirmed"}

	e := NormalizeEntry(proc, patients)
	if e.FirstName != "Jane" || e.LastName != "Doe" {
		t.Fatalf("patient not resolved: %+v", e)
	}
	if e.Email != "jane@example.com" || e.PhotoCount != 4 {
		t.Errorf("patient fields not carried: %+v", e)
	}
	if e.MonthLabel != "June 2024" || e.WeekLabel != "Week 2" || e.WeekOrder != 2 {
		t.Errorf("grouping fields = %q %q %d", e.MonthLabel, e.WeekLabel, e.WeekOrder)
	}
	if e.DayLabel != "Mon" {
		t.Errorf("day label = %q, want Mon", e.DayLabel)
	}
	if e.WeekRange != "Jun 3 – Jun 9" {
		t.Errorf("week range = %q", e.WeekRange)
	}
	if e.ProcedureDate != "2024-06-03" {
		t.Errorf("procedure date = %q", e.ProcedureDate)
	}
	if !e.Dated() {
		t.Errorf("entry should be dated")
	}
}

func TestNormalizeEntryFallsBackToEmbeddedFields(t *testing.T) {
	proc := Procedure{
		ID: 11, PatientID: 99, ProcedureDate: "2024-06-04",
		FirstName: "Embedded", LastName: "Person", Phone: "07123 456789", Photos: 2,
	}
	e := NormalizeEntry(proc, map[int64]Patient{})
	if e.FirstName != "Embedded" || e.LastName != "Person" {
		t.Fatalf("embedded fallback not applied: %+v", e)
	}
	if e.Phone != "07123 456789" || e.PhotoCount != 2 {
		t.Errorf("embedded contact fields not carried: %+v", e)
	}
}

func TestNormalizeEntryUndatedFallbackChain(t *testing.T) {
	// Server-precomputed labels win when the date is unusable.
	withLabels := Procedure{
		ID: 12, PatientID: 1, ProcedureDate: "",
		MonthLabel: "June 2024", WeekLabel: "Week 3", WeekRange: "Jun 10 – Jun 16", WeekOrder: 3, DayLabel: "Tue",
	}
	e := NormalizeEntry(withLabels, map[int64]Patient{})
	if e.MonthLabel != "June 2024" || e.WeekLabel != "Week 3" || e.WeekOrder != 3 {
		t.Errorf("server labels not honored: %+v", e)
	}
	if e.SortKey != UndatedSortKey {
		t.Errorf("undated entry must carry the sentinel sort key")
	}

	// Without server labels the entry lands in the undated bucket.
	bare := Procedure{ID: 13, PatientID: 1, ProcedureDate: "not-a-date"}
	e = NormalizeEntry(bare, map[int64]Patient{})
	if e.MonthLabel != UndatedMonthLabel {
		t.Errorf("month label = %q, want %q", e.MonthLabel, UndatedMonthLabel)
	}
	if e.WeekLabel != "Week 1" || e.WeekOrder != 1 {
		t.Errorf("week fallback = %q %d, want Week 1", e.WeekLabel, e.WeekOrder)
	}
	if e.SortKey != UndatedSortKey {
		t.Errorf("sort key = %d, want sentinel", e.SortKey)
	}
	if e.Dated() {
		t.Errorf("entry should be undated")
	}
}

func TestNormalizeEntryPrecomputesSearchStrings(t *testing.T) {
	patients := patientsByID(Patient{ID: 5, FirstName: "José", LastName: "García"})
	e := NormalizeEntry(Procedure{ID: 14, PatientID: 5}, patients)
	if e.SearchFirst != "jose" || e.SearchLast != "garcia" {
		t.Errorf("folded names = %q %q", e.SearchFirst, e.SearchLast)
	}
	if e.SearchName != "jose garcia" {
		t.Errorf("folded full name = %q", e.SearchName)
	}
}

func TestNormalizeEntriesSkipsDeleted(t *testing.T) {
	patients := patientsByID(
		Patient{ID: 1, FirstName: "Kept", LastName: "Patient"},
		Patient{ID: 2, FirstName: "Gone", LastName: "Patient", Deleted: true},
	)
	procs := []Procedure{
		{ID: 1, PatientID: 1, ProcedureDate: "2024-06-03"},
		{ID: 2, PatientID: 2, ProcedureDate: "2024-06-03"},
		{ID: 3, PatientID: 1, ProcedureDate: "2024-06-04", Deleted: true},
	}
	entries := NormalizeEntries(procs, patients)
	if len(entries) != 1 || entries[0].ProcedureID != 1 {
		t.Fatalf("entries = %+v, want only procedure 1", entries)
	}
}
