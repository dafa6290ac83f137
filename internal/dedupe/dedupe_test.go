package dedupe

import (
	"testing"

	"github.com/livhair/schedule-engine/internal/schedule"
)

func TestCollectDuplicateIDsByEmail(t *testing.T) {
	patients := []schedule.Patient{
		{ID: 1, FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"},
		{ID: 2, FirstName: "Janet", LastName: "Dough", Email: " JANE@example.com "},
		{ID: 3, FirstName: "Sam", LastName: "Smith", Email: "sam@example.com", Phone: "07000 111222"},
	}
	flagged := CollectDuplicateIDs(patients)
	if !flagged[1] || !flagged[2] {
		t.Fatalf("patients sharing an email must both be flagged: %v", flagged)
	}
	if flagged[3] {
		t.Fatalf("unrelated patient must not be flagged")
	}
}

func TestCollectDuplicateIDsByPhoneAndName(t *testing.T) {
	patients := []schedule.Patient{
		{ID: 1, FirstName: "Ana", LastName: "Silva", Phone: "+44 7700 900123"},
		{ID: 2, FirstName: "Ana Maria", LastName: "Silva", Phone: "(447) 70-0900123"},
		{ID: 3, FirstName: "José", LastName: "García"},
		{ID: 4, FirstName: "Jose", LastName: "Garcia"},
	}
	flagged := CollectDuplicateIDs(patients)
	for id := int64(1); id <= 4; id++ {
		if !flagged[id] {
			t.Errorf("patient %d should be flagged", id)
		}
	}
}

func TestCollectDuplicateIDsNotTransitive(t *testing.T) {
	// 1 and 2 share a phone, 2 and 3 share a name. All three are flagged,
	// but 1 and 3 only through their own collisions, never as one cluster.
	patients := []schedule.Patient{
		{ID: 1, FirstName: "Amy", LastName: "Aard", Phone: "07700900001"},
		{ID: 2, FirstName: "Beth", LastName: "Both", Phone: "07700900001"},
		{ID: 3, FirstName: "Beth", LastName: "Both", Email: "beth@example.com"},
	}
	groups := Groups(patients)
	for _, g := range groups {
		if len(g.IDs) != 2 {
			t.Errorf("group %s/%s = %v, want pairs only", g.Kind, g.Key, g.IDs)
		}
	}
	flagged := CollectDuplicateIDs(patients)
	if !flagged[1] || !flagged[2] || !flagged[3] {
		t.Fatalf("all colliding patients should be flagged: %v", flagged)
	}
}

func TestGroupsSkipEmptyAndShortKeys(t *testing.T) {
	patients := []schedule.Patient{
		{ID: 1},
		{ID: 2},
		{ID: 3, Phone: "911"},
		{ID: 4, Phone: "911"},
	}
	if groups := Groups(patients); len(groups) != 0 {
		t.Fatalf("blank and short keys must not group: %+v", groups)
	}
}

func TestGroupsSkipDeleted(t *testing.T) {
	patients := []schedule.Patient{
		{ID: 1, Email: "dup@example.com"},
		{ID: 2, Email: "dup@example.com", Deleted: true},
	}
	if flagged := CollectDuplicateIDs(patients); len(flagged) != 0 {
		t.Fatalf("deleted records must not create duplicates: %v", flagged)
	}
}

func TestGroupsAreOrdered(t *testing.T) {
	patients := []schedule.Patient{
		{ID: 2, FirstName: "Jane", LastName: "Doe", Email: "z@example.com"},
		{ID: 1, FirstName: "Jane", LastName: "Doe", Email: "z@example.com"},
	}
	groups := Groups(patients)
	if len(groups) != 2 {
		t.Fatalf("want email and name groups, got %+v", groups)
	}
	if groups[0].Kind != KindEmail || groups[1].Kind != KindName {
		t.Errorf("kind order = %s, %s", groups[0].Kind, groups[1].Kind)
	}
	if groups[0].IDs[0] != 1 || groups[0].IDs[1] != 2 {
		t.Errorf("ids should be sorted: %v", groups[0].IDs)
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone("+44 (0) 7700-900123"); got != "4407700900123" {
		t.Errorf("NormalizePhone = %q", got)
	}
	if got := NormalizePhone("123"); got != "" {
		t.Errorf("short phone should normalize to empty, got %q", got)
	}
}
