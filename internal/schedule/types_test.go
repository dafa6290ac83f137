package schedule

import (
	"encoding/json"
	"testing"
)

func TestProcedureUnmarshalCoercions(t *testing.T) {
	payload := `{
		"id": 10,
		"patient_id": 3,
		"procedure_date": "2024-06-03",
		"procedure_time": "08:30",
		"status": "confirmed",
		"procedure_type": "hair_transplant",
		"grafts": "3200",
		"photos": 2.0,
		"outstanding_balance": "120.50",
		"consultation": "consultation_1",
		"forms": ["form_1", "form_2"],
		"notes": "call before arrival"
	}`
	var p Procedure
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Grafts != 3200 {
		t.Errorf("grafts = %d, want 3200", p.Grafts)
	}
	if p.Photos != 2 {
		t.Errorf("photos = %d, want 2", p.Photos)
	}
	if p.OutstandingBalance == nil || *p.OutstandingBalance != 120.50 {
		t.Errorf("outstanding_balance = %v, want 120.50", p.OutstandingBalance)
	}
	if len(p.Consultation) != 1 || p.Consultation[0] != "consultation_1" {
		t.Errorf("consultation = %v, want single-element list", p.Consultation)
	}
	if len(p.Forms) != 2 {
		t.Errorf("forms = %v, want two entries", p.Forms)
	}
	if len(p.Notes) != 1 || p.Notes[0].Text != "call before arrival" {
		t.Errorf("notes = %+v, want single string note", p.Notes)
	}
}

func TestProcedureUnmarshalNumericGrafts(t *testing.T) {
	var p Procedure
	if err := json.Unmarshal([]byte(`{"id":1,"grafts":2800.0}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Grafts != 2800 {
		t.Errorf("grafts = %d, want 2800", p.Grafts)
	}
}

func TestProcedureUnmarshalAbsentBalance(t *testing.T) {
	for _, payload := range []string{
		`{"id":1}`,
		`{"id":1,"outstanding_balance":null}`,
		`{"id":1,"outstanding_balance":""}`,
		`{"id":1,"outstanding_balance":"n/a"}`,
	} {
		var p Procedure
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			t.Fatalf("unmarshal %s: %v", payload, err)
		}
		if p.OutstandingBalance != nil {
			t.Errorf("payload %s: balance = %v, want nil", payload, *p.OutstandingBalance)
		}
	}
}

func TestProcedureUnmarshalConsultationList(t *testing.T) {
	var p Procedure
	if err := json.Unmarshal([]byte(`{"id":1,"consultation":["consultation_1","consultation_2"]}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(p.Consultation) != 2 {
		t.Errorf("consultation = %v, want two entries", p.Consultation)
	}

	var empty Procedure
	if err := json.Unmarshal([]byte(`{"id":1,"consultation":""}`), &empty); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(empty.Consultation) != 0 {
		t.Errorf("blank scalar consultation = %v, want empty", empty.Consultation)
	}
}

func TestProcedureUnmarshalNestedNotes(t *testing.T) {
	payload := `{"id":1,"notes":[
		"plain string",
		{"text":"object note","author":"reception"},
		[{"text":"nested list note"}],
		{"author":"surgeon","created_at":"2024-06-01T10:00:00",
		 "text":[{"text":"child keeps parent author"},"bare child"]},
		{"text":"   "},
		{"note":"legacy field"}
	]}`
	var p Procedure
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	texts := make([]string, len(p.Notes))
	for i, n := range p.Notes {
		texts[i] = n.Text
	}
	want := []string{"plain string", "object note", "nested list note", "child keeps parent author", "bare child", "legacy field"}
	if len(texts) != len(want) {
		t.Fatalf("notes = %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("note %d = %q, want %q", i, texts[i], want[i])
		}
	}
	if p.Notes[3].Author != "surgeon" {
		t.Errorf("child note author = %q, want inherited %q", p.Notes[3].Author, "surgeon")
	}
	if p.Notes[4].Author != "surgeon" {
		t.Errorf("bare child author = %q, want inherited %q", p.Notes[4].Author, "surgeon")
	}
	if p.Notes[1].Author != "reception" {
		t.Errorf("object note author = %q", p.Notes[1].Author)
	}
}

func TestPatientDisplayName(t *testing.T) {
	p := Patient{FirstName: " Jane ", LastName: "Doe"}
	if got := p.DisplayName(); got != "Jane Doe" {
		t.Errorf("DisplayName = %q", got)
	}
	only := Patient{FirstName: "Cher"}
	if got := only.DisplayName(); got != "Cher" {
		t.Errorf("DisplayName = %q", got)
	}
}
