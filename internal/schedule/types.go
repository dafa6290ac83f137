package schedule

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Patient mirrors the backend's patient payload.
type Patient struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	DriveFolderID string `json:"drive_folder_id,omitempty"`
	PhotoCount    int    `json:"photo_count"`
	Deleted       bool   `json:"deleted"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// DisplayName joins the patient's names for headings and search rows.
func (p Patient) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// Note is one normalized entry of a procedure's notes list.
type Note struct {
	ID        string `json:"id,omitempty"`
	Text      string `json:"text"`
	Author    string `json:"author,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	Completed bool   `json:"completed,omitempty"`
}

// Procedure mirrors the backend's procedure payload. Several fields arrive in
// more than one shape across endpoints and import paths; UnmarshalJSON
// coerces them so the rest of the engine sees one form.
type Procedure struct {
	ID                 int64    `json:"id"`
	PatientID          int64    `json:"patient_id"`
	ProcedureDate      string   `json:"procedure_date,omitempty"`
	ProcedureTime      string   `json:"procedure_time,omitempty"`
	Status             string   `json:"status"`
	ProcedureType      string   `json:"procedure_type"`
	PackageType        string   `json:"package_type,omitempty"`
	Agency             string   `json:"agency,omitempty"`
	Grafts             int      `json:"grafts,omitempty"`
	Payment            string   `json:"payment,omitempty"`
	Consultation       []string `json:"consultation,omitempty"`
	Forms              []string `json:"forms,omitempty"`
	Consents           []string `json:"consents,omitempty"`
	Notes              []Note   `json:"notes,omitempty"`
	OutstandingBalance *float64 `json:"outstanding_balance,omitempty"`
	Photos             int      `json:"photos,omitempty"`
	Deleted            bool     `json:"deleted,omitempty"`
	CreatedAt          string   `json:"created_at,omitempty"`
	UpdatedAt          string   `json:"updated_at,omitempty"`

	// Patient fields some responses embed directly on the procedure row.
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`

	// Server-precomputed grouping labels, trusted only when the date is
	// missing or unparsable.
	MonthLabel string `json:"month_label,omitempty"`
	WeekLabel  string `json:"week_label,omitempty"`
	WeekRange  string `json:"week_range,omitempty"`
	WeekOrder  int    `json:"week_order,omitempty"`
	DayLabel   string `json:"day_label,omitempty"`
}

// UnmarshalJSON decodes a procedure row, coercing the fields whose wire shape
// varies: numbers that may arrive as strings, the consultation scalar-or-list
// and the notes payload with its nested forms.
func (p *Procedure) UnmarshalJSON(data []byte) error {
	type alias Procedure
	aux := struct {
		*alias
		Grafts             json.RawMessage `json:"grafts"`
		Photos             json.RawMessage `json:"photos"`
		OutstandingBalance json.RawMessage `json:"outstanding_balance"`
		Consultation       json.RawMessage `json:"consultation"`
		Notes              json.RawMessage `json:"notes"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Grafts = coerceInt(aux.Grafts)
	p.Photos = coerceInt(aux.Photos)
	p.OutstandingBalance = coerceOptionalFloat(aux.OutstandingBalance)
	p.Consultation = coerceStringList(aux.Consultation)
	p.Notes = coerceNotes(aux.Notes)
	return nil
}

// coerceInt accepts a JSON number or a numeric string; anything else is zero.
func coerceInt(raw json.RawMessage) int {
	f, ok := rawFloat(raw)
	if !ok {
		return 0
	}
	return int(f)
}

// coerceOptionalFloat accepts a JSON number or a numeric string and keeps
// null, empty and garbage values as absent.
func coerceOptionalFloat(raw json.RawMessage) *float64 {
	f, ok := rawFloat(raw)
	if !ok {
		return nil
	}
	return &f
}

func rawFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return num, true
}

// coerceStringList accepts a list of strings or a bare scalar, which older
// rows stored for single-value fields.
func coerceStringList(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			return []string{single}
		}
		return nil
	}
	return nil
}

// coerceNotes flattens the notes payload. Rows have stored a plain string, a
// list of strings, a list of note objects, nested lists and note objects
// whose text field is itself a list of child notes inheriting the parent's
// other fields. Entries with no text are dropped.
func coerceNotes(raw json.RawMessage) []Note {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	var out []Note
	flattenNotes(value, &out)
	return out
}

func flattenNotes(value any, out *[]Note) {
	switch v := value.(type) {
	case nil:
		return
	case string:
		if text := strings.TrimSpace(v); text != "" {
			*out = append(*out, Note{Text: text})
		}
	case []any:
		for _, item := range v {
			flattenNotes(item, out)
		}
	case map[string]any:
		if children, ok := v["text"].([]any); ok {
			for _, child := range children {
				flattenNotes(mergeNoteDefaults(v, child), out)
			}
			return
		}
		note := noteFromMap(v)
		if note.Text != "" {
			*out = append(*out, note)
		}
	}
}

// mergeNoteDefaults applies a parent note's fields to one of its children,
// letting the child's own fields win.
func mergeNoteDefaults(parent map[string]any, child any) any {
	base := make(map[string]any, len(parent))
	for k, val := range parent {
		if k != "text" {
			base[k] = val
		}
	}
	switch c := child.(type) {
	case map[string]any:
		for k, val := range c {
			base[k] = val
		}
	default:
		base["text"] = child
	}
	return base
}

func noteFromMap(m map[string]any) Note {
	text := firstString(m, "text", "note", "value", "description")
	note := Note{
		ID:        strings.TrimSpace(stringValue(m["id"])),
		Text:      strings.TrimSpace(text),
		Author:    strings.TrimSpace(stringValue(m["author"])),
		CreatedAt: strings.TrimSpace(stringValue(m["created_at"])),
	}
	if completed, ok := m["completed"].(bool); ok {
		note.Completed = completed
	}
	return note
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringValue(m[k]); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
