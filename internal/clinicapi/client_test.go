package clinicapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListProceduresDecodesMixedShapes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/procedures/" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok_1" {
			t.Fatalf("authorization header = %q", got)
		}
		_, _ = w.Write([]byte(`[
			{"id": 1, "patient_id": 3, "procedure_date": "2024-06-03", "grafts": "3000", "consultation": "consultation_1"},
			{"id": 2, "patient_id": 4, "procedure_date": null, "grafts": 2500}
		]`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "tok_1", nil)
	procs, err := c.ListProcedures(context.Background())
	if err != nil {
		t.Fatalf("ListProcedures error: %v", err)
	}
	if len(procs) != 2 {
		t.Fatalf("procedures = %d, want 2", len(procs))
	}
	if procs[0].Grafts != 3000 || len(procs[0].Consultation) != 1 {
		t.Fatalf("coercions not applied: %+v", procs[0])
	}
	if procs[1].ProcedureDate != "" {
		t.Fatalf("null date should decode empty, got %q", procs[1].ProcedureDate)
	}
}

func TestGetPatient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/patients/7" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 7, "first_name": "Jane", "last_name": "Doe"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "", nil)
	p, err := c.GetPatient(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetPatient error: %v", err)
	}
	if p.ID != 7 || p.FirstName != "Jane" {
		t.Fatalf("patient = %+v", p)
	}
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "Not authenticated"}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "", nil)
	_, err := c.ListPatients(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "Procedure not found"}`, http.StatusNotFound)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "", nil)
	_, err := c.GetProcedure(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestServerDetailKeptVerbatim(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "Provide at least one duplicate patient to merge."}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "", nil)
	_, err := c.MergePatients(context.Background(), MergeRequest{TargetID: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %T", err)
	}
	if apiErr.Message != "Provide at least one duplicate patient to merge." {
		t.Fatalf("detail not kept verbatim: %q", apiErr.Message)
	}
	if Detail(err) != apiErr.Message {
		t.Fatalf("Detail() = %q", Detail(err))
	}
}

func TestMergePatientsSendsRequestBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/patients/merge" {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req MergeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.TargetID != 1 || len(req.SourceIDs) != 2 {
			t.Fatalf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"patient":              map[string]any{"id": 1, "first_name": "Kept"},
			"archived_patient_ids": []int64{2, 3},
			"moved_procedures":     4,
			"moved_payments":       1,
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "", nil)
	res, err := c.MergePatients(context.Background(), MergeRequest{TargetID: 1, SourceIDs: []int64{2, 3}})
	if err != nil {
		t.Fatalf("MergePatients error: %v", err)
	}
	if res.Patient.ID != 1 || len(res.ArchivedPatientIDs) != 2 || res.MovedProcedures != 4 {
		t.Fatalf("result = %+v", res)
	}
}

func TestFieldOptionsMergeWithDefaults(t *testing.T) {
	resp := FieldOptions{
		"status": {{Value: "arrived", Label: "Arrived"}},
		"forms":  {},
	}
	merged := MergeWithDefaults(resp)
	if len(merged["status"]) != 1 || merged["status"][0].Value != "arrived" {
		t.Fatalf("server status list should win: %+v", merged["status"])
	}
	if len(merged["forms"]) != 5 {
		t.Fatalf("empty forms list should fall back to defaults: %+v", merged["forms"])
	}
	if len(merged["payment"]) != 3 {
		t.Fatalf("absent payment should fall back to defaults: %+v", merged["payment"])
	}
}
