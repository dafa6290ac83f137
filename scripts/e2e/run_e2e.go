// Package main runs smoke checks against a deployed schedule engine.
//
// Scenarios cover the read surface and the merge proxy's validation path:
//   - Health and connection state
//   - Calendar months with week/day grouping
//   - Month selection, including rejection of malformed keys
//   - Search ranking and the empty-query browse list
//   - Duplicate review payload
//   - Selection lifecycle and merge validation
//   - Field options fallback
//   - Conflict notices and highlight pulses
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go [scenario-name]
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go            # runs all
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go search     # runs one
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
)

var apiBase string

// ---------------------------------------------------------------------------
// Scenario definition
// ---------------------------------------------------------------------------

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func getJSON(path string, out interface{}) (int, error) {
	resp, err := http.Get(apiBase + path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w (%s)", path, err, string(body))
		}
	}
	return resp.StatusCode, nil
}

func sendJSON(method, path string, payload, out interface{}) (int, error) {
	var reader io.Reader
	if payload != nil {
		body, _ := json.Marshal(payload)
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, apiBase+path, reader)
	if err != nil {
		return 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

var monthLabelPattern = regexp.MustCompile(`^[A-Z][a-z]+ \d{4}$`)

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func scenarioHealth(t *T) {
	var resp map[string]string
	code, err := getJSON("/health", &resp)
	if err != nil {
		t.fatalf("health request: %v", err)
		return
	}
	t.check("health returns 200", code == http.StatusOK)
	t.check("status is ok", resp["status"] == "ok")
	known := map[string]bool{"idle": true, "connecting": true, "live": true, "offline": true}
	t.check("connection state is known", known[resp["connection"]])
}

type scheduleResponse struct {
	Months []struct {
		Year  int    `json:"year"`
		Month int    `json:"month"`
		Label string `json:"label"`
		Weeks []struct {
			Label string `json:"label"`
			Order int    `json:"order"`
			Days  []struct {
				Key     string            `json:"key"`
				Entries []json.RawMessage `json:"entries"`
			} `json:"days"`
		} `json:"weeks"`
	} `json:"months"`
	VisibleMonth string `json:"visible_month"`
	Connection   struct {
		State string `json:"state"`
	} `json:"connection"`
}

func scenarioScheduleMonths(t *T) {
	var resp scheduleResponse
	code, err := getJSON("/schedule", &resp)
	if err != nil {
		t.fatalf("schedule request: %v", err)
		return
	}
	t.check("schedule returns 200", code == http.StatusOK)
	if len(resp.Months) == 0 {
		t.check("at least one month group", false)
		return
	}
	t.check("at least one month group", true)

	labelsOK := true
	weeksOK := true
	orderOK := true
	for _, m := range resp.Months {
		if m.Label != "Date not set" && !monthLabelPattern.MatchString(m.Label) {
			labelsOK = false
		}
		if len(m.Weeks) == 0 {
			weeksOK = false
		}
		lastOrder := -1
		for _, w := range m.Weeks {
			if w.Order < lastOrder {
				orderOK = false
			}
			lastOrder = w.Order
		}
	}
	t.check("month labels are \"Month YYYY\" or the undated group", labelsOK)
	t.check("every month has weeks", weeksOK)
	t.check("weeks are ordered within each month", orderOK)

	undatedLast := true
	for i, m := range resp.Months {
		if m.Label == "Date not set" && i != len(resp.Months)-1 {
			undatedLast = false
		}
	}
	t.check("undated group sorts last", undatedLast)
}

func scenarioMonthSelection(t *T) {
	var resp scheduleResponse
	if _, err := getJSON("/schedule", &resp); err != nil {
		t.fatalf("schedule request: %v", err)
		return
	}
	target := ""
	for _, m := range resp.Months {
		if m.Year != 0 {
			target = fmt.Sprintf("%04d-%02d", m.Year, m.Month)
			break
		}
	}
	if target == "" {
		fmt.Println("    SKIP: no dated months to select")
		return
	}

	var selected scheduleResponse
	code, err := getJSON("/schedule?month="+url.QueryEscape(target), &selected)
	if err != nil {
		t.fatalf("month select request: %v", err)
		return
	}
	t.check("month select returns 200", code == http.StatusOK)
	t.check("visible month echoes the selection", selected.VisibleMonth == target)

	code, _ = getJSON("/schedule?month=garbage", nil)
	t.check("malformed month is rejected", code == http.StatusBadRequest)
}

type searchResponse struct {
	Query   string `json:"query"`
	Matches []struct {
		PatientID int64   `json:"patient_id"`
		Display   string  `json:"display"`
		Scheduled bool    `json:"scheduled"`
		Score     float64 `json:"score"`
	} `json:"matches"`
}

func scenarioSearch(t *T) {
	var browse searchResponse
	code, err := getJSON("/schedule/search?q=", &browse)
	if err != nil {
		t.fatalf("browse request: %v", err)
		return
	}
	t.check("empty query returns 200", code == http.StatusOK)
	t.check("match cap respected", len(browse.Matches) <= 8)

	scheduledFirst := true
	seenUnscheduled := false
	for _, m := range browse.Matches {
		if !m.Scheduled {
			seenUnscheduled = true
		} else if seenUnscheduled {
			scheduledFirst = false
		}
	}
	t.check("scheduled patients list before unscheduled", scheduledFirst)

	if len(browse.Matches) == 0 {
		fmt.Println("    SKIP: no records to search for")
		return
	}
	want := browse.Matches[0]
	var exact searchResponse
	if _, err := getJSON("/schedule/search?q="+url.QueryEscape(want.Display), &exact); err != nil {
		t.fatalf("exact search request: %v", err)
		return
	}
	t.check("query echo is normalized", exact.Query == strings.ToLower(exact.Query))
	t.check("exact name finds the patient",
		len(exact.Matches) > 0 && exact.Matches[0].PatientID == want.PatientID)
	t.check("exact match gets the strongest score",
		len(exact.Matches) > 0 && exact.Matches[0].Score == -5)
}

func scenarioDuplicates(t *T) {
	var resp struct {
		IDs    []int64 `json:"ids"`
		Groups []struct {
			Kind string  `json:"kind"`
			IDs  []int64 `json:"ids"`
		} `json:"groups"`
	}
	code, err := getJSON("/duplicates", &resp)
	if err != nil {
		t.fatalf("duplicates request: %v", err)
		return
	}
	t.check("duplicates returns 200", code == http.StatusOK)

	kindsOK := true
	groupsOK := true
	for _, g := range resp.Groups {
		if g.Kind != "email" && g.Kind != "phone" && g.Kind != "name" {
			kindsOK = false
		}
		if len(g.IDs) < 2 {
			groupsOK = false
		}
	}
	t.check("group kinds are email/phone/name", kindsOK)
	t.check("every group holds at least two records", groupsOK)
}

func scenarioSelectionMerge(t *T) {
	var sel struct {
		IDs []int64 `json:"ids"`
	}
	code, err := sendJSON(http.MethodPut, "/selection", map[string][]int64{"ids": {999999}}, &sel)
	if err != nil {
		t.fatalf("selection request: %v", err)
		return
	}
	t.check("selection accepts ids", code == http.StatusOK)
	t.check("selection echoes ids", len(sel.IDs) == 1 && sel.IDs[0] == 999999)

	var mergeResp map[string]interface{}
	code, err = sendJSON(http.MethodPost, "/merge", nil, &mergeResp)
	if err != nil {
		t.fatalf("merge request: %v", err)
		return
	}
	t.check("single-record merge is rejected", code >= 400 && code < 500)
	_, hasDetail := mergeResp["detail"]
	t.check("rejection carries a detail message", hasDetail)

	code, _ = sendJSON(http.MethodDelete, "/selection", nil, nil)
	t.check("selection clears", code == http.StatusNoContent)
}

func scenarioFieldOptions(t *T) {
	var resp map[string][]struct {
		Value string `json:"value"`
		Label string `json:"label"`
	}
	code, err := getJSON("/field-options", &resp)
	if err != nil {
		t.fatalf("field options request: %v", err)
		return
	}
	t.check("field options return 200", code == http.StatusOK)
	t.check("status options present", len(resp["status"]) > 0)
	t.check("procedure types present", len(resp["procedure_type"]) > 0)
}

func scenarioConflictsAndPulses(t *T) {
	var conflicts struct {
		Notices []struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
		} `json:"notices"`
	}
	code, err := getJSON("/conflicts", &conflicts)
	if err != nil {
		t.fatalf("conflicts request: %v", err)
		return
	}
	t.check("conflicts return 200", code == http.StatusOK)

	kindsOK := true
	for _, n := range conflicts.Notices {
		if n.Kind != "removed" && n.Kind != "changed" {
			kindsOK = false
		}
	}
	t.check("notice kinds are removed/changed", kindsOK)

	code, _ = sendJSON(http.MethodDelete, "/conflicts/does-not-exist", nil, nil)
	t.check("dismissing an unknown notice returns 404", code == http.StatusNotFound)

	var pulses struct {
		IDs []int64 `json:"ids"`
	}
	code, err = getJSON("/pulses", &pulses)
	if err != nil {
		t.fatalf("pulses request: %v", err)
		return
	}
	t.check("pulses return 200", code == http.StatusOK)
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

func main() {
	apiBase = os.Getenv("API_BASE_URL")
	if apiBase == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL required")
		os.Exit(1)
	}
	apiBase = strings.TrimRight(apiBase, "/")

	scenarios := []scenario{
		{"health", scenarioHealth},
		{"schedule-months", scenarioScheduleMonths},
		{"month-selection", scenarioMonthSelection},
		{"search", scenarioSearch},
		{"duplicates", scenarioDuplicates},
		{"selection-merge", scenarioSelectionMerge},
		{"field-options", scenarioFieldOptions},
		{"conflicts-pulses", scenarioConflictsAndPulses},
	}

	// Filter by name if argument provided
	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "PASS"
		if t.failed > 0 {
			status = "FAIL"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range scenarioResults {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)

	if totalFailed > 0 {
		os.Exit(1)
	}
}
