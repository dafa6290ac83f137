package search

import (
	"sort"
	"strings"
)

// DefaultLimit caps how many matches the dropdown renders. Scoring itself is
// unbounded; only the returned slice is cut.
const DefaultLimit = 8

// Candidate is one searchable row. Full, First and Last must already be
// folded with NormalizeText; Display and Detail stay in their original form
// for rendering. Scheduled separates booked entries from the patient-only
// pool so empty queries can list booked patients first.
type Candidate struct {
	PatientID   int64  `json:"patient_id"`
	ProcedureID int64  `json:"procedure_id,omitempty"`
	Display     string `json:"display"`
	Detail      string `json:"detail,omitempty"`
	Scheduled   bool   `json:"scheduled"`

	Full  string `json:"-"`
	First string `json:"-"`
	Last  string `json:"-"`
}

// Match is a candidate that survived filtering, with its rank score. Lower
// scores sort first.
type Match struct {
	Candidate
	Score float64 `json:"score"`
}

// Rank filters, scores and orders candidates for query. Candidates that do
// not match a non-empty query are dropped. The sort is stable, so ties keep
// the caller's order. Patients appearing more than once are collapsed to
// their first surviving row, then the list is cut to limit (DefaultLimit
// when limit is not positive).
func Rank(candidates []Candidate, query string, limit int) []Match {
	q := NormalizeText(query)
	parts := strings.Fields(q)

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		score, ok := scoreCandidate(c, q, parts)
		if !ok {
			continue
		}
		matches = append(matches, Match{Candidate: c, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score < matches[j].Score })

	seen := make(map[int64]bool, len(matches))
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if seen[m.PatientID] {
			continue
		}
		seen[m.PatientID] = true
		out = append(out, m)
	}

	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// scoreCandidate walks the match ladder from strongest to weakest. An empty
// query matches everything, ranking booked entries ahead of the unscheduled
// pool.
func scoreCandidate(c Candidate, q string, parts []string) (float64, bool) {
	if q == "" {
		if c.Scheduled {
			return 0.5, true
		}
		return 1, true
	}
	switch {
	case c.Full == q:
		return -5, true
	case len(parts) >= 2 && c.First == parts[0] && strings.HasPrefix(c.Last, strings.Join(parts[1:], " ")):
		return -4, true
	case c.First == q || c.Last == q:
		return -3, true
	case strings.HasPrefix(c.Full, q):
		return -2, true
	case strings.HasPrefix(c.First, parts[0]) || strings.HasPrefix(c.Last, parts[0]):
		return -1, true
	case strings.Contains(c.Full, q):
		return 0, true
	}
	return 0, false
}
