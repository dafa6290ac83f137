package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/livhair/schedule-engine/internal/clinicapi"
	"github.com/livhair/schedule-engine/internal/dedupe"
	"github.com/livhair/schedule-engine/internal/realtime"
	"github.com/livhair/schedule-engine/internal/schedule"
	"github.com/livhair/schedule-engine/internal/search"
	"github.com/livhair/schedule-engine/internal/view"
	"github.com/livhair/schedule-engine/pkg/logging"
)

// Feed exposes the realtime channel's connection state.
type Feed interface {
	State() realtime.State
	ReconnectDelay() time.Duration
}

// FieldOptionSource fetches the upstream dropdown options.
type FieldOptionSource interface {
	FieldOptions(ctx context.Context) (clinicapi.FieldOptions, error)
}

// ScheduleHandler serves the aggregated calendar, search, duplicate review
// and the merge proxy.
type ScheduleHandler struct {
	controller *view.Controller
	feed       Feed
	fields     FieldOptionSource
	logger     *logging.Logger
}

// NewScheduleHandler creates a schedule handler. feed and fields may be nil
// when the realtime channel or the upstream client are not configured.
func NewScheduleHandler(controller *view.Controller, feed Feed, fields FieldOptionSource, logger *logging.Logger) *ScheduleHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ScheduleHandler{
		controller: controller,
		feed:       feed,
		fields:     fields,
		logger:     logger,
	}
}

// ConnectionInfo describes the realtime channel for the connection
// indicator.
type ConnectionInfo struct {
	State            string `json:"state"`
	ReconnectDelayMS int64  `json:"reconnect_delay_ms,omitempty"`
}

// ScheduleResponse is the full calendar payload.
type ScheduleResponse struct {
	Months        []schedule.MonthGroup `json:"months"`
	VisibleMonth  string                `json:"visible_month,omitempty"`
	Connection    ConnectionInfo        `json:"connection"`
	Query         string                `json:"query,omitempty"`
	StatusMessage string                `json:"status_message,omitempty"`
	Unauthorized  bool                  `json:"unauthorized,omitempty"`
	LoginRedirect string                `json:"login_redirect,omitempty"`
}

func (h *ScheduleHandler) connection() ConnectionInfo {
	if h.feed == nil {
		return ConnectionInfo{State: string(realtime.StateIdle)}
	}
	return ConnectionInfo{
		State:            string(h.feed.State()),
		ReconnectDelayMS: h.feed.ReconnectDelay().Milliseconds(),
	}
}

// HealthCheck reports liveness.
func (h *ScheduleHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"connection": h.connection().State,
	})
}

// Schedule returns the aggregated months. An optional ?month=YYYY-MM selects
// the visible month.
func (h *ScheduleHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if month := r.URL.Query().Get("month"); month != "" {
		if err := h.controller.SetMonth(month); err != nil {
			http.Error(w, "month must look like YYYY-MM", http.StatusBadRequest)
			return
		}
	}

	resp := ScheduleResponse{
		Months:        h.controller.Months(),
		Connection:    h.connection(),
		Query:         h.controller.Query(),
		StatusMessage: h.controller.StatusMessage(),
	}
	if visible, ok := h.controller.VisibleMonth(); ok {
		resp.VisibleMonth = visible.Key()
	}
	if h.controller.Unauthorized() {
		resp.Unauthorized = true
		resp.LoginRedirect = h.controller.LoginRedirect(r.URL.RequestURI())
	}
	writeJSON(w, http.StatusOK, resp)
}

// SearchResponse carries ranked matches plus the normalized query echo.
type SearchResponse struct {
	Query   string         `json:"query"`
	Matches []search.Match `json:"matches"`
}

// Search ranks patients and procedures for ?q=.
func (h *ScheduleHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	h.controller.SetQuery(q)
	matches := h.controller.Search(q, 0)
	writeJSON(w, http.StatusOK, SearchResponse{
		Query:   search.NormalizeText(q),
		Matches: matches,
	})
}

// DuplicatesResponse lists flagged ids and the collision groups behind them.
type DuplicatesResponse struct {
	IDs    []int64        `json:"ids"`
	Groups []dedupe.Group `json:"groups"`
}

// Duplicates returns the current duplicate-detection result.
func (h *ScheduleHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	flagged := h.controller.DuplicateIDs()
	ids := make([]int64, 0, len(flagged))
	for id := range flagged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	writeJSON(w, http.StatusOK, DuplicatesResponse{
		IDs:    ids,
		Groups: h.controller.DuplicateGroups(),
	})
}

// GetSelection returns the ordered selection.
func (h *ScheduleHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ids": h.controller.Selection()})
}

// PutSelection replaces the selection. Ids come from the JSON body or, for
// seeding links, from ?ids=1,2,3.
func (h *ScheduleHandler) PutSelection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []int64 `json:"ids"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	ids := body.IDs
	if len(ids) == 0 {
		if raw := r.URL.Query().Get("ids"); raw != "" {
			parsed, err := ParseIDList(raw)
			if err != nil {
				http.Error(w, "ids must be a comma-separated list of numbers", http.StatusBadRequest)
				return
			}
			ids = parsed
		}
	}
	h.controller.SetSelection(ids)
	writeJSON(w, http.StatusOK, map[string]any{"ids": h.controller.Selection()})
}

// DeleteSelection clears the selection.
func (h *ScheduleHandler) DeleteSelection(w http.ResponseWriter, r *http.Request) {
	h.controller.ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

// ParseIDList parses "1,2,3" style id lists from seeding links.
func ParseIDList(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// Merge folds the selected records into the first selected id. Upstream
// validation messages pass through verbatim.
func (h *ScheduleHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Updates map[string]any `json:"updates"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	result, err := h.controller.MergeSelected(r.Context(), body.Updates)
	if err != nil {
		if errors.Is(err, clinicapi.ErrUnauthorized) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"detail":         "Your session has expired. Sign in again to continue.",
				"login_redirect": h.controller.LoginRedirect(r.URL.Path),
			})
			return
		}
		var apiErr *clinicapi.APIError
		if errors.As(err, &apiErr) {
			writeJSON(w, apiErr.StatusCode, map[string]any{"detail": apiErr.Message})
			return
		}
		status := http.StatusBadGateway
		detail := "Merge failed. Please try again."
		if strings.Contains(err.Error(), "no records selected") {
			status = http.StatusBadRequest
			detail = "Select at least two records to merge."
		}
		writeJSON(w, status, map[string]any{"detail": detail})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Connection reports the realtime channel state.
func (h *ScheduleHandler) Connection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connection())
}

// Conflicts lists the open conflict notices.
func (h *ScheduleHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"notices": h.controller.Notices()})
}

// DismissConflict closes one notice by id.
func (h *ScheduleHandler) DismissConflict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.controller.Dismiss(id) {
		http.Error(w, "notice not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Pulses returns the procedure rows whose reconciliation highlight is still
// active.
func (h *ScheduleHandler) Pulses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ids": h.controller.ActivePulses()})
}

// FieldOptions returns the upstream dropdown options with hardcoded defaults
// substituted for absent or empty fields. When the upstream call fails the
// defaults are served alone, so forms keep rendering.
func (h *ScheduleHandler) FieldOptions(w http.ResponseWriter, r *http.Request) {
	if h.fields == nil {
		writeJSON(w, http.StatusOK, clinicapi.DefaultFieldOptions())
		return
	}
	opts, err := h.fields.FieldOptions(r.Context())
	if err != nil {
		if errors.Is(err, clinicapi.ErrUnauthorized) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"detail":         "Your session has expired. Sign in again to continue.",
				"login_redirect": h.controller.LoginRedirect(r.URL.Path),
			})
			return
		}
		h.logger.Warn("field options fetch failed, serving defaults", "error", err)
		writeJSON(w, http.StatusOK, clinicapi.DefaultFieldOptions())
		return
	}
	writeJSON(w, http.StatusOK, clinicapi.MergeWithDefaults(opts))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
