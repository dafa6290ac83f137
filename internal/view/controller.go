// Package view owns the derived schedule state served to clients: the
// monthly aggregate, the search candidate pool, duplicate flags, the admin
// selection and the scoped status line. A Controller rebuilds all of it from
// the record cache after every mutation, so readers never observe a torn
// intermediate state.
package view

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/livhair/schedule-engine/internal/clinicapi"
	"github.com/livhair/schedule-engine/internal/dedupe"
	"github.com/livhair/schedule-engine/internal/observability/metrics"
	"github.com/livhair/schedule-engine/internal/schedule"
	"github.com/livhair/schedule-engine/internal/search"
	"github.com/livhair/schedule-engine/internal/store"
	"github.com/livhair/schedule-engine/pkg/logging"
)

// Backend is the slice of the clinic API the controller needs.
type Backend interface {
	ListPatients(ctx context.Context) ([]schedule.Patient, error)
	ListProcedures(ctx context.Context) ([]schedule.Procedure, error)
	GetPatient(ctx context.Context, id int64) (schedule.Patient, error)
	GetProcedure(ctx context.Context, id int64) (schedule.Procedure, error)
	MergePatients(ctx context.Context, req clinicapi.MergeRequest) (clinicapi.MergeResult, error)
}

const defaultLoginPath = "/login"

var viewTracer = otel.Tracer("engine.internal.view")

// Controller orchestrates refreshes, realtime reconciliation, search and the
// merge workflow on top of the record cache.
type Controller struct {
	backend Backend
	cache   *store.Store
	logger  *logging.Logger
	metrics *metrics.EngineMetrics

	loginPath string
	now       func() time.Time

	mu              sync.RWMutex
	months          []schedule.MonthGroup
	candidates      []search.Candidate
	duplicateIDs    map[int64]bool
	duplicateGroups []dedupe.Group
	query           string
	month           string
	selection       []int64
	notices         []Notice
	pulses          map[int64]time.Time
	statusMessage   string
	unauthorized    bool
}

// Option configures optional collaborators on a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics wires engine metrics. Without it the controller records nothing.
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLoginPath overrides the path unauthorized redirects point at.
func WithLoginPath(path string) Option {
	return func(c *Controller) {
		if path != "" {
			c.loginPath = path
		}
	}
}

// WithNow injects the clock, used by highlight pulse tests.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController builds a controller over backend and cache. The derived views
// start empty until the first Refresh or Rebuild.
func NewController(backend Backend, cache *store.Store, opts ...Option) *Controller {
	c := &Controller{
		backend:   backend,
		cache:     cache,
		logger:    logging.Default(),
		loginPath: defaultLoginPath,
		now:       time.Now,
		pulses:    make(map[int64]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh re-downloads the full record set, swaps the cache and rebuilds
// every derived view. On failure the previous state stays visible behind a
// scoped status message; the view is never blanked.
func (c *Controller) Refresh(ctx context.Context) error {
	ctx, span := viewTracer.Start(ctx, "view.refresh")
	defer span.End()

	patients, err := c.backend.ListPatients(ctx)
	if err != nil {
		return c.failRefresh("patients", err)
	}
	procedures, err := c.backend.ListProcedures(ctx)
	if err != nil {
		return c.failRefresh("procedures", err)
	}
	span.SetAttributes(
		attribute.Int("engine.patients", len(patients)),
		attribute.Int("engine.procedures", len(procedures)),
	)

	c.cache.ReplaceAll(patients, procedures)
	c.mu.Lock()
	c.rebuildLocked(false)
	c.statusMessage = ""
	c.unauthorized = false
	c.mu.Unlock()

	c.metrics.ObserveRefresh("full", "ok")
	c.logger.Info("schedule refreshed", "patients", len(patients), "procedures", len(procedures))
	return nil
}

func (c *Controller) failRefresh(stage string, err error) error {
	c.metrics.ObserveRefresh("full", "error")
	if errors.Is(err, clinicapi.ErrUnauthorized) {
		c.setUnauthorized()
		return fmt.Errorf("view: refresh %s: %w", stage, err)
	}
	c.mu.Lock()
	c.statusMessage = "Couldn't refresh the schedule. Showing the last loaded data."
	c.mu.Unlock()
	c.logger.Warn("schedule refresh failed", "stage", stage, "error", err)
	return fmt.Errorf("view: refresh %s: %w", stage, err)
}

// Rebuild recomputes the derived views from the current cache contents and
// clears the admin selection.
func (c *Controller) Rebuild() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuildLocked(false)
}

// RebuildPreservingSelection keeps the selection across the rebuild, for
// scoped updates that do not affect selection ordering.
func (c *Controller) RebuildPreservingSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuildLocked(true)
}

// rebuildLocked recomputes months, search candidates and duplicate flags.
// The active search query always survives; the selection survives only when
// preserveSelection is set. Callers hold c.mu.
func (c *Controller) rebuildLocked(preserveSelection bool) {
	start := time.Now()

	patients := c.cache.PatientsByID()
	entries := schedule.NormalizeEntries(c.cache.Procedures(), patients)
	c.months = schedule.BuildMonthlySchedules(entries)
	c.candidates = buildCandidates(entries, c.cache.UnscheduledPatients())

	all := c.cache.Patients()
	c.duplicateIDs = dedupe.CollectDuplicateIDs(all)
	c.duplicateGroups = dedupe.Groups(all)

	if !preserveSelection {
		c.selection = nil
	}
	c.metrics.ObserveRebuild(time.Since(start).Seconds())
}

func buildCandidates(entries []schedule.Entry, unscheduled []schedule.Patient) []search.Candidate {
	out := make([]search.Candidate, 0, len(entries)+len(unscheduled))
	for _, e := range entries {
		detail := "Not scheduled"
		if e.Dated() {
			detail = e.ProcedureDate
		}
		out = append(out, search.Candidate{
			PatientID:   e.PatientID,
			ProcedureID: e.ProcedureID,
			Display:     e.DisplayName(),
			Detail:      detail,
			Scheduled:   true,
			Full:        e.SearchName,
			First:       e.SearchFirst,
			Last:        e.SearchLast,
		})
	}
	for _, p := range unscheduled {
		first := search.NormalizeText(p.FirstName)
		last := search.NormalizeText(p.LastName)
		out = append(out, search.Candidate{
			PatientID: p.ID,
			Display:   p.DisplayName(),
			Detail:    "Not scheduled",
			First:     first,
			Last:      last,
			Full:      strings.TrimSpace(first + " " + last),
		})
	}
	return out
}

// Months returns the aggregated calendar, "Date not set" last.
func (c *Controller) Months() []schedule.MonthGroup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]schedule.MonthGroup(nil), c.months...)
}

// SetMonth selects the visible month by "YYYY-MM" key. An empty key returns
// to the default (first group).
func (c *Controller) SetMonth(key string) error {
	if key != "" {
		if _, _, ok := schedule.ParseMonthKey(key); !ok {
			return fmt.Errorf("view: bad month key %q", key)
		}
	}
	c.mu.Lock()
	c.month = key
	c.mu.Unlock()
	return nil
}

// VisibleMonth resolves the selected month, falling back to the first group
// when nothing is selected or the selected month is no longer present.
func (c *Controller) VisibleMonth() (schedule.MonthGroup, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.month != "" {
		for _, m := range c.months {
			if m.Key() == c.month {
				return m, true
			}
		}
	}
	if len(c.months) > 0 {
		return c.months[0], true
	}
	return schedule.MonthGroup{}, false
}

// SetQuery records the active search filter. It survives rebuilds.
func (c *Controller) SetQuery(q string) {
	c.mu.Lock()
	c.query = q
	c.mu.Unlock()
}

// Query returns the active search filter.
func (c *Controller) Query() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.query
}

// Search ranks the current candidate pool for query. A limit of 0 applies
// the default display cap.
func (c *Controller) Search(query string, limit int) []search.Match {
	c.mu.RLock()
	pool := c.candidates
	c.mu.RUnlock()
	return search.Rank(pool, query, limit)
}

// DuplicateIDs reports every patient id flagged by duplicate detection.
func (c *Controller) DuplicateIDs() map[int64]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]bool, len(c.duplicateIDs))
	for id := range c.duplicateIDs {
		out[id] = true
	}
	return out
}

// DuplicateGroups returns the per-key collision groups.
func (c *Controller) DuplicateGroups() []dedupe.Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]dedupe.Group(nil), c.duplicateGroups...)
}

// Selection returns the ordered selected ids. The first id is the merge
// target.
func (c *Controller) Selection() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]int64(nil), c.selection...)
}

// SetSelection replaces the selection, dropping duplicate ids but keeping
// the caller's order. Ids are not validated against the cache so a selection
// can be seeded before the first refresh completes.
func (c *Controller) SetSelection(ids []int64) {
	seen := make(map[int64]struct{}, len(ids))
	ordered := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	c.mu.Lock()
	c.selection = ordered
	c.mu.Unlock()
}

// ClearSelection empties the selection.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	c.selection = nil
	c.mu.Unlock()
}

func (c *Controller) selectedLocked(id int64) bool {
	for _, s := range c.selection {
		if s == id {
			return true
		}
	}
	return false
}

func (c *Controller) dropSelectionLocked(id int64) {
	kept := c.selection[:0]
	for _, s := range c.selection {
		if s != id {
			kept = append(kept, s)
		}
	}
	c.selection = kept
}

// MergeSelected folds the selected records into the first selected id via
// the backend merge endpoint, then refreshes. Server-side validation
// messages are surfaced verbatim on the status line.
func (c *Controller) MergeSelected(ctx context.Context, updates map[string]any) (clinicapi.MergeResult, error) {
	c.mu.RLock()
	selection := append([]int64(nil), c.selection...)
	c.mu.RUnlock()
	if len(selection) == 0 {
		return clinicapi.MergeResult{}, errors.New("view: no records selected")
	}

	ctx, span := viewTracer.Start(ctx, "view.merge")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("engine.target_id", selection[0]),
		attribute.Int("engine.source_count", len(selection)-1),
	)

	req := clinicapi.MergeRequest{
		TargetID:  selection[0],
		SourceIDs: selection[1:],
		Updates:   updates,
	}
	result, err := c.backend.MergePatients(ctx, req)
	if err != nil {
		if errors.Is(err, clinicapi.ErrUnauthorized) {
			c.setUnauthorized()
			return clinicapi.MergeResult{}, fmt.Errorf("view: merge: %w", err)
		}
		msg := clinicapi.Detail(err)
		if msg == "" {
			msg = "Merge failed. Please try again."
		}
		c.mu.Lock()
		c.statusMessage = msg
		c.mu.Unlock()
		c.logger.Warn("merge failed", "target", req.TargetID, "sources", len(req.SourceIDs), "error", err)
		return clinicapi.MergeResult{}, fmt.Errorf("view: merge: %w", err)
	}

	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after merge failed", "error", err)
	}
	c.mu.Lock()
	c.selection = nil
	c.statusMessage = fmt.Sprintf("Merged %d record(s) into %s.", len(result.ArchivedPatientIDs), result.Patient.DisplayName())
	c.mu.Unlock()
	return result, nil
}

// StatusMessage returns the scoped status line, empty when all is well.
func (c *Controller) StatusMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusMessage
}

// Unauthorized reports whether a backend call came back 401. Once set it
// sticks until a refresh succeeds.
func (c *Controller) Unauthorized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unauthorized
}

func (c *Controller) setUnauthorized() {
	c.mu.Lock()
	c.unauthorized = true
	c.mu.Unlock()
}

// LoginRedirect builds the login path clients should be sent to after a 401,
// carrying the interrupted location in ?next=.
func (c *Controller) LoginRedirect(next string) string {
	if next == "" {
		return c.loginPath
	}
	return c.loginPath + "?next=" + url.QueryEscape(next)
}
