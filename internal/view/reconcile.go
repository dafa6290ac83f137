package view

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/livhair/schedule-engine/internal/clinicapi"
	"github.com/livhair/schedule-engine/internal/realtime"
)

// Notice kinds.
const (
	NoticeRemoved = "removed"
	NoticeChanged = "changed"
)

// pulseDuration is how long a reconciled row stays highlighted.
const pulseDuration = 1800 * time.Millisecond

// Notice is a non-blocking alert raised when a realtime change touches a
// selected record. The incoming state is already applied; dismissing the
// notice accepts it.
type Notice struct {
	ID          string    `json:"id"`
	PatientID   int64     `json:"patient_id,omitempty"`
	ProcedureID int64     `json:"procedure_id,omitempty"`
	Kind        string    `json:"kind"`
	Summary     string    `json:"summary"`
	Raised      time.Time `json:"raised"`
}

// ApplyEvent folds one realtime event into the cache and rebuilds the
// derived views. Deletions drop the record and auto-drop it from the
// selection; other actions re-fetch just the affected record. A failed
// re-fetch leaves the prior state visible behind a scoped status message and
// never stops later events from being applied.
func (c *Controller) ApplyEvent(ctx context.Context, event realtime.ActivityEvent) error {
	c.metrics.ObserveEvent(event.Entity, event.Action)

	switch event.Entity {
	case realtime.EntityPatient, realtime.EntityProcedure:
	default:
		c.logger.Debug("ignoring event for unhandled entity", "entity", event.Entity, "action", event.Action)
		return nil
	}

	id, ok := event.AffectedID()
	if !ok {
		c.metrics.ObserveDropped("no_id")
		c.logger.Warn("dropping event without a usable id", "entity", event.Entity, "action", event.Action)
		return fmt.Errorf("view: event %s.%s carries no record id", event.Entity, event.Action)
	}

	ctx, span := viewTracer.Start(ctx, "view.apply_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("engine.entity", event.Entity),
		attribute.String("engine.action", event.Action),
		attribute.Int64("engine.record_id", id),
	)

	if event.Action == realtime.ActionDeleted {
		c.applyDeletion(event, id)
		return nil
	}
	return c.applyUpsert(ctx, event, id)
}

// applyDeletion removes the record, prunes the selection and raises a
// "removed elsewhere" notice when the record was selected.
func (c *Controller) applyDeletion(event realtime.ActivityEvent, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasSelected := c.selectedLocked(id)
	switch event.Entity {
	case realtime.EntityPatient:
		c.cache.RemovePatient(id)
	case realtime.EntityProcedure:
		c.cache.RemoveProcedure(id)
	}
	if wasSelected {
		c.dropSelectionLocked(id)
	}
	c.rebuildLocked(true)
	if wasSelected {
		c.raiseNoticeLocked(event, id, NoticeRemoved)
	}
	c.logger.Info("record removed via realtime event",
		"entity", event.Entity, "id", id, "actor", event.DisplayActor())
}

// applyUpsert re-fetches the single affected record and swaps it into the
// cache. A 404 means the record vanished between the event and the fetch and
// is treated as a deletion.
func (c *Controller) applyUpsert(ctx context.Context, event realtime.ActivityEvent, id int64) error {
	switch event.Entity {
	case realtime.EntityPatient:
		patient, err := c.backend.GetPatient(ctx, id)
		if errors.Is(err, clinicapi.ErrNotFound) {
			c.applyDeletion(event, id)
			return nil
		}
		if err != nil {
			return c.failEvent(event, id, err)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.cache.UpsertPatient(patient) {
			c.logger.Debug("skipping upsert of removed patient", "id", id)
			return nil
		}
		c.rebuildLocked(true)
		c.pulseLocked(c.patientRowsLocked(id)...)
		if c.selectedLocked(id) {
			c.raiseNoticeLocked(event, id, NoticeChanged)
		}
	case realtime.EntityProcedure:
		proc, err := c.backend.GetProcedure(ctx, id)
		if errors.Is(err, clinicapi.ErrNotFound) {
			c.applyDeletion(event, id)
			return nil
		}
		if err != nil {
			return c.failEvent(event, id, err)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.cache.UpsertProcedure(proc) {
			c.logger.Debug("skipping upsert of removed procedure", "id", id)
			return nil
		}
		c.rebuildLocked(true)
		c.pulseLocked(id)
		if c.selectedLocked(id) {
			c.raiseNoticeLocked(event, id, NoticeChanged)
		}
	}
	c.metrics.ObserveRefresh("event", "ok")
	return nil
}

func (c *Controller) failEvent(event realtime.ActivityEvent, id int64, err error) error {
	c.metrics.ObserveRefresh("event", "error")
	if errors.Is(err, clinicapi.ErrUnauthorized) {
		c.setUnauthorized()
		return fmt.Errorf("view: refetch %s %d: %w", event.Entity, id, err)
	}
	c.mu.Lock()
	c.statusMessage = fmt.Sprintf("Couldn't apply a live update for %s %d. Data may be stale.", event.Entity, id)
	c.mu.Unlock()
	c.logger.Warn("single-record refetch failed",
		"entity", event.Entity, "id", id, "error", err)
	return fmt.Errorf("view: refetch %s %d: %w", event.Entity, id, err)
}

// ApplySync runs when the feed (re)connects and delivers its backfill. Any
// number of events may have been missed while offline, so the whole record
// set is reloaded.
func (c *Controller) ApplySync(ctx context.Context, events []realtime.ActivityEvent) {
	c.logger.Info("realtime backfill received", "events", len(events))
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after reconnect failed", "error", err)
	}
}

// patientRowsLocked lists the procedure rows a patient change touches.
func (c *Controller) patientRowsLocked(patientID int64) []int64 {
	var ids []int64
	for _, p := range c.cache.Procedures() {
		if p.PatientID == patientID {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (c *Controller) raiseNoticeLocked(event realtime.ActivityEvent, id int64, kind string) {
	summary := event.Summary
	if summary == "" {
		verb := "changed"
		if kind == NoticeRemoved {
			verb = "removed"
		}
		summary = fmt.Sprintf("Selected %s %d was %s by %s.", event.Entity, id, verb, event.DisplayActor())
	}
	notice := Notice{
		ID:      uuid.NewString(),
		Kind:    kind,
		Summary: summary,
		Raised:  c.now(),
	}
	switch event.Entity {
	case realtime.EntityPatient:
		notice.PatientID = id
	case realtime.EntityProcedure:
		notice.ProcedureID = id
	}
	c.notices = append(c.notices, notice)
}

// Notices returns the open conflict notices, oldest first.
func (c *Controller) Notices() []Notice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Notice(nil), c.notices...)
}

// Dismiss closes a notice by id, accepting the applied state.
func (c *Controller) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.notices {
		if n.ID == id {
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			return true
		}
	}
	return false
}

// pulseLocked marks procedure rows for the cosmetic reconciliation
// highlight. Callers hold c.mu.
func (c *Controller) pulseLocked(ids ...int64) {
	deadline := c.now().Add(pulseDuration)
	for _, id := range ids {
		c.pulses[id] = deadline
	}
}

// ActivePulses returns the procedure rows whose highlight is still running,
// pruning expired ones.
func (c *Controller) ActivePulses() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	ids := make([]int64, 0, len(c.pulses))
	for id, deadline := range c.pulses {
		if now.Before(deadline) {
			ids = append(ids, id)
		} else {
			delete(c.pulses, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
