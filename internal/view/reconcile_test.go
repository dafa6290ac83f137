package view

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/livhair/schedule-engine/internal/realtime"
	"github.com/livhair/schedule-engine/internal/schedule"
	"github.com/livhair/schedule-engine/internal/store"
	"github.com/livhair/schedule-engine/pkg/logging"
)

func reconcileBackend() *fakeBackend {
	return &fakeBackend{
		patients: map[int64]schedule.Patient{
			1: {ID: 1, FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"},
			2: {ID: 2, FirstName: "John", LastName: "Smith", Email: "john@example.com"},
		},
		procedures: map[int64]schedule.Procedure{
			1: {ID: 1, PatientID: 1, ProcedureDate: "2024-06-03", Status: "confirmed"},
			2: {ID: 2, PatientID: 2, ProcedureDate: "2024-06-12", Status: "reserved"},
		},
	}
}

func TestDeletedProcedureDropsSelectionAndRaisesNotice(t *testing.T) {
	c := newTestController(t, reconcileBackend())
	mustRefresh(t, c)
	c.SetSelection([]int64{1})

	event := realtime.ActivityEvent{
		Entity: realtime.EntityProcedure,
		Action: realtime.ActionDeleted,
		Data:   map[string]any{"procedure_id": float64(1)},
	}
	if err := c.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := c.Selection(); len(got) != 0 {
		t.Fatalf("selection = %v, want auto-dropped", got)
	}

	notices := c.Notices()
	if len(notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(notices))
	}
	n := notices[0]
	if n.Kind != NoticeRemoved || n.ProcedureID != 1 || n.ID == "" {
		t.Fatalf("notice = %+v", n)
	}

	visible, _ := c.VisibleMonth()
	if len(visible.Weeks) != 1 || visible.Weeks[0].Label != "Week 3" {
		t.Fatalf("weeks after deletion = %+v", visible.Weeks)
	}

	if !c.Dismiss(n.ID) {
		t.Fatal("dismiss should find the notice")
	}
	if len(c.Notices()) != 0 {
		t.Fatal("notice should be gone after dismiss")
	}
	if c.Dismiss(n.ID) {
		t.Fatal("second dismiss should report false")
	}
}

func TestUpdatedProcedureRefetchesSingleRecord(t *testing.T) {
	backend := reconcileBackend()
	c := newTestController(t, backend)
	mustRefresh(t, c)
	c.SetSelection([]int64{1})

	backend.procedures[2] = schedule.Procedure{ID: 2, PatientID: 2, ProcedureDate: "2024-06-13", Status: "confirmed"}
	event := realtime.ActivityEvent{
		Entity:   realtime.EntityProcedure,
		Action:   realtime.ActionUpdated,
		EntityID: realtime.NewFlexID(2),
	}
	if err := c.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if backend.procCalls != 1 {
		t.Fatalf("procedure fetches = %d, want 1", backend.procCalls)
	}
	if backend.listCalls != 1 {
		t.Fatalf("list fetches = %d, incremental events must not re-download", backend.listCalls)
	}

	visible, _ := c.VisibleMonth()
	day := visible.Weeks[1].Days[0]
	if day.Label != "Thu" || day.Date != "2024-06-13" {
		t.Fatalf("moved day = %+v", day)
	}

	// The update touched an unselected record, so the selection stays and no
	// notice is raised.
	if got := c.Selection(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("selection = %v", got)
	}
	if len(c.Notices()) != 0 {
		t.Fatalf("notices = %+v, want none", c.Notices())
	}

	pulses := c.ActivePulses()
	if len(pulses) != 1 || pulses[0] != 2 {
		t.Fatalf("pulses = %v, want [2]", pulses)
	}
}

func TestUpdatedSelectedRecordRaisesChangeNotice(t *testing.T) {
	backend := reconcileBackend()
	c := newTestController(t, backend)
	mustRefresh(t, c)
	c.SetSelection([]int64{2})

	event := realtime.ActivityEvent{
		Entity:   realtime.EntityProcedure,
		Action:   realtime.ActionUpdated,
		EntityID: realtime.NewFlexID(2),
		Summary:  "Procedure for John Smith rescheduled",
		Actor:    "dr.kim",
	}
	if err := c.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("apply: %v", err)
	}

	notices := c.Notices()
	if len(notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(notices))
	}
	if notices[0].Kind != NoticeChanged || notices[0].Summary != "Procedure for John Smith rescheduled" {
		t.Fatalf("notice = %+v", notices[0])
	}
	if got := c.Selection(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("selection = %v, want preserved", got)
	}
}

func TestPatientUpdatePulsesTheirRows(t *testing.T) {
	backend := reconcileBackend()
	c := newTestController(t, backend)
	mustRefresh(t, c)

	backend.patients[1] = schedule.Patient{ID: 1, FirstName: "Janey", LastName: "Doe", Email: "jane@example.com"}
	event := realtime.ActivityEvent{
		Entity:   realtime.EntityPatient,
		Action:   realtime.ActionUpdated,
		EntityID: realtime.NewFlexID(1),
	}
	if err := c.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if backend.patientCalls != 1 {
		t.Fatalf("patient fetches = %d, want 1", backend.patientCalls)
	}

	matches := c.Search("janey", 0)
	if len(matches) == 0 || matches[0].Display != "Janey Doe" {
		t.Fatalf("renamed patient not searchable: %+v", matches)
	}

	pulses := c.ActivePulses()
	if len(pulses) != 1 || pulses[0] != 1 {
		t.Fatalf("pulses = %v, want the patient's procedure row", pulses)
	}
}

func TestFailedRefetchKeepsPriorState(t *testing.T) {
	backend := reconcileBackend()
	c := newTestController(t, backend)
	mustRefresh(t, c)

	backend.procErr = errors.New("gateway timeout")
	event := realtime.ActivityEvent{
		Entity:   realtime.EntityProcedure,
		Action:   realtime.ActionUpdated,
		EntityID: realtime.NewFlexID(2),
	}
	if err := c.ApplyEvent(context.Background(), event); err == nil {
		t.Fatal("expected refetch error")
	}
	if c.StatusMessage() == "" {
		t.Fatal("expected a scoped status message")
	}
	visible, _ := c.VisibleMonth()
	if len(visible.Weeks) != 2 {
		t.Fatalf("prior aggregate lost: %+v", visible.Weeks)
	}

	// The next event still goes through.
	backend.procErr = nil
	if err := c.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("follow-up apply: %v", err)
	}
}

func TestRefetch404TreatedAsDeletion(t *testing.T) {
	backend := reconcileBackend()
	c := newTestController(t, backend)
	mustRefresh(t, c)

	delete(backend.procedures, 2)
	event := realtime.ActivityEvent{
		Entity:   realtime.EntityProcedure,
		Action:   realtime.ActionUpdated,
		EntityID: realtime.NewFlexID(2),
	}
	if err := c.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("apply: %v", err)
	}
	visible, _ := c.VisibleMonth()
	if len(visible.Weeks) != 1 || visible.Weeks[0].Label != "Week 2" {
		t.Fatalf("weeks = %+v, record should be gone", visible.Weeks)
	}
}

func TestTombstoneBlocksLateRevival(t *testing.T) {
	backend := reconcileBackend()
	c := newTestController(t, backend)
	mustRefresh(t, c)

	deleteEvent := realtime.ActivityEvent{
		Entity:   realtime.EntityProcedure,
		Action:   realtime.ActionDeleted,
		EntityID: realtime.NewFlexID(1),
	}
	if err := c.ApplyEvent(context.Background(), deleteEvent); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// The backend still returns the record, standing in for a stale response
	// arriving after the deletion was applied.
	updateEvent := realtime.ActivityEvent{
		Entity:   realtime.EntityProcedure,
		Action:   realtime.ActionUpdated,
		EntityID: realtime.NewFlexID(1),
	}
	if err := c.ApplyEvent(context.Background(), updateEvent); err != nil {
		t.Fatalf("update: %v", err)
	}

	visible, _ := c.VisibleMonth()
	if len(visible.Weeks) != 1 || visible.Weeks[0].Label != "Week 3" {
		t.Fatalf("weeks = %+v, tombstoned record revived", visible.Weeks)
	}
}

func TestIgnoresUnhandledEntities(t *testing.T) {
	backend := reconcileBackend()
	c := newTestController(t, backend)
	mustRefresh(t, c)

	event := realtime.ActivityEvent{
		Entity:   "payment",
		Action:   realtime.ActionUpdated,
		EntityID: realtime.NewFlexID(9),
	}
	if err := c.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if backend.patientCalls != 0 || backend.procCalls != 0 {
		t.Fatal("unhandled entity should not hit the backend")
	}
}

func TestEventWithoutIDIsDropped(t *testing.T) {
	c := newTestController(t, reconcileBackend())
	mustRefresh(t, c)

	event := realtime.ActivityEvent{
		Entity: realtime.EntityProcedure,
		Action: realtime.ActionUpdated,
		Data:   map[string]any{"summary": "no id here"},
	}
	if err := c.ApplyEvent(context.Background(), event); err == nil {
		t.Fatal("expected error for event without id")
	}
}

func TestApplySyncReloadsRecords(t *testing.T) {
	backend := reconcileBackend()
	c := newTestController(t, backend)
	mustRefresh(t, c)

	c.ApplySync(context.Background(), []realtime.ActivityEvent{{ID: "a"}, {ID: "b"}})
	if backend.listCalls != 2 {
		t.Fatalf("list calls = %d, sync should trigger a reload", backend.listCalls)
	}
}

func TestPulsesExpire(t *testing.T) {
	backend := reconcileBackend()
	current := time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC)
	c := NewController(backend, store.New(),
		WithLogger(logging.New("error")),
		WithNow(func() time.Time { return current }))
	mustRefresh(t, c)

	event := realtime.ActivityEvent{
		Entity:   realtime.EntityProcedure,
		Action:   realtime.ActionUpdated,
		EntityID: realtime.NewFlexID(2),
	}
	if err := c.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if pulses := c.ActivePulses(); len(pulses) != 1 {
		t.Fatalf("pulses = %v", pulses)
	}

	current = current.Add(pulseDuration / 2)
	if pulses := c.ActivePulses(); len(pulses) != 1 {
		t.Fatalf("pulse expired early: %v", pulses)
	}

	current = current.Add(pulseDuration)
	if pulses := c.ActivePulses(); len(pulses) != 0 {
		t.Fatalf("pulses = %v, want expired", pulses)
	}
}
