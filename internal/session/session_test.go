package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/livhair/schedule-engine/internal/realtime"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestLastViewedRoundTrip(t *testing.T) {
	store := NewStore(testRedis(t))
	ctx := context.Background()

	lv := LastViewed{
		PatientID:        7,
		DisplayName:      "Jane Doe",
		WeekLabel:        "Week 2",
		DayLabel:         "Mon",
		ProcedureID:      10,
		ReturnToSchedule: true,
	}
	if err := store.SaveLastViewed(ctx, "sess1", lv); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.LastViewed(ctx, "sess1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || *got != lv {
		t.Fatalf("round trip = %+v, want %+v", got, lv)
	}
}

func TestLastViewedMissingIsNil(t *testing.T) {
	store := NewStore(testRedis(t))
	got, err := store.LastViewed(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Fatalf("missing context should be nil, got %+v", got)
	}
}

func TestLastViewedClear(t *testing.T) {
	store := NewStore(testRedis(t))
	ctx := context.Background()
	if err := store.SaveLastViewed(ctx, "sess1", LastViewed{PatientID: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.ClearLastViewed(ctx, "sess1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err := store.LastViewed(ctx, "sess1")
	if err != nil || got != nil {
		t.Fatalf("after clear = %+v, %v", got, err)
	}
}

func TestLastViewedSessionsAreIsolated(t *testing.T) {
	store := NewStore(testRedis(t))
	ctx := context.Background()
	_ = store.SaveLastViewed(ctx, "a", LastViewed{PatientID: 1})
	_ = store.SaveLastViewed(ctx, "b", LastViewed{PatientID: 2})

	got, err := store.LastViewed(ctx, "a")
	if err != nil || got == nil || got.PatientID != 1 {
		t.Fatalf("session a = %+v, %v", got, err)
	}
}

func TestNilStoreNoOps(t *testing.T) {
	var store *Store
	ctx := context.Background()
	if err := store.SaveLastViewed(ctx, "s", LastViewed{}); err != nil {
		t.Fatalf("nil store save: %v", err)
	}
	if got, err := store.LastViewed(ctx, "s"); err != nil || got != nil {
		t.Fatalf("nil store load = %+v, %v", got, err)
	}
}

func TestRequiresSessionID(t *testing.T) {
	store := NewStore(testRedis(t))
	if err := store.SaveLastViewed(context.Background(), "", LastViewed{}); err == nil {
		t.Fatal("empty session id should error")
	}
}

func TestActivityLogAppendAndRecent(t *testing.T) {
	log := NewActivityLog(testRedis(t))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		event := realtime.ActivityEvent{
			ID:      string(rune('a' + i - 1)),
			Entity:  realtime.EntityProcedure,
			Action:  realtime.ActionUpdated,
			Type:    "procedure.updated",
			Summary: "update",
		}
		if err := log.Append(ctx, event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := log.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("recent = %+v, want newest first", got)
	}
}

func TestActivityLogReplaceAll(t *testing.T) {
	log := NewActivityLog(testRedis(t))
	ctx := context.Background()

	_ = log.Append(ctx, realtime.ActivityEvent{ID: "stale", Entity: "patient", Action: "created"})
	backfill := []realtime.ActivityEvent{
		{ID: "new2", Entity: "procedure", Action: "updated"},
		{ID: "new1", Entity: "procedure", Action: "created"},
	}
	if err := log.ReplaceAll(ctx, backfill); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := log.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new2" || got[1].ID != "new1" {
		t.Fatalf("recent after replace = %+v", got)
	}
}

func TestActivityLogCapacity(t *testing.T) {
	log := NewActivityLog(testRedis(t))
	ctx := context.Background()
	for i := 0; i < ActivityCapacity+10; i++ {
		if err := log.Append(ctx, realtime.ActivityEvent{ID: "e", Entity: "patient", Action: "updated"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := log.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != ActivityCapacity {
		t.Fatalf("ring length = %d, want %d", len(got), ActivityCapacity)
	}
}
