// Package realtime maintains the engine's receive-only connection to the
// backend's update feed. The socket delivers a full activity backfill on
// every (re)connect followed by incremental events; the channel keeps itself
// alive across drops with capped exponential backoff.
package realtime

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SyncType marks the backfill frame sent once per (re)connect.
const SyncType = "activity.sync"

// Entity names used on the feed.
const (
	EntityPatient   = "patient"
	EntityProcedure = "procedure"
)

// Action names used on the feed.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// FallbackActor is shown when an event arrives without an actor.
const FallbackActor = "Another user"

// FlexID is a record id that arrives as either a JSON number or a string.
type FlexID struct {
	raw   string
	value int64
	valid bool
}

// NewFlexID builds a numeric FlexID, mainly for tests and fixtures.
func NewFlexID(v int64) FlexID {
	return FlexID{raw: strconv.FormatInt(v, 10), value: v, valid: true}
}

func (f *FlexID) UnmarshalJSON(data []byte) error {
	if trimmed := strings.TrimSpace(string(data)); trimmed == "" || trimmed == "null" {
		*f = FlexID{}
		return nil
	}
	var num int64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = FlexID{raw: strconv.FormatInt(num, 10), value: num, valid: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Unknown shape; keep the id absent rather than failing the frame.
		*f = FlexID{}
		return nil
	}
	s = strings.TrimSpace(s)
	num, err := strconv.ParseInt(s, 10, 64)
	*f = FlexID{raw: s, value: num, valid: err == nil}
	return nil
}

func (f FlexID) MarshalJSON() ([]byte, error) {
	if f.valid {
		return json.Marshal(f.value)
	}
	return json.Marshal(f.raw)
}

// Int64 returns the numeric id when one could be parsed.
func (f FlexID) Int64() (int64, bool) { return f.value, f.valid }

func (f FlexID) String() string { return f.raw }

// ActivityEvent is one change broadcast by the backend.
type ActivityEvent struct {
	ID        string         `json:"id"`
	Entity    string         `json:"entity"`
	Action    string         `json:"action"`
	Type      string         `json:"type"`
	EntityID  FlexID         `json:"entityId"`
	Summary   string         `json:"summary"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
	Actor     string         `json:"actor"`
}

// DisplayActor is the actor with the shared fallback applied.
func (e ActivityEvent) DisplayActor() string {
	if strings.TrimSpace(e.Actor) == "" {
		return FallbackActor
	}
	return e.Actor
}

// DataInt64 pulls a numeric field out of the event payload, tolerating the
// number, float and string forms that appear on the feed.
func (e ActivityEvent) DataInt64(key string) (int64, bool) {
	raw, ok := e.Data[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// AffectedID resolves the record id an event refers to. The feed usually
// fills entityId, but some producers only carry the id inside data under an
// entity-specific key, and a few older ones under plain "id".
func (e ActivityEvent) AffectedID() (int64, bool) {
	if id, ok := e.EntityID.Int64(); ok {
		return id, true
	}
	switch e.Entity {
	case EntityPatient:
		if id, ok := e.DataInt64("patient_id"); ok {
			return id, true
		}
	case EntityProcedure:
		if id, ok := e.DataInt64("procedure_id"); ok {
			return id, true
		}
	}
	return e.DataInt64("id")
}

// SyncFrame is the backfill payload, newest event first.
type SyncFrame struct {
	Type  string          `json:"type"`
	Items []ActivityEvent `json:"items"`
}
