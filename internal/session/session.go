// Package session persists the small pieces of per-operator context the
// schedule UI restores between visits: the last viewed patient and the
// recent activity feed. Everything here is best-effort; a missing Redis
// leaves the engine fully functional without restore behavior.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lastViewedTTL = 30 * 24 * time.Hour

// LastViewed captures where the operator was before leaving the schedule,
// so the view can scroll back and re-highlight on return.
type LastViewed struct {
	PatientID        int64  `json:"patient_id"`
	DisplayName      string `json:"display_name"`
	WeekLabel        string `json:"week_label,omitempty"`
	DayLabel         string `json:"day_label,omitempty"`
	ProcedureID      int64  `json:"procedure_id,omitempty"`
	ReturnToSchedule bool   `json:"return_to_schedule"`
}

// Store keeps per-session context in Redis.
type Store struct {
	redis *redis.Client
}

// NewStore wraps a Redis client. A nil client yields a nil store whose
// methods no-op, mirroring how optional collaborators behave elsewhere.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		return nil
	}
	return &Store{redis: redisClient}
}

func (s *Store) key(sessionID string) string {
	return fmt.Sprintf("schedule:lastviewed:%s", sessionID)
}

// SaveLastViewed stores the context under the session id.
func (s *Store) SaveLastViewed(ctx context.Context, sessionID string, lv LastViewed) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if sessionID == "" {
		return errors.New("session: session id required")
	}
	data, err := json.Marshal(lv)
	if err != nil {
		return fmt.Errorf("session: marshal last viewed: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(sessionID), data, lastViewedTTL).Err(); err != nil {
		return fmt.Errorf("session: save last viewed: %w", err)
	}
	return nil
}

// LastViewed loads the stored context. A session with nothing stored
// returns (nil, nil).
func (s *Store) LastViewed(ctx context.Context, sessionID string) (*LastViewed, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if sessionID == "" {
		return nil, errors.New("session: session id required")
	}
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load last viewed: %w", err)
	}
	var lv LastViewed
	if err := json.Unmarshal(data, &lv); err != nil {
		return nil, fmt.Errorf("session: unmarshal last viewed: %w", err)
	}
	return &lv, nil
}

// ClearLastViewed removes the stored context.
func (s *Store) ClearLastViewed(ctx context.Context, sessionID string) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if sessionID == "" {
		return errors.New("session: session id required")
	}
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("session: clear last viewed: %w", err)
	}
	return nil
}
