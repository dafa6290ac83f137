package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/livhair/schedule-engine/internal/realtime"
)

const (
	activityKey = "schedule:activity"
	activityTTL = 24 * time.Hour

	// ActivityCapacity matches the backend's backfill history, so a restart
	// of either side reproduces the same feed.
	ActivityCapacity = 50
)

// ActivityLog mirrors the update feed's recent history in Redis, newest
// first. It backs the activity endpoint while the live channel is still
// connecting and across engine restarts.
type ActivityLog struct {
	redis    *redis.Client
	capacity int64
}

// NewActivityLog wraps a Redis client. A nil client yields a nil log whose
// methods no-op.
func NewActivityLog(redisClient *redis.Client) *ActivityLog {
	if redisClient == nil {
		return nil
	}
	return &ActivityLog{redis: redisClient, capacity: ActivityCapacity}
}

// Append records one incremental event at the head of the ring.
func (l *ActivityLog) Append(ctx context.Context, event realtime.ActivityEvent) error {
	if l == nil || l.redis == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("session: marshal activity event: %w", err)
	}
	pipe := l.redis.TxPipeline()
	pipe.LPush(ctx, activityKey, data)
	pipe.LTrim(ctx, activityKey, 0, l.capacity-1)
	pipe.Expire(ctx, activityKey, activityTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: append activity event: %w", err)
	}
	return nil
}

// ReplaceAll swaps the ring for a backfill, which arrives newest first.
func (l *ActivityLog) ReplaceAll(ctx context.Context, events []realtime.ActivityEvent) error {
	if l == nil || l.redis == nil {
		return nil
	}
	encoded := make([]any, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("session: marshal activity event: %w", err)
		}
		encoded = append(encoded, data)
	}
	pipe := l.redis.TxPipeline()
	pipe.Del(ctx, activityKey)
	if len(encoded) > 0 {
		pipe.RPush(ctx, activityKey, encoded...)
		pipe.LTrim(ctx, activityKey, 0, l.capacity-1)
		pipe.Expire(ctx, activityKey, activityTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: replace activity log: %w", err)
	}
	return nil
}

// Recent lists up to limit events, newest first. Items that fail to decode
// are skipped.
func (l *ActivityLog) Recent(ctx context.Context, limit int64) ([]realtime.ActivityEvent, error) {
	if l == nil || l.redis == nil {
		return nil, nil
	}
	if limit <= 0 || limit > l.capacity {
		limit = l.capacity
	}
	raw, err := l.redis.LRange(ctx, activityKey, 0, limit-1).Result()
	if err == redis.Nil {
		return []realtime.ActivityEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: list activity: %w", err)
	}
	out := make([]realtime.ActivityEvent, 0, len(raw))
	for _, item := range raw {
		var event realtime.ActivityEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}
