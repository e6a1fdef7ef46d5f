// Package redis provides the Redis-backed pieces of the task subsystem:
// the delayed-dispatch scheduler and the progress event sink.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oroshi/backoffice/internal/task"
)

const (
	// delayedSetKey is the sorted set holding delayed chunks, scored by
	// their due time in unix seconds.
	delayedSetKey = "backoffice:task:delayed"

	// pumpInterval is how often the pump checks for due entries.
	pumpInterval = time.Second
)

// delayedEntry is the ZSET member payload for one delayed chunk.
type delayedEntry struct {
	ID       string         `json:"id"`
	GroupID  string         `json:"group_id"`
	Envelope *task.Envelope `json:"envelope"`
}

// Scheduler implements task.DelayScheduler on a Redis sorted set. A
// companion pump moves due entries onto the real queue; until then a
// delayed chunk is invisible to consumers.
type Scheduler struct {
	client *redis.Client
	queues map[string]task.Dispatcher
	logger *slog.Logger
}

// NewScheduler creates a Scheduler that forwards due chunks to the
// per-worker queues in the given map.
func NewScheduler(client *redis.Client, queues map[string]task.Dispatcher, log *slog.Logger) *Scheduler {
	return &Scheduler{
		client: client,
		queues: queues,
		logger: log.With("component", "delay_scheduler"),
	}
}

// Schedule stores one chunk for dispatch at the given time and returns
// the schedule's handle id.
func (s *Scheduler) Schedule(ctx context.Context, at time.Time, groupID string, env *task.Envelope) (string, error) {
	entry := delayedEntry{
		ID:       uuid.New().String(),
		GroupID:  groupID,
		Envelope: env,
	}
	member, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to encode delayed entry: %w", err)
	}

	err = s.client.ZAdd(ctx, delayedSetKey, redis.Z{
		Score:  float64(at.Unix()),
		Member: member,
	}).Err()
	if err != nil {
		return "", fmt.Errorf("failed to schedule delayed chunk: %w", err)
	}

	return entry.ID, nil
}

// Run pumps due entries onto their worker queues until ctx is cancelled.
// It returns nil on clean shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("delay scheduler started")
	defer s.logger.Info("delay scheduler stopped")

	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.dispatchDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("failed to dispatch due chunks", "error", err)
			}
		}
	}
}

// dispatchDue moves every entry whose score has passed onto its queue.
// Entries are removed before publishing; a publish failure re-schedules
// the entry for immediate retry rather than losing it.
func (s *Scheduler) dispatchDue(ctx context.Context) error {
	now := time.Now()
	members, err := s.client.ZRangeByScore(ctx, delayedSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read delayed set: %w", err)
	}

	for _, member := range members {
		removed, err := s.client.ZRem(ctx, delayedSetKey, member).Result()
		if err != nil {
			return fmt.Errorf("failed to remove delayed entry: %w", err)
		}
		if removed == 0 {
			// Another instance claimed this entry first.
			continue
		}

		var entry delayedEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			s.logger.Error("discarding undecodable delayed entry", "error", err)
			continue
		}

		queue, ok := s.queues[entry.Envelope.Worker]
		if !ok {
			s.logger.Error("no queue for delayed chunk, discarding",
				"worker", entry.Envelope.Worker,
				"correlation_id", entry.Envelope.CorrelationID)
			continue
		}

		if _, err := queue.Publish(ctx, entry.GroupID, entry.Envelope); err != nil {
			s.logger.Error("failed to publish due chunk, re-scheduling",
				"correlation_id", entry.Envelope.CorrelationID,
				"chunk_id", entry.Envelope.ChunkID,
				"error", err)
			if addErr := s.client.ZAdd(ctx, delayedSetKey, redis.Z{
				Score:  float64(now.Unix()),
				Member: member,
			}).Err(); addErr != nil {
				s.logger.Error("failed to re-schedule chunk, message lost", "error", addErr)
			}
			continue
		}

		s.logger.Info("delayed chunk dispatched",
			"correlation_id", entry.Envelope.CorrelationID,
			"chunk_id", entry.Envelope.ChunkID,
			"worker", entry.Envelope.Worker)
	}

	return nil
}
