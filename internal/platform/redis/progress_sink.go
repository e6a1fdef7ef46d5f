package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/oroshi/backoffice/internal/events"
)

// progressChannel is the pub/sub channel back-office frontends subscribe
// to for live batch progress.
const progressChannel = "backoffice:task:progress"

// ProgressSink implements events.Sink by publishing progress events to a
// Redis pub/sub channel. Delivery is fire-and-forget: a subscriber that
// misses an event reads the current state from the ledger API instead.
type ProgressSink struct {
	client *redis.Client
	logger *slog.Logger
}

// NewProgressSink creates a ProgressSink on the given client.
func NewProgressSink(client *redis.Client, log *slog.Logger) *ProgressSink {
	return &ProgressSink{
		client: client,
		logger: log.With("component", "progress_sink"),
	}
}

// Publish sends one event to the progress channel.
func (s *ProgressSink) Publish(ctx context.Context, event *events.ProgressEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode progress event: %w", err)
	}

	if err := s.client.Publish(ctx, progressChannel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish progress event: %w", err)
	}

	s.logger.Debug("progress event published", "event_id", event.ID)
	return nil
}
