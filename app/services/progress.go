package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/textwave/textwave/app/importer"
)

// progressSnapshotTTL keeps the latest snapshot around long enough for a
// client to poll after the import finishes.
const progressSnapshotTTL = time.Hour

// RedisProgressSink publishes import progress on a per-job channel and
// keeps the latest event as a snapshot key for polling clients.
type RedisProgressSink struct {
	client *redis.Client
}

// NewRedisProgressSink creates a sink backed by the given client.
func NewRedisProgressSink(client *redis.Client) *RedisProgressSink {
	return &RedisProgressSink{client: client}
}

// Publish sends the event to the job's pub/sub channel and overwrites the
// snapshot key. Failures are returned but the import treats them as
// non-fatal.
func (s *RedisProgressSink) Publish(ctx context.Context, event importer.ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}

	channel := progressChannel(event.JobID.String())
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish progress event: %w", err)
	}
	if err := s.client.Set(ctx, progressKey(event.JobID.String()), payload, progressSnapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to store progress snapshot: %w", err)
	}
	return nil
}

// LatestProgress returns the most recent snapshot for a job, or nil when
// none exists.
func (s *RedisProgressSink) LatestProgress(ctx context.Context, jobUUID string) (*importer.ProgressEvent, error) {
	payload, err := s.client.Get(ctx, progressKey(jobUUID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress snapshot: %w", err)
	}

	var event importer.ProgressEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress snapshot: %w", err)
	}
	return &event, nil
}

func progressChannel(jobUUID string) string {
	return "import:progress:" + jobUUID
}

func progressKey(jobUUID string) string {
	return "import:progress:latest:" + jobUUID
}
