// Package monitor implements the Monitoring Event Bus (spec.md §4.A):
// best-effort publish of structured events to Redis pub/sub with a size cap
// and retry-with-jitter, never blocking or failing the caller.
//
// Grounded on the retry/truncation shape of original_source's
// src/monitoring/event_bus.py and on the channel-routing and
// fire-and-forget discipline of the teacher's pkg/events/publisher.go
// persistAndNotify/notifyOnly split.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus-orchestrator/pkg/config"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

const (
	maxAttempts     = 4
	baseDelay       = 100 * time.Millisecond
	maxDelay        = 1 * time.Second
	jitterFraction  = 0.10
	attemptDeadline = 200 * time.Millisecond
)

// Publisher is the single operation this bus exposes: Publish.
type Publisher interface {
	Publish(ctx context.Context, event models.Event, projectID string)
}

// Bus is the Redis-backed implementation of Publisher.
type Bus struct {
	rdb    *redis.Client
	cfg    config.MonitorConfig
	logger *slog.Logger
}

// New constructs a Bus bound to rdb with cfg's channel names and size cap.
func New(rdb *redis.Client, cfg config.MonitorConfig, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{rdb: rdb, cfg: cfg, logger: logger}
}

// Publish serializes event, truncates it to the configured size cap if
// needed, and publishes it to the global channel, the project-scoped
// channel (if projectID is given), and the stats channel (for
// stats_snapshot / queue_depth_update events). Every publish is
// independently retried with backoff+jitter and never returns an error:
// callers cannot observe monitoring failures (§4.A Failure semantics).
//
// When monitoring is disabled, Publish is a no-op.
func (b *Bus) Publish(ctx context.Context, event models.Event, projectID string) {
	if !b.cfg.Enabled {
		return
	}

	payload := b.serialize(event)

	b.publishToChannel(ctx, b.cfg.EventsChannel, payload)

	if projectID != "" {
		b.publishToChannel(ctx, b.cfg.ProjectChannelPrefix+projectID, payload)
	}

	if event.EventType == models.EventStatsSnapshot || event.EventType == models.EventQueueDepthUpdate {
		b.publishToChannel(ctx, b.cfg.StatsChannel, payload)
	}
}

// serialize renders event to JSON and applies the truncation sequence of
// §4.A if the result exceeds the configured byte cap: replace meta first,
// then clip message/error to 500 characters.
func (b *Bus) serialize(event models.Event) []byte {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("monitor: event marshal failed", "error", err)
		return []byte(`{}`)
	}
	if len(data) <= b.cfg.MaxEventSizeBytes {
		return data
	}

	original := len(data)
	event.Meta = map[string]any{"truncated": true, "original_size": original}
	data, err = json.Marshal(event)
	if err == nil && len(data) <= b.cfg.MaxEventSizeBytes {
		return data
	}

	event.Message = truncateString(event.Message)
	event.Error = truncateString(event.Error)
	data, err = json.Marshal(event)
	if err != nil {
		b.logger.Warn("monitor: event marshal failed after truncation", "error", err)
		return []byte(`{}`)
	}
	return data
}

func truncateString(s string) string {
	if len(s) <= 500 {
		return s
	}
	return s[:500] + "... [truncated]"
}

// publishToChannel retries up to maxAttempts times with exponential backoff
// plus jitter, each attempt bounded by attemptDeadline. On exhaustion it
// logs and drops the event; it never propagates an error to the caller.
func (b *Bus) publishToChannel(ctx context.Context, channel string, payload []byte) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay
	bo.MaxInterval = maxDelay
	bo.RandomizationFactor = jitterFraction
	bo.Multiplier = 2

	attempts := 0
	operation := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, attemptDeadline)
		defer cancel()
		return b.rdb.Publish(attemptCtx, channel, payload).Err()
	}

	retrier := backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx)
	if err := backoff.Retry(operation, retrier); err != nil {
		b.logger.Warn("monitor: publish exhausted retries, dropping event",
			"channel", channel, "attempts", attempts, "error", err)
	}
}
