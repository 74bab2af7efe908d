package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus-orchestrator/pkg/config"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// DelayedScheduler implements the continuous-mode re-enqueue design note
// (§9): a Redis sorted set scored by due-unix-time, polled by a small
// goroutine that moves due jobs onto their own priority tier. This is the
// Redis-native shape of a timer wheel, keeping the Work Queue's
// shared-state constraint Redis-only (§5).
type DelayedScheduler struct {
	rdb   *redis.Client
	queue *Queue
	key   string
}

// NewDelayedScheduler constructs a DelayedScheduler.
func NewDelayedScheduler(rdb *redis.Client, q *Queue, cfg config.QueueConfig) *DelayedScheduler {
	return &DelayedScheduler{rdb: rdb, queue: q, key: cfg.DelayedKey}
}

// ScheduleContinuation enqueues a fresh job for the same task id, due after
// the task's configured continuous interval, with its run counter bumped.
func (d *DelayedScheduler) ScheduleContinuation(ctx context.Context, job models.JobEnvelope, runCount int, interval time.Duration) error {
	job.RunCount = runCount
	job.RetryCount = 0
	job.EnqueuedAt = ""
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal delayed job: %w", err)
	}
	due := float64(time.Now().Add(interval).Unix())
	return d.rdb.ZAdd(ctx, d.key, redis.Z{Score: due, Member: data}).Err()
}

// Run polls the delayed set on every tick until ctx is cancelled, moving
// any job whose due time has passed onto its priority tier.
func (d *DelayedScheduler) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = d.PromoteDue(ctx)
		}
	}
}

// PromoteDue moves every due job from the delayed set onto its priority
// tier's queue.
func (d *DelayedScheduler) PromoteDue(ctx context.Context) error {
	now := float64(time.Now().Unix())
	due, err := d.rdb.ZRangeByScore(ctx, d.key, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return fmt.Errorf("queue: scan delayed set: %w", err)
	}

	for _, raw := range due {
		var job models.JobEnvelope
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			_ = d.rdb.ZRem(ctx, d.key, raw).Err()
			continue
		}
		if err := d.queue.Enqueue(ctx, job, job.Priority); err != nil {
			return fmt.Errorf("queue: promote delayed job: %w", err)
		}
		if err := d.rdb.ZRem(ctx, d.key, raw).Err(); err != nil {
			return fmt.Errorf("queue: remove promoted delayed job: %w", err)
		}
	}
	return nil
}
