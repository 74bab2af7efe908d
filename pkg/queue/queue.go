// Package queue implements the Work Queue (spec.md §4.D): a priority FIFO
// with reliable pop, in-flight tracking, and requeue-on-worker-failure,
// backed by Redis lists.
//
// Grounded on the teacher's pkg/queue/pool.go and worker.go shape (worker
// registration, health reporting, goroutine lifecycle) generalized from
// Postgres FOR UPDATE SKIP LOCKED row-claiming to Redis LMOVE-based
// atomic pop-and-track, matching the Redis queue keys literally named in
// spec.md §6 and the single-tier BLPOP/processing-set idiom of
// original_source's src/worker.py extended to three priority tiers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus-orchestrator/pkg/config"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// ErrEmpty is returned by BlockingPop when no job arrived before the
// combined deadline.
var ErrEmpty = errors.New("queue: no job available before deadline")

// pollInterval is how often BlockingPop re-checks all three tiers while
// waiting for the combined deadline; Redis has no single blocking op that
// spans multiple source lists with a distinct destination, so the
// priority-ordered wait is implemented as a short poll loop instead of one
// native blocking call.
const pollInterval = 150 * time.Millisecond

// Queue is the Redis-backed Work Queue.
type Queue struct {
	rdb *redis.Client
	cfg config.QueueConfig
}

// New constructs a Queue bound to rdb using cfg's key names.
func New(rdb *redis.Client, cfg config.QueueConfig) *Queue {
	return &Queue{rdb: rdb, cfg: cfg}
}

var _ requeuer = (*Queue)(nil)

func (q *Queue) tierKey(p models.Priority) string {
	switch p {
	case models.PriorityHigh:
		return q.cfg.HighPriorityKey
	case models.PriorityLow:
		return q.cfg.LowPriorityKey
	default:
		return q.cfg.NormalPriorityKey
	}
}

func (q *Queue) tiersInOrder() []models.Priority {
	return []models.Priority{models.PriorityHigh, models.PriorityNormal, models.PriorityLow}
}

// Enqueue serializes job and pushes it to the tail of its priority tier's
// list (FIFO: BlockingPop pops from the head).
func (q *Queue) Enqueue(ctx context.Context, job models.JobEnvelope, priority models.Priority) error {
	job.Priority = priority
	if job.EnqueuedAt == "" {
		job.EnqueuedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	return q.rdb.RPush(ctx, q.tierKey(priority), data).Err()
}

// BlockingPop inspects high → normal → low, atomically moving the first
// available job to the calling worker's in-flight list, until timeout
// elapses. Returns ErrEmpty on timeout.
func (q *Queue) BlockingPop(ctx context.Context, workerID string, timeout time.Duration) (models.JobEnvelope, error) {
	deadline := time.Now().Add(timeout)
	processingKey := q.processingKey(workerID)

	for {
		for _, tier := range q.tiersInOrder() {
			data, err := q.rdb.LMove(ctx, q.tierKey(tier), processingKey, "LEFT", "RIGHT").Result()
			if err == nil {
				var job models.JobEnvelope
				if jerr := json.Unmarshal([]byte(data), &job); jerr != nil {
					return models.JobEnvelope{}, fmt.Errorf("queue: unmarshal job: %w", jerr)
				}
				return job, nil
			}
			if !errors.Is(err, redis.Nil) {
				return models.JobEnvelope{}, fmt.Errorf("queue: lmove %s: %w", tier, err)
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return models.JobEnvelope{}, ErrEmpty
		}
		wait := pollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return models.JobEnvelope{}, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Complete removes job from workerID's in-flight list once the task has
// reached a terminal status; this is the queue's side of "at-least-once
// delivery, consumers must be idempotent" (§4.D).
func (q *Queue) Complete(ctx context.Context, workerID string, job models.JobEnvelope) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	return q.rdb.LRem(ctx, q.processingKey(workerID), 1, data).Err()
}

// Requeue removes job from workerID's in-flight list, bumps its retry
// count, and either pushes it back to the head of its tier or routes it to
// the dead-letter list if retries are exhausted (§4.D).
func (q *Queue) Requeue(ctx context.Context, workerID string, job models.JobEnvelope) (deadLettered bool, err error) {
	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := q.rdb.LRem(ctx, q.processingKey(workerID), 1, data).Err(); err != nil {
		return false, fmt.Errorf("queue: remove in-flight: %w", err)
	}

	job.RetryCount++
	newData, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("queue: marshal retried job: %w", err)
	}

	if job.RetryCount >= q.cfg.MaxRetries {
		if err := q.rdb.RPush(ctx, q.cfg.DeadLetterKey, newData).Err(); err != nil {
			return false, fmt.Errorf("queue: push dead letter: %w", err)
		}
		return true, nil
	}

	if err := q.rdb.LPush(ctx, q.tierKey(job.Priority), newData).Err(); err != nil {
		return false, fmt.Errorf("queue: requeue to head: %w", err)
	}
	return false, nil
}

func (q *Queue) processingKey(workerID string) string {
	return q.cfg.ProcessingKeyPrefix + workerID
}

// Depths returns the current length of each priority tier, used for
// stats_snapshot and queue_depth_update events (§4.A, §6).
func (q *Queue) Depths(ctx context.Context) (map[string]int, error) {
	depths := make(map[string]int, 3)
	for _, tier := range q.tiersInOrder() {
		n, err := q.rdb.LLen(ctx, q.tierKey(tier)).Result()
		if err != nil {
			return nil, fmt.Errorf("queue: llen %s: %w", tier, err)
		}
		depths[string(tier)] = int(n)
	}
	return depths, nil
}
