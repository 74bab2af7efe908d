package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nexus-research/nexus-orchestrator/pkg/config"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// reclaimRetries bounds how many times reclaimWorker retries a single
// Redis call before giving up on that worker for this scan pass; the
// Supervisor ticks again on the next heartbeat interval regardless.
const reclaimRetries = 2

// EventEmitter is the subset of the Monitoring Event Bus the Supervisor
// needs to announce task_retry / task_failed (§4.D).
type EventEmitter interface {
	Publish(ctx context.Context, event models.Event, projectID string)
}

// requeuer is the subset of Queue the Supervisor needs, expressed as an
// interface so tests can exercise reclaim logic without live Redis.
type requeuer interface {
	Requeue(ctx context.Context, workerID string, job models.JobEnvelope) (deadLettered bool, err error)
}

// Supervisor scans every known worker whose heartbeat key has expired (no
// Beat within HeartbeatTTL) and moves the entries on that worker's
// in-flight list back to the head of their priority tier (§4.D).
// Staleness is decided by the key's TTL alone: the 2x HeartbeatInterval
// value ScanOnce computes is passed to reclaimWorker but not applied.
type Supervisor struct {
	rdb   redisClient
	queue requeuer
	hb    *Heartbeat
	cfg   config.QueueConfig
	mon   EventEmitter
	log   *slog.Logger
}

// NewSupervisor constructs a Supervisor.
func NewSupervisor(rdb redisClient, q requeuer, hb *Heartbeat, cfg config.QueueConfig, mon EventEmitter, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{rdb: rdb, queue: q, hb: hb, cfg: cfg, mon: mon, log: log}
}

// Run scans on every tick until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ScanOnce(ctx); err != nil {
				s.log.Warn("queue: supervisor scan failed", "error", err)
			}
		}
	}
}

// ScanOnce performs a single scan pass over every known worker.
func (s *Supervisor) ScanOnce(ctx context.Context) error {
	workers, err := s.rdb.SMembers(ctx, workersSetKey)
	if err != nil {
		return err
	}

	staleAfter := 2 * s.cfg.HeartbeatInterval

	for _, workerID := range workers {
		alive, err := s.hb.Alive(ctx, workerID)
		if err != nil {
			s.log.Warn("queue: check worker liveness failed", "worker_id", workerID, "error", err)
			continue
		}
		if alive {
			continue
		}
		s.reclaimWorker(ctx, workerID, staleAfter)
	}
	return nil
}

func (s *Supervisor) reclaimWorker(ctx context.Context, workerID string, _ time.Duration) {
	processingKey := s.cfg.ProcessingKeyPrefix + workerID

	var entries []string
	err := backoff.Retry(func() error {
		var err error
		entries, err = s.rdb.LRange(ctx, processingKey, 0, -1)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), reclaimRetries), ctx))
	if err != nil {
		s.log.Warn("queue: list in-flight entries failed", "worker_id", workerID, "error", err)
		return
	}

	for _, raw := range entries {
		var job models.JobEnvelope
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			s.log.Warn("queue: malformed in-flight job, dropping", "worker_id", workerID, "error", err)
			continue
		}

		var deadLettered bool
		err := backoff.Retry(func() error {
			var err error
			deadLettered, err = s.queue.Requeue(ctx, workerID, job)
			return err
		}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), reclaimRetries), ctx))
		if err != nil {
			s.log.Warn("queue: requeue failed", "worker_id", workerID, "task_id", job.TaskID, "error", err)
			continue
		}

		if deadLettered {
			s.mon.Publish(ctx, models.Event{
				EventType: models.EventTaskFailed,
				TaskID:    job.TaskID,
				WorkerID:  workerID,
				Message:   "dead_letter: retry count exhausted",
			}, "")
			continue
		}

		s.mon.Publish(ctx, models.Event{
			EventType:  models.EventTaskRetry,
			TaskID:     job.TaskID,
			WorkerID:   workerID,
			RetryCount: job.RetryCount + 1,
		}, "")
	}
}
