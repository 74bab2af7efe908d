package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-research/nexus-orchestrator/pkg/config"
)

// workersSetKey tracks every worker id that has ever sent a heartbeat, so
// the Supervisor knows which processing lists to scan without relying on
// Redis KEYS (a slow O(n) scan over the whole keyspace).
const workersSetKey = "nexus:workers"

// redisClient is the minimal surface Heartbeat and Supervisor need against
// Redis, expressed as an interface so tests can swap in a fake without a
// live server.
type redisClient interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// Heartbeat publishes a TTL'd liveness key for a worker and registers it in
// the known-workers set the Supervisor scans.
type Heartbeat struct {
	rdb redisClient
	cfg config.QueueConfig
}

// NewHeartbeat constructs a Heartbeat over rdb.
func NewHeartbeat(rdb redisClient, cfg config.QueueConfig) *Heartbeat {
	return &Heartbeat{rdb: rdb, cfg: cfg}
}

// Beat refreshes workerID's heartbeat key with the configured TTL and
// status/current-task payload, and ensures workerID is in the known-workers
// set.
func (h *Heartbeat) Beat(ctx context.Context, workerID, status, currentTaskID string) error {
	key := h.cfg.HeartbeatKeyPrefix + workerID
	payload := fmt.Sprintf(`{"status":%q,"task_id":%q}`, status, currentTaskID)
	if err := h.rdb.Set(ctx, key, payload, h.cfg.HeartbeatTTL); err != nil {
		return fmt.Errorf("queue: heartbeat set: %w", err)
	}
	return h.rdb.SAdd(ctx, workersSetKey, workerID)
}

// Alive reports whether workerID's heartbeat key is still present (i.e.
// has not exceeded its TTL).
func (h *Heartbeat) Alive(ctx context.Context, workerID string) (bool, error) {
	return h.rdb.Exists(ctx, h.cfg.HeartbeatKeyPrefix+workerID)
}

// OnlineWorkers counts every known worker whose heartbeat key has not
// expired, used to populate the stats_snapshot/Live Event Endpoint
// connect-time snapshot (§4.A, §4.I).
func (h *Heartbeat) OnlineWorkers(ctx context.Context) (int, error) {
	workers, err := h.rdb.SMembers(ctx, workersSetKey)
	if err != nil {
		return 0, fmt.Errorf("queue: list known workers: %w", err)
	}
	count := 0
	for _, workerID := range workers {
		alive, err := h.Alive(ctx, workerID)
		if err != nil {
			return 0, fmt.Errorf("queue: check liveness of %s: %w", workerID, err)
		}
		if alive {
			count++
		}
	}
	return count, nil
}
