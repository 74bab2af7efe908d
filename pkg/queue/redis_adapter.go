package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter narrows a *redis.Client down to the redisClient surface
// Heartbeat and Supervisor depend on.
type RedisAdapter struct {
	RDB *redis.Client
}

func (a RedisAdapter) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return a.RDB.Set(ctx, key, value, ttl).Err()
}

func (a RedisAdapter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := a.RDB.Exists(ctx, key).Result()
	return n > 0, err
}

func (a RedisAdapter) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return a.RDB.SAdd(ctx, key, args...).Err()
}

func (a RedisAdapter) SMembers(ctx context.Context, key string) ([]string, error) {
	return a.RDB.SMembers(ctx, key).Result()
}

func (a RedisAdapter) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return a.RDB.LRange(ctx, key, start, stop).Result()
}

var _ redisClient = RedisAdapter{}
