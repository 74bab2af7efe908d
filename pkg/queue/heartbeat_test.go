package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus-orchestrator/pkg/config"
)

func TestHeartbeat_BeatThenAlive(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults().Queue
	rdb := newFakeRedis()
	hb := NewHeartbeat(rdb, cfg)

	require.NoError(t, hb.Beat(ctx, "worker-1", "idle", ""))

	alive, err := hb.Alive(ctx, "worker-1")
	require.NoError(t, err)
	assert.True(t, alive)

	members, err := rdb.SMembers(ctx, workersSetKey)
	require.NoError(t, err)
	assert.Contains(t, members, "worker-1")
}

func TestHeartbeat_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults().Queue
	cfg.HeartbeatTTL = 10 * time.Millisecond
	rdb := newFakeRedis()
	hb := NewHeartbeat(rdb, cfg)

	require.NoError(t, hb.Beat(ctx, "worker-2", "idle", ""))
	time.Sleep(20 * time.Millisecond)

	alive, err := hb.Alive(ctx, "worker-2")
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestHeartbeat_UnknownWorkerNotAlive(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults().Queue
	rdb := newFakeRedis()
	hb := NewHeartbeat(rdb, cfg)

	alive, err := hb.Alive(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, alive)
}
