package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus-orchestrator/pkg/config"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

type fakeRequeuer struct {
	calls   []models.JobEnvelope
	dead    map[string]bool
}

func (f *fakeRequeuer) Requeue(_ context.Context, _ string, job models.JobEnvelope) (bool, error) {
	f.calls = append(f.calls, job)
	return f.dead[job.TaskID], nil
}

type fakeEmitter struct {
	events []models.Event
}

func (f *fakeEmitter) Publish(_ context.Context, event models.Event, _ string) {
	f.events = append(f.events, event)
}

func TestSupervisor_ScanOnce_SkipsAliveWorkers(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults().Queue
	rdb := newFakeRedis()
	hb := NewHeartbeat(rdb, cfg)
	rq := &fakeRequeuer{dead: map[string]bool{}}
	em := &fakeEmitter{}

	require.NoError(t, hb.Beat(ctx, "worker-alive", "idle", ""))

	sup := NewSupervisor(rdb, rq, hb, cfg, em, nil)
	require.NoError(t, sup.ScanOnce(ctx))

	assert.Empty(t, rq.calls)
	assert.Empty(t, em.events)
}

func TestSupervisor_ScanOnce_RequeuesStaleWorkerJobs(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults().Queue
	rdb := newFakeRedis()
	hb := NewHeartbeat(rdb, cfg)
	rq := &fakeRequeuer{dead: map[string]bool{}}
	em := &fakeEmitter{}

	require.NoError(t, rdb.SAdd(ctx, workersSetKey, "worker-stale"))
	job := models.JobEnvelope{TaskID: "task-1", RetryCount: 0}
	data, err := json.Marshal(job)
	require.NoError(t, err)
	rdb.push(cfg.ProcessingKeyPrefix+"worker-stale", string(data))

	sup := NewSupervisor(rdb, rq, hb, cfg, em, nil)
	require.NoError(t, sup.ScanOnce(ctx))

	require.Len(t, rq.calls, 1)
	assert.Equal(t, "task-1", rq.calls[0].TaskID)
	require.Len(t, em.events, 1)
	assert.Equal(t, models.EventTaskRetry, em.events[0].EventType)
	assert.Equal(t, 1, em.events[0].RetryCount)
}

func TestSupervisor_ScanOnce_DeadLettersExhaustedJobs(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults().Queue
	rdb := newFakeRedis()
	hb := NewHeartbeat(rdb, cfg)
	rq := &fakeRequeuer{dead: map[string]bool{"task-2": true}}
	em := &fakeEmitter{}

	require.NoError(t, rdb.SAdd(ctx, workersSetKey, "worker-stale"))
	job := models.JobEnvelope{TaskID: "task-2", RetryCount: 5}
	data, err := json.Marshal(job)
	require.NoError(t, err)
	rdb.push(cfg.ProcessingKeyPrefix+"worker-stale", string(data))

	sup := NewSupervisor(rdb, rq, hb, cfg, em, nil)
	require.NoError(t, sup.ScanOnce(ctx))

	require.Len(t, em.events, 1)
	assert.Equal(t, models.EventTaskFailed, em.events[0].EventType)
}

func TestSupervisor_Run_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.Defaults().Queue
	rdb := newFakeRedis()
	hb := NewHeartbeat(rdb, cfg)
	sup := NewSupervisor(rdb, &fakeRequeuer{dead: map[string]bool{}}, hb, cfg, &fakeEmitter{}, nil)

	done := make(chan struct{})
	go func() {
		sup.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
