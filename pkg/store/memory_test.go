package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

func TestMemory_SourceDedupByURL(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	earlier := time.Now().Add(-time.Hour).UTC()
	later := time.Now().UTC()

	_, err := m.UpsertSource(ctx, models.Source{URL: "https://x.test/a", Title: strings.Repeat("a", 300), AccessedAt: earlier})
	require.NoError(t, err)
	_, err = m.UpsertSource(ctx, models.Source{URL: "https://x.test/a", Title: strings.Repeat("b", 100), AccessedAt: later})
	require.NoError(t, err)

	src, ok, err := m.GetSourceByURL(ctx, "https://x.test/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, later, src.AccessedAt)
	assert.Len(t, src.Title, 254)
}

func TestMemory_OperationReplaySafety(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	opID, err := m.BeginOperation(ctx, "task-1", models.TaskStatusPlanning)
	require.NoError(t, err)
	require.NoError(t, m.CompleteOperation(ctx, opID, models.OperationStatusCompleted, "", nil))

	_, err = m.BeginOperation(ctx, "task-1", models.TaskStatusPlanning)
	assert.ErrorIs(t, err, ErrOperationAlreadyCompleted)
}

func TestMemory_OperationFinality(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	opID, err := m.BeginOperation(ctx, "task-2", models.TaskStatusSearching)
	require.NoError(t, err)
	require.NoError(t, m.CompleteOperation(ctx, opID, models.OperationStatusFailed, "boom", nil))

	err = m.CompleteOperation(ctx, opID, models.OperationStatusCompleted, "", nil)
	assert.ErrorIs(t, err, ErrOperationFinal)

	require.NoError(t, m.IncrementRetryMarker(ctx, opID))
}

func TestMemory_TaskStatusPrefixOfStageOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateTaskIfAbsent(ctx, models.Task{ID: "t1", Title: "x"}))

	observed := []models.TaskStatus{}
	for _, s := range []models.TaskStatus{
		models.TaskStatusPlanning, models.TaskStatusSearching, models.TaskStatusAggregating,
	} {
		require.NoError(t, m.UpdateTaskStatus(ctx, "t1", s))
		observed = append(observed, s)
	}

	lastIdx := -1
	for _, s := range observed {
		idx := models.StageIndex(s)
		require.Greater(t, idx, lastIdx)
		lastIdx = idx
	}
}
