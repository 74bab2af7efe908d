package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
	"github.com/nexus-research/nexus-orchestrator/pkg/pipeline"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
)

type noopPublisher struct{ events []models.Event }

func (n *noopPublisher) Publish(_ context.Context, event models.Event, _ string) {
	n.events = append(n.events, event)
}

// newTestWorker builds a Worker exercising only the store/monitor-facing
// methods (ensureTask, handleSuccess, handleFailure, transition), which
// need neither a live Redis Work Queue nor Heartbeat — those remain
// untested here for the same reason pkg/queue's Queue itself is (see
// DESIGN.md): no in-memory Redis double exists in this module's
// dependency set.
func newTestWorker(st store.KnowledgeStore, mon *noopPublisher) *Worker {
	return &Worker{id: "worker-1", store: st, mon: mon, log: slog.Default(), status: StatusIdle}
}

func TestEnsureTask_CreatesRowWhenAbsent(t *testing.T) {
	st := store.NewMemory()
	w := &Worker{store: st}
	job := models.JobEnvelope{TaskID: "t1", Title: "Title", Description: "desc", Priority: models.PriorityNormal}

	task, err := w.ensureTask(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, models.TaskStatusCreated, task.Status)

	stored, ok, err := st.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Title", stored.Title)
}

func TestEnsureTask_ReusesExistingRow(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.CreateTaskIfAbsent(context.Background(), models.Task{ID: "t1", Title: "Original"}))
	w := &Worker{store: st}

	task, err := w.ensureTask(context.Background(), models.JobEnvelope{TaskID: "t1", Title: "Ignored", RunCount: 2})
	require.NoError(t, err)
	assert.Equal(t, "Original", task.Title)
	assert.Equal(t, 2, task.RunCount)
}

func TestHandleSuccess_PersistsResultAndEmitsEvent(t *testing.T) {
	st := store.NewMemory()
	mon := &noopPublisher{}
	w := newTestWorker(st, mon)
	require.NoError(t, st.CreateTaskIfAbsent(context.Background(), models.Task{ID: "t1"}))

	w.handleSuccess(context.Background(), models.Task{ID: "t1"}, pipeline.Result{Summary: "s", Reasoning: "r", Results: "res"})

	task, _, err := st.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, task.Summary)
	assert.Equal(t, "s", *task.Summary)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)

	require.Len(t, mon.events, 1)
	assert.Equal(t, models.EventTaskCompleted, mon.events[0].EventType)
}

func TestHandleFailure_CategorizesStageError(t *testing.T) {
	st := store.NewMemory()
	mon := &noopPublisher{}
	w := newTestWorker(st, mon)
	require.NoError(t, st.CreateTaskIfAbsent(context.Background(), models.Task{ID: "t1"}))

	stageErr := &pipeline.StageError{Stage: "planning", Kind: pipeline.KindParseError, Err: errors.New("boom")}
	w.handleFailure(context.Background(), models.Task{ID: "t1"}, stageErr)

	task, _, err := st.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, task.Status)
	assert.Equal(t, "parse_error", task.Metadata["error_category"])

	require.Len(t, mon.events, 1)
	assert.Equal(t, models.EventTaskFailed, mon.events[0].EventType)
}

func TestTransition_UpdatesStoreAndSkipsStatusChannelWithoutRedis(t *testing.T) {
	st := store.NewMemory()
	mon := &noopPublisher{}
	w := newTestWorker(st, mon)
	require.NoError(t, st.CreateTaskIfAbsent(context.Background(), models.Task{ID: "t1"}))

	w.transition(context.Background(), "t1", models.TaskStatusSearching)

	task, _, err := st.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSearching, task.Status)
}
