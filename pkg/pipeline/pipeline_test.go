package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus-orchestrator/pkg/agents"
	"github.com/nexus-research/nexus-orchestrator/pkg/bus"
	"github.com/nexus-research/nexus-orchestrator/pkg/llmprovider"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
	"github.com/nexus-research/nexus-orchestrator/pkg/monitor"
	"github.com/nexus-research/nexus-orchestrator/pkg/searchprovider"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
)

// noopPublisher discards every event, standing in for monitor.Bus in tests
// that don't assert on the monitoring stream.
type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, models.Event, string) {}

var _ monitor.Publisher = noopPublisher{}

// stubSearchProvider returns one canned result per query, used by the
// searching-stage agents registered in newHarness.
type stubSearchProvider struct{ name string }

func (s stubSearchProvider) Name() string { return s.name }
func (s stubSearchProvider) Search(_ context.Context, query string, _ searchprovider.Options) ([]searchprovider.Result, error) {
	return []searchprovider.Result{{URL: "https://example.com/" + query, Title: query, Snippet: "snippet for " + query, Provider: s.name}}, nil
}

const decomposeJSON = `{"title":"root","description":"root task","subtopics":[
	{"title":"leaf one","description":"question one","key_questions":["q1"]},
	{"title":"leaf two","description":"question two","key_questions":["q2"]}
]}`

// newHarness wires an in-process Registry with every agent the pipeline
// depends on, backed by a MemoryBus and a Memory store, mirroring how
// pkg/queue's supervisor tests assemble an in-memory fixture rather than a
// live Redis instance.
func newHarness(t *testing.T, decomposerResponses ...string) (*Pipeline, *agents.Registry, *store.Memory) {
	t.Helper()
	b := bus.NewMemory()
	st := store.NewMemory()

	reg := agents.NewRegistry(b, nil)
	reg.Register(agents.NewDecomposer(llmprovider.NewStub(decomposerResponses...), st))
	reg.Register(agents.NewPlanner())
	reg.Register(agents.NewSearchAgent(models.AgentTypeQuerySearch, []searchprovider.Provider{stubSearchProvider{name: "query"}}, st))
	reg.Register(agents.NewSearchAgent(models.AgentTypeBrowserSearch, []searchprovider.Provider{stubSearchProvider{name: "browser"}}, st))
	reg.Register(agents.NewAggregator(st))
	reg.Register(agents.NewSummarizer(llmprovider.NewStub(`{"executive_summary":"summary text","key_findings":["f1"],"sources":[]}`)))
	reg.Register(agents.NewReasoner(llmprovider.NewStub(`{"synthesis":"synthesis text","insights":["i1"]}`)))
	reg.Register(agents.NewArtifactGenerator(st, t.TempDir()))

	require.NoError(t, reg.StartAll(context.Background()))
	t.Cleanup(reg.StopAll)

	p := New(b, st, noopPublisher{}, nil)
	return p, reg, st
}

func newTask(id string) models.Task {
	return models.Task{ID: id, Title: "Test Task", Description: "research something", Status: models.TaskStatusCreated}
}

func TestRun_HappyPath_CompletesAllStages(t *testing.T) {
	p, _, st := newHarness(t, decomposeJSON)
	task := newTask("task-1")
	require.NoError(t, st.CreateTaskIfAbsent(context.Background(), task))

	result, err := p.Run(context.Background(), task)
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "summary text")
	assert.Contains(t, result.Reasoning, "synthesis text")
	assert.Contains(t, result.Results, "artifact_count")

	artifacts, err := st.ListArtifactsForTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, artifacts)
}

func TestRun_DecompositionFails_ReturnsParseErrorStage(t *testing.T) {
	p, _, st := newHarness(t, "not json", "still not json")
	task := newTask("task-2")
	require.NoError(t, st.CreateTaskIfAbsent(context.Background(), task))

	_, err := p.Run(context.Background(), task)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, string(models.TaskStatusPlanning), stageErr.Stage)
	assert.Equal(t, KindParseError, stageErr.Kind)
}

func TestRun_RepeatedStage_SkipsOnReplay(t *testing.T) {
	p, _, st := newHarness(t, decomposeJSON)
	task := newTask("task-3")
	require.NoError(t, st.CreateTaskIfAbsent(context.Background(), task))

	_, err := p.Run(context.Background(), task)
	require.NoError(t, err)
	firstArtifacts, err := st.ListArtifactsForTask(context.Background(), task.ID)
	require.NoError(t, err)

	// A second Run against the same task id replays every stage; each
	// beginStage call observes a completed operation and skips rather than
	// re-invoking the agent (§4.F replay safety), so no new artifacts are
	// persisted.
	_, err = p.Run(context.Background(), task)
	require.NoError(t, err)
	secondArtifacts, err := st.ListArtifactsForTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Len(t, secondArtifacts, len(firstArtifacts))
}

func TestAnnotateLeaves_OnlyLeafSubtasksDispatched(t *testing.T) {
	subtasks := []models.Subtask{
		{ID: "root", Title: "root", ChildIDs: []string{"child"}},
		{ID: "child", Title: "child", Description: "child question"},
	}
	plan := []agents.PlannedSubtask{
		{SubtaskID: "child", AssignedAgent: models.AgentTypeBrowserSearch},
	}

	leaves := annotateLeaves(subtasks, plan)
	require.Len(t, leaves, 1)
	assert.Equal(t, "child", leaves[0].subtaskID)
	assert.Equal(t, "child question", leaves[0].query)
	assert.Equal(t, models.AgentTypeBrowserSearch, leaves[0].agent)
}

func TestAnnotateLeaves_DefaultsToQuerySearchWhenUnassigned(t *testing.T) {
	subtasks := []models.Subtask{{ID: "only", Title: "only", Description: "d"}}
	leaves := annotateLeaves(subtasks, nil)
	require.Len(t, leaves, 1)
	assert.Equal(t, models.AgentTypeQuerySearch, leaves[0].agent)
}
