package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

func TestExpectedHours_FollowsDepthChildrenAndQuestionsFormula(t *testing.T) {
	cases := []struct {
		name string
		st   models.Subtask
		want float64
	}{
		{"root leaf, no children, no questions", models.Subtask{Depth: 0}, 1 + 2},
		{"depth one leaf", models.Subtask{Depth: 1}, 1 + 1},
		{"depth one, two children", models.Subtask{Depth: 1, ChildIDs: []string{"a", "b"}}, 1 + 1 + 1},
		{"depth two, three questions", models.Subtask{Depth: 2, KeyQuestions: []string{"q1", "q2", "q3"}}, 1 + 2.0/3 + 0.6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, expectedHours(tc.st), 0.0001)
		})
	}
}

func TestAssignAgent_NonLeafGoesToSummarization(t *testing.T) {
	st := models.Subtask{ChildIDs: []string{"child-1"}}
	assert.Equal(t, models.AgentTypeSummarization, assignAgent(st))
}

func TestAssignAgent_LeafWithURLDataSourceGoesToBrowserSearch(t *testing.T) {
	st := models.Subtask{DataSources: []string{"https://example.com/report"}}
	assert.Equal(t, models.AgentTypeBrowserSearch, assignAgent(st))
}

func TestAssignAgent_LeafWithoutURLDataSourceGoesToQuerySearch(t *testing.T) {
	st := models.Subtask{DataSources: []string{"internal knowledge base note"}}
	assert.Equal(t, models.AgentTypeQuerySearch, assignAgent(st))
}

func TestAssignAgent_LeafWithNoDataSourcesGoesToQuerySearch(t *testing.T) {
	st := models.Subtask{}
	assert.Equal(t, models.AgentTypeQuerySearch, assignAgent(st))
}

func TestPlanner_Plan_ComputesOnePlannedSubtaskPerInput(t *testing.T) {
	p := NewPlanner()
	subtasks := []models.Subtask{
		{ID: "s1", Depth: 0, ChildIDs: []string{"s2"}},
		{ID: "s2", Depth: 1, DataSources: []string{"https://example.com/x"}},
	}

	plan := p.Plan(subtasks)
	assert.Len(t, plan, 2)
	assert.Equal(t, "s1", plan[0].SubtaskID)
	assert.Equal(t, models.AgentTypeSummarization, plan[0].AssignedAgent)
	assert.Equal(t, "s2", plan[1].SubtaskID)
	assert.Equal(t, models.AgentTypeBrowserSearch, plan[1].AssignedAgent)
}
