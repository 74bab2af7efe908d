package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus-orchestrator/pkg/llmprovider"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
)

func TestDecomposer_ZeroSubtopicsFallsBackToTaskDescription(t *testing.T) {
	llm := llmprovider.NewStub(`{"title":"some other title","description":"some other description","subtopics":[]}`)
	d := NewDecomposer(llm, store.NewMemory())

	subtasks, err := d.Decompose(context.Background(), "task-1", "the task description", 3, 5)
	require.NoError(t, err)
	require.Len(t, subtasks, 1)
	assert.Equal(t, "the task description", subtasks[0].Title)
	assert.Equal(t, "the task description", subtasks[0].Description)
}

func TestDecomposer_FlatDecompositionWithTitleStillFallsBack(t *testing.T) {
	// A flat response that carries its own title but zero subtopics must
	// still substitute the task description (spec.md §4.F): the root is
	// the task description whenever there are fewer than one child, not
	// only when the LLM also failed to produce a title.
	llm := llmprovider.NewStub(`{"title":"a flat decomposition","description":"llm-authored description","subtopics":[]}`)
	d := NewDecomposer(llm, store.NewMemory())

	subtasks, err := d.Decompose(context.Background(), "task-1", "the real task description", 3, 5)
	require.NoError(t, err)
	require.Len(t, subtasks, 1)
	assert.Equal(t, "the real task description", subtasks[0].Title)
	assert.Equal(t, "the real task description", subtasks[0].Description)
}

func TestDecomposer_NonEmptySubtopicsFlattenedInPreOrder(t *testing.T) {
	llm := llmprovider.NewStub(`{"title":"root","description":"root desc","subtopics":[
		{"title":"child one","description":"d1","key_questions":["q1"]},
		{"title":"child two","description":"d2","key_questions":["q2"]}
	]}`)
	d := NewDecomposer(llm, store.NewMemory())

	subtasks, err := d.Decompose(context.Background(), "task-1", "ignored description", 3, 5)
	require.NoError(t, err)
	require.Len(t, subtasks, 3)

	assert.Equal(t, "root", subtasks[0].Title)
	assert.Nil(t, subtasks[0].ParentID)
	assert.ElementsMatch(t, []string{subtasks[1].ID, subtasks[2].ID}, subtasks[0].ChildIDs)

	assert.Equal(t, "child one", subtasks[1].Title)
	assert.Equal(t, subtasks[0].ID, *subtasks[1].ParentID)
	assert.Equal(t, 1, subtasks[1].Depth)
}

func TestDecomposer_MalformedJSONReturnsDecompositionFailed(t *testing.T) {
	llm := llmprovider.NewStub("not json at all and no braces either")
	d := NewDecomposer(llm, store.NewMemory())

	_, err := d.Decompose(context.Background(), "task-1", "desc", 3, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecompositionFailed)
}
