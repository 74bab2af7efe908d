package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus-orchestrator/pkg/searchprovider"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
)

func TestAggregator_DedupByURLKeepsLongerSnippet(t *testing.T) {
	a := NewAggregator(store.NewMemory())

	in := AggregateRequest{
		TaskID: "task-1",
		Responses: []SearchResponse{
			{Results: []searchprovider.Result{{URL: "https://x.test/a", Title: "short", Snippet: "short snippet", Provider: "p1"}}},
			{Results: []searchprovider.Result{{URL: "https://x.test/a", Title: "long", Snippet: "a much longer snippet than the first one", Provider: "p2"}}},
		},
	}

	out, err := a.Aggregate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "a much longer snippet than the first one", out.Sources[0].Snippet)
	assert.Equal(t, "p2", out.Sources[0].Provider)
}

func TestAggregator_SnippetLengthTieKeepsEarlierEntry(t *testing.T) {
	// On a length tie the entry already recorded (the earlier response in
	// processing order) is kept as-is (spec.md §4.F "earliest accessed_at
	// wins" tie-break) — the second, equal-length snippet must not replace
	// the first.
	a := NewAggregator(store.NewMemory())

	in := AggregateRequest{
		TaskID: "task-1",
		Responses: []SearchResponse{
			{Results: []searchprovider.Result{{URL: "https://x.test/a", Title: "first", Snippet: "same length", Provider: "p1"}}},
			{Results: []searchprovider.Result{{URL: "https://x.test/a", Title: "second", Snippet: "same length", Provider: "p2"}}},
		},
	}

	out, err := a.Aggregate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "p1", out.Sources[0].Provider)
	assert.Equal(t, "first", out.Sources[0].Title)
}

func TestAggregator_UnionsAndSortsKeyPoints(t *testing.T) {
	a := NewAggregator(store.NewMemory())

	in := AggregateRequest{
		TaskID:    "task-1",
		KeyPoints: []string{"zeta", "alpha", "alpha", "mid"},
	}

	out, err := a.Aggregate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, out.KeyPoints)
}

func TestAggregator_SourcesSortedByURL(t *testing.T) {
	a := NewAggregator(store.NewMemory())

	in := AggregateRequest{
		TaskID: "task-1",
		Responses: []SearchResponse{
			{Results: []searchprovider.Result{
				{URL: "https://x.test/b", Snippet: "b"},
				{URL: "https://x.test/a", Snippet: "a"},
			}},
		},
	}

	out, err := a.Aggregate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out.Sources, 2)
	assert.Equal(t, "https://x.test/a", out.Sources[0].URL)
	assert.Equal(t, "https://x.test/b", out.Sources[1].URL)
}
