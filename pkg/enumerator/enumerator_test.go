package enumerator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus-orchestrator/pkg/llmprovider"
)

func TestEnumerate_MalformedJSON_FallsBackToDirect(t *testing.T) {
	stub := llmprovider.NewStub("not json")
	e := New(stub)

	subspaces, err := e.Enumerate(context.Background(), "universities", "in Colombia")
	require.NoError(t, err)
	require.Len(t, subspaces, 1)
	assert.Equal(t, "universities in Colombia", subspaces[0].Query)
	assert.Equal(t, "direct", subspaces[0].Metadata["type"])
}

func TestEnumerate_LLMError_FallsBackWithErrorMetadata(t *testing.T) {
	stub := &llmprovider.Stub{Err: errors.New("provider unavailable")}
	e := New(stub)

	subspaces, err := e.Enumerate(context.Background(), "hospitals", "in Texas")
	require.NoError(t, err)
	require.Len(t, subspaces, 1)
	assert.Equal(t, "direct", subspaces[0].Metadata["type"])
	assert.Contains(t, subspaces[0].Metadata["error"], "provider unavailable")
}

func TestEnumerate_StrictJSON_ParsesSubspaces(t *testing.T) {
	stub := llmprovider.NewStub(`{"decomposition_type":"country_to_departments","subspaces":[
		{"id":"amazonas","query":"universities in Amazonas","metadata":{"type":"department","name":"Amazonas"}},
		{"id":"antioquia","query":"universities in Antioquia","metadata":{"type":"department","name":"Antioquia"}}
	]}`)
	e := New(stub)

	subspaces, err := e.Enumerate(context.Background(), "universities", "in Colombia")
	require.NoError(t, err)
	require.Len(t, subspaces, 2)
	assert.Equal(t, "amazonas", subspaces[0].ID)
	assert.Equal(t, "universities in Antioquia", subspaces[1].Query)
}

func TestEnumerate_MarkdownFencedJSON_Parses(t *testing.T) {
	stub := llmprovider.NewStub("```json\n{\"decomposition_type\":\"direct\",\"subspaces\":[{\"id\":\"x\",\"query\":\"q\",\"metadata\":{}}]}\n```")
	e := New(stub)

	subspaces, err := e.Enumerate(context.Background(), "q", "s")
	require.NoError(t, err)
	require.Len(t, subspaces, 1)
	assert.Equal(t, "x", subspaces[0].ID)
}
