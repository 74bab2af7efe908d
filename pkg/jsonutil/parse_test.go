package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONOrExtract_Strict(t *testing.T) {
	var out map[string]any
	err := ParseJSONOrExtract(`{"a": 1}`, &out)
	require.NoError(t, err)
	assert.Equal(t, float64(1), out["a"])
}

func TestParseJSONOrExtract_MarkdownFence(t *testing.T) {
	var out map[string]any
	err := ParseJSONOrExtract("```json\n{\"a\": 2}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, float64(2), out["a"])
}

func TestParseJSONOrExtract_SubstringRecovery(t *testing.T) {
	var out map[string]any
	err := ParseJSONOrExtract("Sure, here you go: {\"a\": 3} hope that helps!", &out)
	require.NoError(t, err)
	assert.Equal(t, float64(3), out["a"])
}

func TestParseJSONOrExtract_Unrecoverable(t *testing.T) {
	var out map[string]any
	err := ParseJSONOrExtract("not json", &out)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseJSONOrExtract_NestedBraces(t *testing.T) {
	var out map[string]any
	err := ParseJSONOrExtract(`prefix {"a": {"b": "}"}, "c": 1} suffix`, &out)
	require.NoError(t, err)
	assert.Equal(t, float64(1), out["c"])
}
