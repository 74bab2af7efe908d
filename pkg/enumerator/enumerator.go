// Package enumerator implements the Search-Space Enumerator (spec.md
// §4.H): an LLM-driven geographic/categorical decomposition of a search
// space constraint into exhaustive next-level subspaces, with a
// validated fallback on malformed output or LLM error.
//
// Grounded on original_source's
// src/agents/aggregation/search_space_enumerator.py (prompt shape,
// markdown-fence stripping, direct/error fallback subspace), reusing
// jsonutil.ParseJSONOrExtract per spec.md §9's "isolate this behind one
// utility" design note rather than repeating the fence-stripping inline.
package enumerator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus-orchestrator/pkg/jsonutil"
	"github.com/nexus-research/nexus-orchestrator/pkg/llmprovider"
)

// Subspace is one narrowed query produced by Enumerate for exhaustive
// coverage of a categorical constraint (§3 Glossary).
type Subspace struct {
	ID       string         `json:"id"`
	Query    string         `json:"query"`
	Metadata map[string]any `json:"metadata"`
}

type decompositionResult struct {
	DecompositionType string     `json:"decomposition_type"`
	Subspaces         []Subspace `json:"subspaces"`
}

// Enumerator calls the LLM with a prompt requesting an exhaustive
// next-level hierarchical decomposition and parses the result as strict
// JSON (§4.H).
type Enumerator struct {
	llm llmprovider.Provider
}

// New constructs an Enumerator bound to llm.
func New(llm llmprovider.Provider) *Enumerator {
	return &Enumerator{llm: llm}
}

// Enumerate decomposes searchSpace into an ordered sequence of subspaces
// covering baseQuery. On LLM error or malformed JSON output it returns a
// single synthetic direct-search subspace rather than failing (§4.H
// Fallbacks).
func (e *Enumerator) Enumerate(ctx context.Context, baseQuery, searchSpace string) ([]Subspace, error) {
	raw, err := e.llm.Complete(ctx, prompt(baseQuery, searchSpace))
	if err != nil {
		return []Subspace{directFallbackWithError(baseQuery, searchSpace, err)}, nil
	}

	var result decompositionResult
	if perr := jsonutil.ParseJSONOrExtract(raw, &result); perr != nil || len(result.Subspaces) == 0 {
		return []Subspace{directFallback(baseQuery, searchSpace)}, nil
	}

	for i := range result.Subspaces {
		if result.Subspaces[i].ID == "" {
			result.Subspaces[i].ID = uuid.NewString()
		}
	}
	return result.Subspaces, nil
}

func directFallback(baseQuery, searchSpace string) Subspace {
	return Subspace{
		ID:    "direct_fallback",
		Query: fmt.Sprintf("%s %s", baseQuery, searchSpace),
		Metadata: map[string]any{
			"type":         "direct",
			"search_space": searchSpace,
		},
	}
}

func directFallbackWithError(baseQuery, searchSpace string, err error) Subspace {
	s := directFallback(baseQuery, searchSpace)
	s.ID = "error_fallback"
	s.Metadata["error"] = err.Error()
	return s
}

func prompt(baseQuery, searchSpace string) string {
	return fmt.Sprintf(`You are a geographic search space analyzer. Decompose the search space
constraint into an exhaustive enumeration of the next hierarchical level
(country -> states/provinces/departments, state -> counties, etc).

Entities to search for: %s
Search space constraint: %s

Return only a JSON object of the shape:
{"decomposition_type": "...", "subspaces": [{"id": "...", "query": "...", "metadata": {...}}]}`,
		baseQuery, searchSpace)
}
