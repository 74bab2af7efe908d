package agents

import (
	"context"
	"time"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
	"github.com/nexus-research/nexus-orchestrator/pkg/searchprovider"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
)

// SearchRequest is the searching-stage request payload for one leaf
// sub-question (§4.F).
type SearchRequest struct {
	OperationID string `json:"operation_id"`
	SubtaskID   string `json:"subtask_id"`
	Query       string `json:"query"`
}

// SearchResponse carries whichever provider succeeded first, plus the
// errors of any that were tried and failed before it (§4.F "per-question
// failures are recorded as evidence; stage never fails wholesale").
type SearchResponse struct {
	Results        []searchprovider.Result `json:"results"`
	ProviderErrors []string                `json:"provider_errors,omitempty"`
}

// SearchAgent tries its configured providers in order until one succeeds,
// recording every attempt as evidence (§4.G "search agents").
type SearchAgent struct {
	agentType models.AgentType
	providers []searchprovider.Provider
	store     store.KnowledgeStore
}

// NewSearchAgent constructs a SearchAgent for agentType (browser_search or
// query_search) backed by providers, tried in order.
func NewSearchAgent(agentType models.AgentType, providers []searchprovider.Provider, st store.KnowledgeStore) *SearchAgent {
	return &SearchAgent{agentType: agentType, providers: providers, store: st}
}

func (s *SearchAgent) AgentType() models.AgentType { return s.agentType }
func (s *SearchAgent) Start(context.Context) error { return nil }
func (s *SearchAgent) Stop()                       {}

func (s *SearchAgent) HandleEnvelope(ctx context.Context, req models.Envelope) (models.Envelope, error) {
	var in SearchRequest
	if err := decodePayload(req.Payload, &in); err != nil {
		return models.Envelope{}, err
	}
	resp := s.Search(ctx, in)
	payload, err := encodePayload(resp)
	if err != nil {
		return models.Envelope{}, err
	}
	return models.Envelope{Payload: payload}, nil
}

// Search tries each provider in order, recording evidence for both
// failures and the eventual success (or exhaustion).
func (s *SearchAgent) Search(ctx context.Context, in SearchRequest) SearchResponse {
	var resp SearchResponse
	for _, p := range s.providers {
		results, err := p.Search(ctx, in.Query, searchprovider.Options{MaxResults: 10})
		if err != nil {
			resp.ProviderErrors = append(resp.ProviderErrors, p.Name()+": "+err.Error())
			s.recordEvidence(ctx, in.OperationID, map[string]any{
				"provider": p.Name(), "query": in.Query, "error": err.Error(),
			}, "", p.Name())
			continue
		}
		resp.Results = results
		s.recordEvidence(ctx, in.OperationID, map[string]any{
			"provider": p.Name(), "query": in.Query, "result_count": len(results),
		}, "", p.Name())
		return resp
	}
	return resp
}

func (s *SearchAgent) recordEvidence(ctx context.Context, operationID string, payload map[string]any, sourceURL, provider string) {
	if operationID == "" {
		return
	}
	_, _ = s.store.AppendEvidence(ctx, models.Evidence{
		OperationID: operationID,
		Kind:        models.EvidenceSearchResult,
		Payload:     payload,
		SourceURL:   sourceURL,
		Provider:    provider,
		RetrievedAt: time.Now().UTC(),
	})
}
