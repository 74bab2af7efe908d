package agents

import (
	"context"
	"sort"
	"time"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
	"github.com/nexus-research/nexus-orchestrator/pkg/searchprovider"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
)

// AggregateRequest carries every per-question search response collected
// for one task's searching stage (§4.F).
type AggregateRequest struct {
	TaskID    string                    `json:"task_id"`
	Responses []SearchResponse          `json:"responses"`
	KeyPoints []string                  `json:"key_points,omitempty"`
}

// AggregateResponse is the deduplicated, unioned bundle handed to the
// summarizing stage.
type AggregateResponse struct {
	Sources   []searchprovider.Result `json:"sources"`
	KeyPoints []string                `json:"key_points"`
}

// Aggregator deduplicates sources by URL and unions key points across all
// per-question responses (§4.G).
type Aggregator struct {
	store store.KnowledgeStore
}

// NewAggregator constructs an Aggregator.
func NewAggregator(st store.KnowledgeStore) *Aggregator {
	return &Aggregator{store: st}
}

func (a *Aggregator) AgentType() models.AgentType { return AgentTypeAggregator }
func (a *Aggregator) Start(context.Context) error { return nil }
func (a *Aggregator) Stop()                       {}

func (a *Aggregator) HandleEnvelope(ctx context.Context, req models.Envelope) (models.Envelope, error) {
	var in AggregateRequest
	if err := decodePayload(req.Payload, &in); err != nil {
		return models.Envelope{}, err
	}
	resp, err := a.Aggregate(ctx, in)
	if err != nil {
		return models.Envelope{}, err
	}
	payload, err := encodePayload(resp)
	if err != nil {
		return models.Envelope{}, err
	}
	return models.Envelope{Payload: payload}, nil
}

// Aggregate dedupes by URL (longest extracted text wins; earliest
// accessed_at breaks ties, §4.F) and unions key points, persisting every
// distinct source via the store's own dedup-merge upsert.
func (a *Aggregator) Aggregate(ctx context.Context, in AggregateRequest) (AggregateResponse, error) {
	byURL := make(map[string]searchprovider.Result)
	now := time.Now().UTC()

	// Responses are processed in the order they were produced, so on a
	// snippet-length tie the entry already in byURL is the earlier one and
	// is kept as-is (§4.F "earliest accessed_at wins" tie-break).
	for _, resp := range in.Responses {
		for _, r := range resp.Results {
			existing, ok := byURL[r.URL]
			if !ok || len(r.Snippet) > len(existing.Snippet) {
				byURL[r.URL] = r
			}
		}
	}

	urls := make([]string, 0, len(byURL))
	for url := range byURL {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	sources := make([]searchprovider.Result, 0, len(urls))
	for _, url := range urls {
		r := byURL[url]
		sources = append(sources, r)
		if _, err := a.store.UpsertSource(ctx, models.Source{
			URL: r.URL, Title: r.Title, Provider: r.Provider,
			ExtractedText: r.Snippet, AccessedAt: now,
		}); err != nil {
			return AggregateResponse{}, err
		}
	}

	keyPointSet := make(map[string]struct{})
	for _, kp := range in.KeyPoints {
		keyPointSet[kp] = struct{}{}
	}
	keyPoints := make([]string, 0, len(keyPointSet))
	for kp := range keyPointSet {
		keyPoints = append(keyPoints, kp)
	}
	sort.Strings(keyPoints)

	return AggregateResponse{Sources: sources, KeyPoints: keyPoints}, nil
}
