package agents

import (
	"context"
	"fmt"

	"github.com/nexus-research/nexus-orchestrator/pkg/jsonutil"
	"github.com/nexus-research/nexus-orchestrator/pkg/llmprovider"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// SummarizeRequest is the summarizing-stage request payload (§4.F).
type SummarizeRequest struct {
	TaskQuery string   `json:"task_query"`
	Sources   []string `json:"sources"`
	KeyPoints []string `json:"key_points"`
}

// Summary is the structured summarizing-stage output (§4.F).
type Summary struct {
	ExecutiveSummary string   `json:"executive_summary"`
	KeyFindings      []string `json:"key_findings"`
	Sources          []string `json:"sources"`
}

// Summarizer produces a structured Summary from the aggregated bundle,
// recovering from malformed model output the same way the Decomposer does
// (§4.G).
type Summarizer struct {
	llm llmprovider.Provider
}

// NewSummarizer constructs a Summarizer.
func NewSummarizer(llm llmprovider.Provider) *Summarizer {
	return &Summarizer{llm: llm}
}

func (s *Summarizer) AgentType() models.AgentType { return AgentTypeSummarizer }
func (s *Summarizer) Start(context.Context) error { return nil }
func (s *Summarizer) Stop()                       {}

func (s *Summarizer) HandleEnvelope(ctx context.Context, req models.Envelope) (models.Envelope, error) {
	var in SummarizeRequest
	if err := decodePayload(req.Payload, &in); err != nil {
		return models.Envelope{}, err
	}
	summary, err := s.Summarize(ctx, in)
	if err != nil {
		// Stage-level retry/placeholder policy lives in the pipeline, not
		// here; the agent surfaces the error and lets the caller decide.
		return models.Envelope{}, err
	}
	payload, err := encodePayload(summary)
	if err != nil {
		return models.Envelope{}, err
	}
	return models.Envelope{Payload: payload}, nil
}

// Summarize prompts the LLM for a strict-JSON Summary, recovering from
// markdown fencing or bracket noise before giving up.
func (s *Summarizer) Summarize(ctx context.Context, in SummarizeRequest) (Summary, error) {
	prompt := fmt.Sprintf(
		"Summarize the research on %q given sources %v and key points %v. "+
			"Reply as JSON {executive_summary, key_findings, sources}.",
		in.TaskQuery, in.Sources, in.KeyPoints,
	)
	raw, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return Summary{}, fmt.Errorf("agents: summarizer llm call failed: %w", err)
	}
	var out Summary
	if err := jsonutil.ParseJSONOrExtract(raw, &out); err != nil {
		return Summary{}, fmt.Errorf("agents: summarizer parse failed: %w", err)
	}
	return out, nil
}

// Placeholder returns the fallback summary used once the single allowed
// retry also fails (§4.F "record a placeholder summary and continue").
func Placeholder(taskQuery string) Summary {
	return Summary{
		ExecutiveSummary: fmt.Sprintf("Summary unavailable for %q after retry.", taskQuery),
	}
}
