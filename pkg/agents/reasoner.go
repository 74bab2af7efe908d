package agents

import (
	"context"
	"fmt"

	"github.com/nexus-research/nexus-orchestrator/pkg/jsonutil"
	"github.com/nexus-research/nexus-orchestrator/pkg/llmprovider"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// ReasonRequest is the reasoning-stage request payload (§4.F).
type ReasonRequest struct {
	TaskQuery string   `json:"task_query"`
	Summary   string   `json:"summary"`
	Sources   []string `json:"sources"`
}

// Reasoning is the structured reasoning-stage output (§4.F).
type Reasoning struct {
	Synthesis       string   `json:"synthesis"`
	Contradictions  []string `json:"contradictions"`
	Credibility     string   `json:"credibility"`
	Gaps            []string `json:"gaps"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

// Reasoner produces structured Reasoning from a summary, recovering from
// malformed model output the same way the Decomposer and Summarizer do
// (§4.G).
type Reasoner struct {
	llm llmprovider.Provider
}

// NewReasoner constructs a Reasoner.
func NewReasoner(llm llmprovider.Provider) *Reasoner {
	return &Reasoner{llm: llm}
}

func (r *Reasoner) AgentType() models.AgentType { return AgentTypeReasoner }
func (r *Reasoner) Start(context.Context) error { return nil }
func (r *Reasoner) Stop()                       {}

func (r *Reasoner) HandleEnvelope(ctx context.Context, req models.Envelope) (models.Envelope, error) {
	var in ReasonRequest
	if err := decodePayload(req.Payload, &in); err != nil {
		return models.Envelope{}, err
	}
	reasoning, err := r.Reason(ctx, in)
	if err != nil {
		return models.Envelope{}, err
	}
	payload, err := encodePayload(reasoning)
	if err != nil {
		return models.Envelope{}, err
	}
	return models.Envelope{Payload: payload}, nil
}

// Reason prompts the LLM for strict-JSON Reasoning, recovering from
// markdown fencing or bracket noise before giving up.
func (r *Reasoner) Reason(ctx context.Context, in ReasonRequest) (Reasoning, error) {
	prompt := fmt.Sprintf(
		"Given the research query %q, the summary %q, and sources %v, produce higher-order "+
			"reasoning. Reply as JSON {synthesis, contradictions, credibility, gaps, insights, recommendations}.",
		in.TaskQuery, in.Summary, in.Sources,
	)
	raw, err := r.llm.Complete(ctx, prompt)
	if err != nil {
		return Reasoning{}, fmt.Errorf("agents: reasoner llm call failed: %w", err)
	}
	var out Reasoning
	if err := jsonutil.ParseJSONOrExtract(raw, &out); err != nil {
		return Reasoning{}, fmt.Errorf("agents: reasoner parse failed: %w", err)
	}
	return out, nil
}

// PlaceholderReasoning is the fallback used once the single allowed retry
// also fails (§4.F "record a placeholder summary and continue" applies
// identically to reasoning).
func PlaceholderReasoning(taskQuery string) Reasoning {
	return Reasoning{
		Synthesis: fmt.Sprintf("Reasoning unavailable for %q after retry.", taskQuery),
	}
}
