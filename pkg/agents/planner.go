package agents

import (
	"context"
	"regexp"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// PlanRequest carries the flattened subtask tree to annotate.
type PlanRequest struct {
	Subtasks []models.Subtask `json:"subtasks"`
}

// PlannedSubtask adds the Planner's schedule and agent assignment to a
// Subtask id without mutating the persisted row (scheduling metadata is
// recomputed per pipeline run, not stored).
type PlannedSubtask struct {
	SubtaskID     string           `json:"subtask_id"`
	ExpectedHours float64          `json:"expected_hours"`
	AssignedAgent models.AgentType `json:"assigned_agent"`
}

// PlanResponse is the Planner's reply payload.
type PlanResponse struct {
	Plan []PlannedSubtask `json:"plan"`
}

var urlPattern = regexp.MustCompile(`https?://`)

// Planner assigns expected time and agent type per subtask (§4.G).
type Planner struct{}

// NewPlanner constructs a Planner. Stateless: no dependencies needed.
func NewPlanner() *Planner { return &Planner{} }

func (p *Planner) AgentType() models.AgentType { return AgentTypePlanner }
func (p *Planner) Start(context.Context) error { return nil }
func (p *Planner) Stop()                       {}

func (p *Planner) HandleEnvelope(_ context.Context, req models.Envelope) (models.Envelope, error) {
	var in PlanRequest
	if err := decodePayload(req.Payload, &in); err != nil {
		return models.Envelope{}, err
	}
	plan := p.Plan(in.Subtasks)
	payload, err := encodePayload(PlanResponse{Plan: plan})
	if err != nil {
		return models.Envelope{}, err
	}
	return models.Envelope{Payload: payload}, nil
}

// Plan computes a PlannedSubtask for every subtask, independent of its
// siblings: expected hours follow
// base = 1 + 2/(depth+1) + 0.5*children + 0.2*key_questions (§4.G), and
// agent type follows the leaf/URL rule (§4.G).
func (p *Planner) Plan(subtasks []models.Subtask) []PlannedSubtask {
	out := make([]PlannedSubtask, 0, len(subtasks))
	for _, st := range subtasks {
		out = append(out, PlannedSubtask{
			SubtaskID:     st.ID,
			ExpectedHours: expectedHours(st),
			AssignedAgent: assignAgent(st),
		})
	}
	return out
}

func expectedHours(st models.Subtask) float64 {
	return 1 + 2/float64(st.Depth+1) + 0.5*float64(len(st.ChildIDs)) + 0.2*float64(len(st.KeyQuestions))
}

func assignAgent(st models.Subtask) models.AgentType {
	isLeaf := len(st.ChildIDs) == 0
	if !isLeaf {
		return models.AgentTypeSummarization
	}
	for _, src := range st.DataSources {
		if urlPattern.MatchString(src) {
			return models.AgentTypeBrowserSearch
		}
	}
	return models.AgentTypeQuerySearch
}
