package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus-orchestrator/pkg/jsonutil"
	"github.com/nexus-research/nexus-orchestrator/pkg/llmprovider"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
)

// ErrDecompositionFailed is raised when the LLM's tree cannot be parsed
// even after bracket-recovery (§4.G).
var ErrDecompositionFailed = errors.New("agents: decomposition_failed")

// DecomposeRequest is the planning-stage request payload (§4.F).
type DecomposeRequest struct {
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	MaxDepth    int    `json:"max_depth"`
	MaxBreadth  int    `json:"max_breadth"`
}

// DecomposeResponse carries the flattened subtask tree.
type DecomposeResponse struct {
	Subtasks []models.Subtask `json:"subtasks"`
}

// Decomposer turns a task description into a tree of Subtasks by
// prompting the LLM for a JSON node tree and flattening the result (§4.G).
type Decomposer struct {
	llm   llmprovider.Provider
	store store.KnowledgeStore
}

// NewDecomposer constructs a Decomposer.
func NewDecomposer(llm llmprovider.Provider, st store.KnowledgeStore) *Decomposer {
	return &Decomposer{llm: llm, store: st}
}

func (d *Decomposer) AgentType() models.AgentType { return AgentTypeDecomposer }
func (d *Decomposer) Start(context.Context) error { return nil }
func (d *Decomposer) Stop()                       {}

// HandleEnvelope implements Capability.
func (d *Decomposer) HandleEnvelope(ctx context.Context, req models.Envelope) (models.Envelope, error) {
	var in DecomposeRequest
	if err := decodePayload(req.Payload, &in); err != nil {
		return models.Envelope{}, err
	}
	if in.MaxDepth <= 0 {
		in.MaxDepth = 3
	}
	if in.MaxBreadth <= 0 {
		in.MaxBreadth = 5
	}

	subtasks, err := d.Decompose(ctx, in.TaskID, in.Description, in.MaxDepth, in.MaxBreadth)
	if err != nil {
		return models.Envelope{}, err
	}

	payload, err := encodePayload(DecomposeResponse{Subtasks: subtasks})
	if err != nil {
		return models.Envelope{}, err
	}
	return models.Envelope{Payload: payload}, nil
}

// Decompose prompts the LLM, recovers from malformed JSON, flattens the
// resulting tree into Subtask rows (persisting each), and applies the
// "fewer than one child → root is the task description" fallback (§4.F).
func (d *Decomposer) Decompose(ctx context.Context, taskID, description string, maxDepth, maxBreadth int) ([]models.Subtask, error) {
	prompt := fmt.Sprintf(
		"Decompose this research task into a JSON tree of up to %d levels and %d children per node. "+
			"Each node is {title, description, key_questions, data_sources, subtopics}. Task: %s",
		maxDepth, maxBreadth, description,
	)

	raw, err := d.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: llm call failed: %v", ErrDecompositionFailed, err)
	}

	var root models.DecompositionNode
	if err := jsonutil.ParseJSONOrExtract(raw, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompositionFailed, err)
	}

	if len(root.Subtopics) == 0 {
		root = models.DecompositionNode{Title: description, Description: description}
	}

	var subtasks []models.Subtask
	d.flatten(taskID, root, nil, 0, &subtasks)

	for _, st := range subtasks {
		if _, err := d.store.CreateSubtask(ctx, st); err != nil {
			return nil, fmt.Errorf("agents: persist subtask: %w", err)
		}
	}
	return subtasks, nil
}

// flatten appends each node in pre-order (parent before its children) so
// that inserting *out in slice order never violates subtasks.parent_id's
// foreign key.
func (d *Decomposer) flatten(taskID string, node models.DecompositionNode, parentID *string, depth int, out *[]models.Subtask) string {
	id := uuid.NewString()
	index := len(*out)
	*out = append(*out, models.Subtask{
		ID:           id,
		TaskID:       taskID,
		ParentID:     parentID,
		Title:        node.Title,
		Description:  node.Description,
		KeyQuestions: node.KeyQuestions,
		DataSources:  node.DataSources,
		Status:       models.SubtaskStatusPending,
		Depth:        depth,
	})
	for _, child := range node.Subtopics {
		childID := d.flatten(taskID, child, &id, depth+1, out)
		(*out)[index].ChildIDs = append((*out)[index].ChildIDs, childID)
	}
	return id
}
