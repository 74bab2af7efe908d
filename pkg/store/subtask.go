package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// CreateSubtask inserts one decomposition node (§3). Callers are
// responsible for the finite-tree invariant: a subtask's ParentID must
// already exist (enforced by the foreign key) and must never point back to
// one of its own descendants.
func (f *Facade) CreateSubtask(ctx context.Context, st models.Subtask) (string, error) {
	keyQuestions, err := json.Marshal(st.KeyQuestions)
	if err != nil {
		return "", fmt.Errorf("store: encode key questions: %w", err)
	}
	dataSources, err := json.Marshal(st.DataSources)
	if err != nil {
		return "", fmt.Errorf("store: encode data sources: %w", err)
	}
	id := st.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err = f.db.ExecContext(ctx, `
		INSERT INTO subtasks (id, task_id, parent_id, title, description, key_questions, data_sources, status, assigned_agent, expected_hours, depth)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, id, st.TaskID, st.ParentID, clipTitle(st.Title), st.Description, keyQuestions, dataSources,
		st.Status, st.AssignedAgent, st.ExpectedHours, st.Depth)
	if err != nil {
		return "", fmt.Errorf("store: create subtask: %w", err)
	}
	return id, nil
}

// ListSubtasksForTask returns every subtask for taskID.
func (f *Facade) ListSubtasksForTask(ctx context.Context, taskID string) ([]models.Subtask, error) {
	var rows []struct {
		ID            string          `db:"id"`
		TaskID        string          `db:"task_id"`
		ParentID      *string         `db:"parent_id"`
		Title         string          `db:"title"`
		Description   string          `db:"description"`
		KeyQuestions  json.RawMessage `db:"key_questions"`
		DataSources   json.RawMessage `db:"data_sources"`
		Status        string          `db:"status"`
		AssignedAgent string          `db:"assigned_agent"`
		ExpectedHours float64         `db:"expected_hours"`
		Depth         int             `db:"depth"`
	}
	err := f.db.SelectContext(ctx, &rows, `
		SELECT id, task_id, parent_id, title, description, key_questions, data_sources,
		       status, assigned_agent, expected_hours, depth
		FROM subtasks WHERE task_id = $1
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("store: list subtasks: %w", err)
	}

	out := make([]models.Subtask, 0, len(rows))
	for _, r := range rows {
		var keyQuestions, dataSources []string
		_ = json.Unmarshal(r.KeyQuestions, &keyQuestions)
		_ = json.Unmarshal(r.DataSources, &dataSources)
		out = append(out, models.Subtask{
			ID: r.ID, TaskID: r.TaskID, ParentID: r.ParentID, Title: r.Title, Description: r.Description,
			KeyQuestions: keyQuestions, DataSources: dataSources, Status: models.SubtaskStatus(r.Status),
			AssignedAgent: models.AgentType(r.AssignedAgent), ExpectedHours: r.ExpectedHours, Depth: r.Depth,
		})
	}
	return out, nil
}
