package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

type taskRow struct {
	ID                      string          `db:"id"`
	Title                   string          `db:"title"`
	Description             string          `db:"description"`
	Status                  string          `db:"status"`
	ContinuousMode          bool            `db:"continuous_mode"`
	ContinuousIntervalHours int             `db:"continuous_interval_hours"`
	RunCount                int             `db:"run_count"`
	CreatedAt               time.Time       `db:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at"`
	CompletedAt             *time.Time      `db:"completed_at"`
	Metadata                json.RawMessage `db:"metadata"`
	Results                 *string         `db:"results"`
	Summary                 *string         `db:"summary"`
	Reasoning               *string         `db:"reasoning"`
}

func (r taskRow) toModel() (models.Task, error) {
	t := models.Task{
		ID:                      r.ID,
		Title:                   r.Title,
		Description:             r.Description,
		Status:                  models.TaskStatus(r.Status),
		ContinuousMode:          r.ContinuousMode,
		ContinuousIntervalHours: r.ContinuousIntervalHours,
		RunCount:                r.RunCount,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
		CompletedAt:             r.CompletedAt,
		Results:                 r.Results,
		Summary:                 r.Summary,
		Reasoning:               r.Reasoning,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &t.Metadata); err != nil {
			return models.Task{}, fmt.Errorf("store: decode task metadata: %w", err)
		}
	}
	return t, nil
}

// CreateTaskIfAbsent inserts a task row from a queue envelope if one does
// not already exist, matching the Worker's "ensure the task row exists"
// step (§4.E). It is a no-op, not an error, when the task already exists.
func (f *Facade) CreateTaskIfAbsent(ctx context.Context, task models.Task) error {
	metadata, err := json.Marshal(task.Metadata)
	if err != nil {
		return fmt.Errorf("store: encode metadata: %w", err)
	}
	title := clipTitle(task.Title)
	status := task.Status
	if status == "" {
		status = models.TaskStatusCreated
	}

	_, err = f.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, continuous_mode, continuous_interval_hours, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, task.ID, title, task.Description, status, task.ContinuousMode, task.ContinuousIntervalHours, metadata)
	if err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	return nil
}

// UpdateTaskStatus transitions a task's status and bumps updated_at.
func (f *Facade) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	_, err := f.db.ExecContext(ctx, `
		UPDATE tasks SET status = $2, updated_at = now() WHERE id = $1
	`, taskID, status)
	if err != nil {
		return fmt.Errorf("store: update task status: %w", err)
	}
	return nil
}

// CompleteTask records terminal success: status, results/summary/reasoning,
// and completed_at.
func (f *Facade) CompleteTask(ctx context.Context, taskID string, results, summary, reasoning *string) error {
	_, err := f.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $2, results = $3, summary = $4, reasoning = $5, completed_at = now(), updated_at = now()
		WHERE id = $1
	`, taskID, models.TaskStatusCompleted, results, summary, reasoning)
	if err != nil {
		return fmt.Errorf("store: complete task: %w", err)
	}
	return nil
}

// FailTask records terminal failure with an error category in metadata.
func (f *Facade) FailTask(ctx context.Context, taskID, errMsg, category string) error {
	meta, _ := json.Marshal(map[string]string{"error": errMsg, "error_category": category})
	_, err := f.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $2, metadata = metadata || $3::jsonb, updated_at = now()
		WHERE id = $1
	`, taskID, models.TaskStatusFailed, meta)
	if err != nil {
		return fmt.Errorf("store: fail task: %w", err)
	}
	return nil
}

// GetTask returns the task row, or (models.Task{}, false, nil) if absent.
func (f *Facade) GetTask(ctx context.Context, taskID string) (models.Task, bool, error) {
	var row taskRow
	err := f.db.GetContext(ctx, &row, `SELECT * FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		if isNoRows(err) {
			return models.Task{}, false, nil
		}
		return models.Task{}, false, fmt.Errorf("store: get task: %w", err)
	}
	task, err := row.toModel()
	if err != nil {
		return models.Task{}, false, err
	}
	return task, true, nil
}

// IncrementRunCount bumps run_count for the continuous-mode re-enqueue path
// (§9 Continuous mode).
func (f *Facade) IncrementRunCount(ctx context.Context, taskID string) (int, error) {
	var runCount int
	err := f.db.GetContext(ctx, &runCount, `
		UPDATE tasks SET run_count = run_count + 1, updated_at = now() WHERE id = $1 RETURNING run_count
	`, taskID)
	if err != nil {
		return 0, fmt.Errorf("store: increment run count: %w", err)
	}
	return runCount, nil
}
