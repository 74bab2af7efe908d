package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// CreateArtifact inserts one artifact row bound to a task (§3, §4.G).
func (f *Facade) CreateArtifact(ctx context.Context, a models.Artifact) (string, error) {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	title := clipTitle(a.Title)

	_, err := f.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, task_id, title, kind, content, path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, a.TaskID, title, a.Kind, a.Content, a.Path, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("store: create artifact: %w", err)
	}
	return id, nil
}

// ListArtifactsForTask returns every artifact for taskID, most recent first.
func (f *Facade) ListArtifactsForTask(ctx context.Context, taskID string) ([]models.Artifact, error) {
	var rows []struct {
		ID        string    `db:"id"`
		TaskID    string    `db:"task_id"`
		Title     string    `db:"title"`
		Kind      string    `db:"kind"`
		Content   string    `db:"content"`
		Path      string    `db:"path"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := f.db.SelectContext(ctx, &rows, `
		SELECT id, task_id, title, kind, content, path, created_at
		FROM artifacts WHERE task_id = $1 ORDER BY created_at DESC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("store: list artifacts: %w", err)
	}

	out := make([]models.Artifact, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Artifact{
			ID: r.ID, TaskID: r.TaskID, Title: r.Title,
			Kind: models.MediaKind(r.Kind), Content: r.Content, Path: r.Path, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
