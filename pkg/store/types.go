package store

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// KnowledgeStore is the Knowledge Store Facade contract (§4.C), satisfied
// by both the Postgres-backed Facade and the in-memory Memory used by
// tests that don't stand up a database.
type KnowledgeStore interface {
	CreateTaskIfAbsent(ctx context.Context, task models.Task) error
	UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error
	CompleteTask(ctx context.Context, taskID string, results, summary, reasoning *string) error
	FailTask(ctx context.Context, taskID, errMsg, category string) error
	GetTask(ctx context.Context, taskID string) (models.Task, bool, error)
	IncrementRunCount(ctx context.Context, taskID string) (int, error)

	BeginOperation(ctx context.Context, taskID string, stage models.TaskStatus) (string, error)
	CompleteOperation(ctx context.Context, operationID string, status models.OperationStatus, errMsg string, counts map[string]int) error
	IncrementRetryMarker(ctx context.Context, operationID string) error

	AppendEvidence(ctx context.Context, ev models.Evidence) (string, error)
	ListEvidenceForOperation(ctx context.Context, operationID string) ([]models.Evidence, error)

	UpsertSource(ctx context.Context, src models.Source) (string, error)
	GetSourceByURL(ctx context.Context, url string) (models.Source, bool, error)

	CreateArtifact(ctx context.Context, a models.Artifact) (string, error)
	ListArtifactsForTask(ctx context.Context, taskID string) ([]models.Artifact, error)

	CreateSubtask(ctx context.Context, st models.Subtask) (string, error)
	ListSubtasksForTask(ctx context.Context, taskID string) ([]models.Subtask, error)

	PurgeAll(ctx context.Context, rdb *redis.Client, confirmationToken string) error
	HealthCheck(ctx context.Context) bool
}

var _ KnowledgeStore = (*Facade)(nil)
