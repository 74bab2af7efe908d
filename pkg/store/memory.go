package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// Memory is an in-process KnowledgeStore used by tests that exercise the
// pipeline, worker, and agents without a live Postgres instance. It
// reproduces the same idempotence/finality/dedup semantics as Facade.
type Memory struct {
	mu         sync.Mutex
	tasks      map[string]models.Task
	operations map[string]models.Operation
	byTaskStage map[string]string // taskID|stage -> operation id
	evidence   map[string][]models.Evidence
	sources    map[string]models.Source // by URL
	artifacts  map[string][]models.Artifact
	subtasks   map[string][]models.Subtask
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:       make(map[string]models.Task),
		operations:  make(map[string]models.Operation),
		byTaskStage: make(map[string]string),
		evidence:    make(map[string][]models.Evidence),
		sources:     make(map[string]models.Source),
		artifacts:   make(map[string][]models.Artifact),
		subtasks:    make(map[string][]models.Subtask),
	}
}

func (m *Memory) CreateTaskIfAbsent(_ context.Context, task models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; ok {
		return nil
	}
	task.Title = clipTitle(task.Title)
	if task.Status == "" {
		task.Status = models.TaskStatusCreated
	}
	now := time.Now().UTC()
	task.CreatedAt, task.UpdatedAt = now, now
	m.tasks[task.ID] = task
	return nil
}

func (m *Memory) UpdateTaskStatus(_ context.Context, taskID string, status models.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tasks[taskID]
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	m.tasks[taskID] = t
	return nil
}

func (m *Memory) CompleteTask(_ context.Context, taskID string, results, summary, reasoning *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tasks[taskID]
	t.Status = models.TaskStatusCompleted
	t.Results, t.Summary, t.Reasoning = results, summary, reasoning
	now := time.Now().UTC()
	t.CompletedAt, t.UpdatedAt = &now, now
	m.tasks[taskID] = t
	return nil
}

func (m *Memory) FailTask(_ context.Context, taskID, errMsg, category string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tasks[taskID]
	t.Status = models.TaskStatusFailed
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	t.Metadata["error"] = errMsg
	t.Metadata["error_category"] = category
	t.UpdatedAt = time.Now().UTC()
	m.tasks[taskID] = t
	return nil
}

func (m *Memory) GetTask(_ context.Context, taskID string) (models.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	return t, ok, nil
}

func (m *Memory) IncrementRunCount(_ context.Context, taskID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tasks[taskID]
	t.RunCount++
	m.tasks[taskID] = t
	return t.RunCount, nil
}

func (m *Memory) BeginOperation(_ context.Context, taskID string, stage models.TaskStatus) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := taskID + "|" + string(stage)
	if opID, ok := m.byTaskStage[key]; ok {
		op := m.operations[opID]
		if op.Status == models.OperationStatusCompleted {
			return "", ErrOperationAlreadyCompleted
		}
		op.Status = models.OperationStatusRunning
		op.StartedAt = time.Now().UTC()
		op.EndedAt = nil
		op.Error = ""
		m.operations[opID] = op
		return opID, nil
	}
	id := uuid.NewString()
	m.operations[id] = models.Operation{
		ID: id, TaskID: taskID, Stage: stage,
		StartedAt: time.Now().UTC(), Status: models.OperationStatusRunning,
	}
	m.byTaskStage[key] = id
	return id, nil
}

func (m *Memory) CompleteOperation(_ context.Context, operationID string, status models.OperationStatus, errMsg string, counts map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operations[operationID]
	if !ok {
		return ErrOperationFinal
	}
	if op.Status != models.OperationStatusRunning {
		return ErrOperationFinal
	}
	now := time.Now().UTC()
	op.Status, op.Error, op.Counts, op.EndedAt = status, errMsg, counts, &now
	m.operations[operationID] = op
	return nil
}

func (m *Memory) IncrementRetryMarker(_ context.Context, operationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op := m.operations[operationID]
	op.RetryMarker++
	m.operations[operationID] = op
	return nil
}

func (m *Memory) AppendEvidence(_ context.Context, ev models.Evidence) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = uuid.NewString()
	ev.CreatedAt = time.Now().UTC()
	m.evidence[ev.OperationID] = append(m.evidence[ev.OperationID], ev)
	return ev.ID, nil
}

func (m *Memory) ListEvidenceForOperation(_ context.Context, operationID string) ([]models.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Evidence, len(m.evidence[operationID]))
	copy(out, m.evidence[operationID])
	return out, nil
}

func (m *Memory) UpsertSource(_ context.Context, src models.Source) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src.Title = clipTitle(src.Title)
	if src.AccessedAt.IsZero() {
		src.AccessedAt = time.Now().UTC()
	}

	existing, ok := m.sources[src.URL]
	if !ok {
		if src.ID == "" {
			src.ID = uuid.NewString()
		}
		m.sources[src.URL] = src
		return src.ID, nil
	}

	if src.AccessedAt.After(existing.AccessedAt) {
		existing.AccessedAt = src.AccessedAt
	}
	if len(src.Title) > len(existing.Title) {
		existing.Title = src.Title
	}
	if src.Provider != "" {
		existing.Provider = src.Provider
	}
	if src.ContentHash != "" {
		existing.ContentHash = src.ContentHash
	}
	if src.ExtractedText != "" {
		existing.ExtractedText = src.ExtractedText
	}
	m.sources[src.URL] = existing
	return existing.ID, nil
}

func (m *Memory) GetSourceByURL(_ context.Context, url string) (models.Source, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[url]
	return s, ok, nil
}

func (m *Memory) CreateArtifact(_ context.Context, a models.Artifact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Title = clipTitle(a.Title)
	a.CreatedAt = time.Now().UTC()
	m.artifacts[a.TaskID] = append(m.artifacts[a.TaskID], a)
	return a.ID, nil
}

func (m *Memory) ListArtifactsForTask(_ context.Context, taskID string) ([]models.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Artifact, len(m.artifacts[taskID]))
	copy(out, m.artifacts[taskID])
	return out, nil
}

func (m *Memory) CreateSubtask(_ context.Context, st models.Subtask) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.Title = clipTitle(st.Title)
	m.subtasks[st.TaskID] = append(m.subtasks[st.TaskID], st)
	return st.ID, nil
}

func (m *Memory) ListSubtasksForTask(_ context.Context, taskID string) ([]models.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Subtask, len(m.subtasks[taskID]))
	copy(out, m.subtasks[taskID])
	return out, nil
}

func (m *Memory) PurgeAll(_ context.Context, _ *redis.Client, confirmationToken string) error {
	if confirmationToken != PurgeConfirmationToken {
		return ErrPurgeNotConfirmed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = make(map[string]models.Task)
	m.operations = make(map[string]models.Operation)
	m.byTaskStage = make(map[string]string)
	m.evidence = make(map[string][]models.Evidence)
	m.sources = make(map[string]models.Source)
	m.artifacts = make(map[string][]models.Artifact)
	m.subtasks = make(map[string][]models.Subtask)
	return nil
}

func (m *Memory) HealthCheck(_ context.Context) bool { return true }

var _ KnowledgeStore = (*Memory)(nil)
