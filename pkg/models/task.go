// Package models holds the persistent and wire data types shared across the
// queue, worker, pipeline, agents, and knowledge store.
package models

import "time"

// TaskStatus is the ordered stage enum a Research Task advances through.
// Values other than Failed are totally ordered; Failed is reachable from any
// non-terminal status.
type TaskStatus string

const (
	TaskStatusCreated             TaskStatus = "created"
	TaskStatusPlanning            TaskStatus = "planning"
	TaskStatusSearching           TaskStatus = "searching"
	TaskStatusAggregating         TaskStatus = "aggregating"
	TaskStatusSummarizing         TaskStatus = "summarizing"
	TaskStatusReasoning           TaskStatus = "reasoning"
	TaskStatusGeneratingArtifacts TaskStatus = "generating_artifacts"
	TaskStatusCompleted           TaskStatus = "completed"
	TaskStatusFailed              TaskStatus = "failed"
)

// stageOrder is the canonical non-terminal progression used to validate that
// an observed status sequence is a prefix of it (§8 invariant).
var stageOrder = []TaskStatus{
	TaskStatusCreated,
	TaskStatusPlanning,
	TaskStatusSearching,
	TaskStatusAggregating,
	TaskStatusSummarizing,
	TaskStatusReasoning,
	TaskStatusGeneratingArtifacts,
	TaskStatusCompleted,
}

// StageIndex returns the position of s in the canonical progression, or -1
// for Failed (terminal, reachable from anywhere) and unknown values.
func StageIndex(s TaskStatus) int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether s ends a task's lifecycle.
func IsTerminal(s TaskStatus) bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Priority is a Work Queue tier.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Task is the Research Task entity (§3). The knowledge store holds the
// truth; queue entries carry an id only.
type Task struct {
	ID                       string
	Title                    string
	Description              string
	Status                   TaskStatus
	ContinuousMode           bool
	ContinuousIntervalHours  int
	RunCount                 int
	CreatedAt                time.Time
	UpdatedAt                time.Time
	CompletedAt              *time.Time
	Metadata                 map[string]any
	Results                  *string
	Summary                  *string
	Reasoning                *string
}

// JobEnvelope is the Work Queue payload (§3). It is serialized verbatim on
// enqueue and must come back byte-identical from a matching blocking pop.
type JobEnvelope struct {
	TaskID                  string   `json:"task_id"`
	Title                   string   `json:"title"`
	Description             string   `json:"description"`
	ContinuousMode          bool     `json:"continuous_mode,omitempty"`
	ContinuousIntervalHours int      `json:"continuous_interval_hours,omitempty"`
	Priority                Priority `json:"priority"`
	RunCount                int      `json:"run_count,omitempty"`
	EnqueuedAt              string   `json:"enqueued_at"`
	RetryCount              int      `json:"retry_count,omitempty"`
}
