package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// ErrOperationFinal is returned by writes against an operation that has
// already reached a terminal status (§4.C "Operation finality").
var ErrOperationFinal = errors.New("store: operation is already completed or failed")

// ErrOperationAlreadyCompleted signals the pipeline's replay-safety check
// (§4.F): a (task_id, stage) pair already has a completed operation, so the
// stage should be skipped rather than re-run.
var ErrOperationAlreadyCompleted = errors.New("store: operation already completed for this task and stage")

// BeginOperation opens a new operation row for (taskID, stage), or returns
// ErrOperationAlreadyCompleted if one already completed for that pair
// (replay safety under at-least-once delivery, §4.F last bullet).
func (f *Facade) BeginOperation(ctx context.Context, taskID string, stage models.TaskStatus) (string, error) {
	var existingStatus string
	err := f.db.GetContext(ctx, &existingStatus, `
		SELECT status FROM operations WHERE task_id = $1 AND stage = $2
	`, taskID, stage)
	switch {
	case err == nil:
		if existingStatus == string(models.OperationStatusCompleted) {
			return "", ErrOperationAlreadyCompleted
		}
		// A prior running/failed operation for this stage is being retried;
		// reuse its id rather than violating the (task_id, stage) uniqueness.
		var id string
		getErr := f.db.GetContext(ctx, &id, `
			UPDATE operations SET started_at = now(), ended_at = NULL, status = $3, error = ''
			WHERE task_id = $1 AND stage = $2 RETURNING id
		`, taskID, stage, models.OperationStatusRunning)
		if getErr != nil {
			return "", fmt.Errorf("store: restart operation: %w", getErr)
		}
		return id, nil
	case isNoRows(err):
		id := uuid.NewString()
		_, insErr := f.db.ExecContext(ctx, `
			INSERT INTO operations (id, task_id, stage, status) VALUES ($1, $2, $3, $4)
		`, id, taskID, stage, models.OperationStatusRunning)
		if insErr != nil {
			return "", fmt.Errorf("store: begin operation: %w", insErr)
		}
		return id, nil
	default:
		return "", fmt.Errorf("store: check operation: %w", err)
	}
}

// CompleteOperation closes an operation row with a terminal status and
// counts. Rejects writes against an already-terminal row except via
// IncrementRetryMarker (§4.C).
func (f *Facade) CompleteOperation(ctx context.Context, operationID string, status models.OperationStatus, errMsg string, counts map[string]int) error {
	if status != models.OperationStatusCompleted && status != models.OperationStatusFailed {
		return fmt.Errorf("store: CompleteOperation requires a terminal status, got %q", status)
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("store: encode counts: %w", err)
	}

	res, err := f.db.ExecContext(ctx, `
		UPDATE operations
		SET status = $2, error = $3, counts = $4, ended_at = now()
		WHERE id = $1 AND status = $5
	`, operationID, status, errMsg, countsJSON, models.OperationStatusRunning)
	if err != nil {
		return fmt.Errorf("store: complete operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOperationFinal
	}
	return nil
}

// IncrementRetryMarker is the single write a terminal operation still
// accepts: an idempotent retry-marker bump (§4.C).
func (f *Facade) IncrementRetryMarker(ctx context.Context, operationID string) error {
	_, err := f.db.ExecContext(ctx, `
		UPDATE operations SET retry_marker = retry_marker + 1 WHERE id = $1
	`, operationID)
	if err != nil {
		return fmt.Errorf("store: increment retry marker: %w", err)
	}
	return nil
}
