package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// AppendEvidence inserts one append-only evidence row (§3). Evidence is
// never updated, only inserted or purged wholesale.
func (f *Facade) AppendEvidence(ctx context.Context, ev models.Evidence) (string, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return "", fmt.Errorf("store: encode evidence payload: %w", err)
	}
	id := uuid.NewString()
	_, err = f.db.ExecContext(ctx, `
		INSERT INTO operation_evidence (id, operation_id, kind, payload, source_url, provider, retrieved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, ev.OperationID, ev.Kind, payload, ev.SourceURL, ev.Provider, ev.RetrievedAt)
	if err != nil {
		return "", fmt.Errorf("store: append evidence: %w", err)
	}
	return id, nil
}

type evidenceRow struct {
	ID          string          `db:"id"`
	OperationID string          `db:"operation_id"`
	Kind        string          `db:"kind"`
	Payload     json.RawMessage `db:"payload"`
	SourceURL   string          `db:"source_url"`
	Provider    string          `db:"provider"`
}

// ListEvidenceForOperation returns every evidence row for one operation, in
// insertion order.
func (f *Facade) ListEvidenceForOperation(ctx context.Context, operationID string) ([]models.Evidence, error) {
	var rows []evidenceRow
	err := f.db.SelectContext(ctx, &rows, `
		SELECT id, operation_id, kind, payload, source_url, provider
		FROM operation_evidence WHERE operation_id = $1 ORDER BY created_at ASC
	`, operationID)
	if err != nil {
		return nil, fmt.Errorf("store: list evidence: %w", err)
	}

	out := make([]models.Evidence, 0, len(rows))
	for _, r := range rows {
		var payload map[string]any
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &payload); err != nil {
				return nil, fmt.Errorf("store: decode evidence payload: %w", err)
			}
		}
		out = append(out, models.Evidence{
			ID:          r.ID,
			OperationID: r.OperationID,
			Kind:        models.EvidenceKind(r.Kind),
			Payload:     payload,
			SourceURL:   r.SourceURL,
			Provider:    r.Provider,
		})
	}
	return out, nil
}
