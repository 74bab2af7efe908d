package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// UpsertSource writes a source, deduplicated by URL (§4.C): a second write
// for an existing URL updates accessed_at to the later of the two values
// and merges any non-empty fields in, rather than inserting a duplicate
// row. Title is clipped per the §4.C title bound before either path, and
// merges keep the longer of the two clipped titles regardless of write
// order (§8 boundary scenario 5).
func (f *Facade) UpsertSource(ctx context.Context, src models.Source) (string, error) {
	title := clipTitle(src.Title)
	accessedAt := src.AccessedAt
	if accessedAt.IsZero() {
		accessedAt = time.Now().UTC()
	}
	id := src.ID
	if id == "" {
		id = uuid.NewString()
	}

	var resultID string
	err := f.db.GetContext(ctx, &resultID, `
		INSERT INTO sources (id, url, title, accessed_at, provider, content_hash, extracted_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (url) DO UPDATE SET
			accessed_at    = GREATEST(sources.accessed_at, EXCLUDED.accessed_at),
			title          = CASE WHEN length(EXCLUDED.title) > length(sources.title) THEN EXCLUDED.title ELSE sources.title END,
			provider       = CASE WHEN EXCLUDED.provider <> '' THEN EXCLUDED.provider ELSE sources.provider END,
			content_hash   = CASE WHEN EXCLUDED.content_hash <> '' THEN EXCLUDED.content_hash ELSE sources.content_hash END,
			extracted_text = CASE WHEN EXCLUDED.extracted_text <> '' THEN EXCLUDED.extracted_text ELSE sources.extracted_text END
		RETURNING id
	`, id, src.URL, title, accessedAt, src.Provider, src.ContentHash, src.ExtractedText)
	if err != nil {
		return "", fmt.Errorf("store: upsert source: %w", err)
	}
	return resultID, nil
}

// GetSourceByURL returns the canonical source row for url, if any.
func (f *Facade) GetSourceByURL(ctx context.Context, url string) (models.Source, bool, error) {
	var row struct {
		ID            string    `db:"id"`
		URL           string    `db:"url"`
		Title         string    `db:"title"`
		AccessedAt    time.Time `db:"accessed_at"`
		Provider      string    `db:"provider"`
		ContentHash   string    `db:"content_hash"`
		ExtractedText string    `db:"extracted_text"`
	}
	err := f.db.GetContext(ctx, &row, `SELECT * FROM sources WHERE url = $1`, url)
	if err != nil {
		if isNoRows(err) {
			return models.Source{}, false, nil
		}
		return models.Source{}, false, fmt.Errorf("store: get source: %w", err)
	}
	return models.Source{
		ID:            row.ID,
		URL:           row.URL,
		Title:         row.Title,
		AccessedAt:    row.AccessedAt,
		Provider:      row.Provider,
		ContentHash:   row.ContentHash,
		ExtractedText: row.ExtractedText,
	}, true, nil
}
