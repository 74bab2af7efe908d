package models

import "time"

// OperationStatus tracks one Task Operation's lifecycle. Immutable after it
// reaches a terminal value (§4.C "operation finality").
type OperationStatus string

const (
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// Operation is one row per pipeline stage execution for one task (§3).
type Operation struct {
	ID          string
	TaskID      string
	Stage       TaskStatus
	StartedAt   time.Time
	EndedAt     *time.Time
	Status      OperationStatus
	Error       string
	Counts      map[string]int
	RetryMarker int
}

// EvidenceKind enumerates the kinds of Operation Evidence (§3).
type EvidenceKind string

const (
	EvidenceSearchResult        EvidenceKind = "search_result"
	EvidenceExtractedFact       EvidenceKind = "extracted_fact"
	EvidenceSummaryFragment     EvidenceKind = "summary_fragment"
	EvidenceReasoningConclusion EvidenceKind = "reasoning_conclusion"
)

// Evidence is an append-only record attached to an Operation (§3). Never
// deleted except by the explicit purge-all-data admin operation.
type Evidence struct {
	ID          string
	OperationID string
	Kind        EvidenceKind
	Payload     map[string]any
	SourceURL   string
	Provider    string
	RetrievedAt time.Time
	CreatedAt   time.Time
}

// MediaKind enumerates Artifact content types (§3).
type MediaKind string

const (
	MediaMarkdown MediaKind = "markdown"
	MediaJSON     MediaKind = "json"
	MediaPDF      MediaKind = "pdf"
)

// Artifact is a generated output bound to a task (§3).
type Artifact struct {
	ID        string
	TaskID    string
	Title     string
	Kind      MediaKind
	Content   string
	Path      string
	CreatedAt time.Time
}

// Source is a canonical retrieved document, deduplicated by URL (§3, §4.C).
type Source struct {
	ID           string
	URL          string
	Title        string
	AccessedAt   time.Time
	Provider     string
	ContentHash  string
	ExtractedText string
}
