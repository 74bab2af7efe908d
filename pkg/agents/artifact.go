package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
	"github.com/nexus-research/nexus-orchestrator/pkg/slugutil"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
)

// ArtifactRequest is the generating_artifacts-stage request payload
// (§4.F).
type ArtifactRequest struct {
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	Summary   Summary   `json:"summary"`
	Reasoning Reasoning `json:"reasoning"`
}

// ArtifactResponse carries the persisted artifact rows.
type ArtifactResponse struct {
	Artifacts []models.Artifact `json:"artifacts"`
}

// ArtifactGenerator writes one markdown and one JSON artifact per
// completed task into an output path derived from
// slugify(title) + '_' + YYYYMMDD (§4.G).
type ArtifactGenerator struct {
	store       store.KnowledgeStore
	storagePath string
	now         func() time.Time
}

// NewArtifactGenerator constructs an ArtifactGenerator that writes files
// under storagePath.
func NewArtifactGenerator(st store.KnowledgeStore, storagePath string) *ArtifactGenerator {
	return &ArtifactGenerator{store: st, storagePath: storagePath, now: time.Now}
}

func (a *ArtifactGenerator) AgentType() models.AgentType { return AgentTypeArtifact }
func (a *ArtifactGenerator) Start(context.Context) error { return nil }
func (a *ArtifactGenerator) Stop()                        {}

func (a *ArtifactGenerator) HandleEnvelope(ctx context.Context, req models.Envelope) (models.Envelope, error) {
	var in ArtifactRequest
	if err := decodePayload(req.Payload, &in); err != nil {
		return models.Envelope{}, err
	}
	artifacts, err := a.Generate(ctx, in)
	if err != nil {
		return models.Envelope{}, err
	}
	payload, err := encodePayload(ArtifactResponse{Artifacts: artifacts})
	if err != nil {
		return models.Envelope{}, err
	}
	return models.Envelope{Payload: payload}, nil
}

// Generate writes a markdown rendering of the summary/reasoning and a raw
// JSON dump of the same, then records both as Artifact rows. At least one
// artifact is produced even if the filesystem write fails for the other
// (§4.F "at least one persisted artifact" success condition is evaluated
// by the pipeline across both attempts).
func (a *ArtifactGenerator) Generate(ctx context.Context, in ArtifactRequest) ([]models.Artifact, error) {
	now := a.now().UTC()
	base := slugutil.Slugify(in.Title) + "_" + now.Format("20060102")
	dir := filepath.Join(a.storagePath, in.TaskID)

	var artifacts []models.Artifact
	var lastErr error

	if path, content, err := a.writeMarkdown(dir, base, in); err != nil {
		lastErr = err
	} else {
		id, err := a.store.CreateArtifact(ctx, models.Artifact{
			TaskID: in.TaskID, Title: in.Title, Kind: models.MediaMarkdown,
			Content: content, Path: path, CreatedAt: now,
		})
		if err != nil {
			lastErr = err
		} else {
			artifacts = append(artifacts, models.Artifact{ID: id, TaskID: in.TaskID, Title: in.Title, Kind: models.MediaMarkdown, Path: path, CreatedAt: now})
		}
	}

	if path, content, err := a.writeJSON(dir, base, in); err != nil {
		lastErr = err
	} else {
		id, err := a.store.CreateArtifact(ctx, models.Artifact{
			TaskID: in.TaskID, Title: in.Title, Kind: models.MediaJSON,
			Content: content, Path: path, CreatedAt: now,
		})
		if err != nil {
			lastErr = err
		} else {
			artifacts = append(artifacts, models.Artifact{ID: id, TaskID: in.TaskID, Title: in.Title, Kind: models.MediaJSON, Path: path, CreatedAt: now})
		}
	}

	if len(artifacts) == 0 {
		return nil, fmt.Errorf("agents: artifact generation produced nothing: %w", lastErr)
	}
	return artifacts, nil
}

func (a *ArtifactGenerator) writeMarkdown(dir, base string, in ArtifactRequest) (path, content string, err error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", in.Title)
	b.WriteString("## Executive Summary\n\n")
	b.WriteString(in.Summary.ExecutiveSummary)
	b.WriteString("\n\n## Key Findings\n\n")
	for _, f := range in.Summary.KeyFindings {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\n## Synthesis\n\n")
	b.WriteString(in.Reasoning.Synthesis)
	b.WriteString("\n\n## Recommendations\n\n")
	for _, r := range in.Reasoning.Recommendations {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	content = b.String()

	path = filepath.Join(dir, base+".md")
	if err := a.writeFile(path, []byte(content)); err != nil {
		return "", "", err
	}
	return path, content, nil
}

func (a *ArtifactGenerator) writeJSON(dir, base string, in ArtifactRequest) (path, content string, err error) {
	data, err := json.MarshalIndent(map[string]any{
		"title":     in.Title,
		"summary":   in.Summary,
		"reasoning": in.Reasoning,
	}, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("agents: encode artifact json: %w", err)
	}
	path = filepath.Join(dir, base+".json")
	if err := a.writeFile(path, data); err != nil {
		return "", "", err
	}
	return path, string(data), nil
}

func (a *ArtifactGenerator) writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("agents: mkdir artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("agents: write artifact file: %w", err)
	}
	return nil
}
