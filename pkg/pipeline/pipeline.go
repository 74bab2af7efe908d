// Package pipeline implements the Orchestration Pipeline (spec.md §4.F):
// a staged state machine that drives a Research Task through
// planning -> searching -> aggregating -> summarizing -> reasoning ->
// generating_artifacts -> completed, delegating every stage's actual work
// to an Agent over the Messaging Bus and never performing agent work
// itself.
//
// Grounded on the teacher's pkg/queue/worker.go stage-loop shape (claim,
// execute, mark terminal, emit lifecycle events at each transition) and
// original_source's src/worker.py stage sequence, generalized from a
// single synchronous pipeline call into the explicit state machine named
// in spec.md §4.F.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nexus-research/nexus-orchestrator/pkg/agents"
	"github.com/nexus-research/nexus-orchestrator/pkg/bus"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
	"github.com/nexus-research/nexus-orchestrator/pkg/monitor"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
)

// Result is what a completed Run hands back to the Worker to persist on
// the task row (§4.E "persist results/summary/reasoning").
type Result struct {
	Results   string
	Summary   string
	Reasoning string
}

// Pipeline drives one Research Task through every stage of §4.F.
type Pipeline struct {
	bus   bus.MessagingBus
	store store.KnowledgeStore
	mon   monitor.Publisher
	log   *slog.Logger
}

// New constructs a Pipeline.
func New(b bus.MessagingBus, st store.KnowledgeStore, mon monitor.Publisher, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{bus: b, store: st, mon: mon, log: log}
}

// Run advances task through every non-terminal stage in order, returning
// the final Result on success or a *StageError on terminal failure. The
// caller (the Worker) is responsible for transitioning the task row to
// completed/failed and calling Complete on the queue.
func (p *Pipeline) Run(ctx context.Context, task models.Task) (Result, error) {
	subtasks, err := p.runPlanning(ctx, task)
	if err != nil {
		return Result{}, err
	}

	responses := p.runSearching(ctx, task, subtasks)

	aggregated, err := p.runAggregating(ctx, task, responses)
	if err != nil {
		return Result{}, err
	}

	summary, err := p.runSummarizing(ctx, task, aggregated)
	if err != nil {
		return Result{}, err
	}

	reasoning, err := p.runReasoning(ctx, task, summary, aggregated)
	if err != nil {
		return Result{}, err
	}

	artifacts, err := p.runGeneratingArtifacts(ctx, task, summary, reasoning)
	if err != nil {
		return Result{}, err
	}

	summaryJSON, _ := json.Marshal(summary)
	reasoningJSON, _ := json.Marshal(reasoning)
	resultsJSON, _ := json.Marshal(map[string]any{"artifact_count": len(artifacts)})

	return Result{
		Results:   string(resultsJSON),
		Summary:   string(summaryJSON),
		Reasoning: string(reasoningJSON),
	}, nil
}

// beginStage opens an operation row for (task.ID, stage) and emits
// phase_started, unless a prior run of this exact stage already
// completed, in which case it reports skip=true (§4.F replay safety).
func (p *Pipeline) beginStage(ctx context.Context, task models.Task, stage models.TaskStatus) (operationID string, skip bool, err error) {
	opID, err := p.store.BeginOperation(ctx, task.ID, stage)
	if errors.Is(err, store.ErrOperationAlreadyCompleted) {
		p.log.Info("pipeline: skipping already-completed stage", "task_id", task.ID, "stage", stage)
		return "", true, nil
	}
	if err != nil {
		return "", false, &StageError{Stage: string(stage), Kind: KindStoreError, Err: err}
	}

	if err := p.store.UpdateTaskStatus(ctx, task.ID, stage); err != nil {
		p.log.Warn("pipeline: update task status failed", "task_id", task.ID, "stage", stage, "error", err)
	}

	p.mon.Publish(ctx, monitor.NewEvent(models.EventPhaseStarted, func(e *models.Event) {
		e.TaskID = task.ID
		e.Phase = string(stage)
		e.Status = "started"
	}), "")
	return opID, false, nil
}

// endStage closes the operation row and emits phase_completed.
func (p *Pipeline) endStage(ctx context.Context, task models.Task, stage models.TaskStatus, operationID string, started time.Time, status models.OperationStatus, stageErr string, counts map[string]int) {
	if operationID != "" {
		if err := p.store.CompleteOperation(ctx, operationID, status, stageErr, counts); err != nil {
			p.log.Warn("pipeline: complete operation failed", "task_id", task.ID, "stage", stage, "error", err)
		}
	}
	p.mon.Publish(ctx, monitor.NewEvent(models.EventPhaseCompleted, func(e *models.Event) {
		e.TaskID = task.ID
		e.Phase = string(stage)
		e.Status = string(status)
		e.DurationMS = time.Since(started).Milliseconds()
		e.Counts = counts
		e.Error = stageErr
	}), "")
}

// runPlanning executes the planning stage: Decomposer then Planner,
// retrying once on failure before failing the task (§4.F).
func (p *Pipeline) runPlanning(ctx context.Context, task models.Task) ([]leaf, error) {
	stage := models.TaskStatusPlanning
	opID, skip, err := p.beginStage(ctx, task, stage)
	if err != nil {
		return nil, err
	}
	if skip {
		return nil, nil
	}
	started := time.Now()

	var decomposed agents.DecomposeResponse
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		lastErr = request(ctx, p.bus, agents.AgentTypeDecomposer, agents.DecomposeRequest{
			TaskID:      task.ID,
			Description: task.Description,
			MaxDepth:    3,
			MaxBreadth:  5,
		}, &decomposed)
		if lastErr == nil && len(decomposed.Subtasks) > 0 {
			break
		}
	}
	if lastErr != nil || len(decomposed.Subtasks) == 0 {
		p.endStage(ctx, task, stage, opID, started, models.OperationStatusFailed, errString(lastErr), nil)
		return nil, &StageError{Stage: string(stage), Kind: KindParseError, Err: fmt.Errorf("decomposition produced no subtasks: %w", lastErr)}
	}

	var planned agents.PlanResponse
	if err := request(ctx, p.bus, agents.AgentTypePlanner, agents.PlanRequest{Subtasks: decomposed.Subtasks}, &planned); err != nil {
		p.endStage(ctx, task, stage, opID, started, models.OperationStatusFailed, err.Error(), nil)
		return nil, &StageError{Stage: string(stage), Kind: KindStageFailed, Err: err}
	}

	p.endStage(ctx, task, stage, opID, started, models.OperationStatusCompleted, "", map[string]int{"subtasks": len(decomposed.Subtasks)})
	return annotateLeaves(decomposed.Subtasks, planned.Plan), nil
}

// leaf pairs a Subtask with its Planner-assigned agent type, for the
// searching stage's routing decision.
type leaf struct {
	subtaskID string
	query     string
	agent     models.AgentType
}

func annotateLeaves(subtasks []models.Subtask, plan []agents.PlannedSubtask) []leaf {
	agentByID := make(map[string]models.AgentType, len(plan))
	for _, p := range plan {
		agentByID[p.SubtaskID] = p.AssignedAgent
	}
	out := make([]leaf, 0, len(subtasks))
	for _, st := range subtasks {
		if len(st.ChildIDs) > 0 {
			continue // only leaves are dispatched to the searching stage (§4.F)
		}
		agentType := agentByID[st.ID]
		if agentType == "" {
			agentType = models.AgentTypeQuerySearch
		}
		query := st.Description
		if query == "" {
			query = st.Title
		}
		out = append(out, leaf{subtaskID: st.ID, query: query, agent: agentType})
	}
	return out
}

// runSearching dispatches every leaf sub-question to its assigned search
// agent concurrently. Per-question failures never fail the stage as a
// whole (§4.F); a leaf whose request errors contributes a SearchResponse
// with the request error appended to ProviderErrors.
func (p *Pipeline) runSearching(ctx context.Context, task models.Task, leaves []leaf) []agents.SearchResponse {
	stage := models.TaskStatusSearching
	opID, skip, err := p.beginStage(ctx, task, stage)
	if err != nil || skip {
		return nil
	}
	started := time.Now()

	type indexed struct {
		idx int
		res agents.SearchResponse
	}
	results := make(chan indexed, len(leaves))
	for i, l := range leaves {
		go func(i int, l leaf) {
			var resp agents.SearchResponse
			if rerr := request(ctx, p.bus, l.agent, agents.SearchRequest{
				OperationID: opID,
				SubtaskID:   l.subtaskID,
				Query:       l.query,
			}, &resp); rerr != nil {
				resp.ProviderErrors = append(resp.ProviderErrors, rerr.Error())
			}
			results <- indexed{idx: i, res: resp}
		}(i, l)
	}

	responses := make([]agents.SearchResponse, len(leaves))
	for range leaves {
		r := <-results
		responses[r.idx] = r.res
	}

	p.endStage(ctx, task, stage, opID, started, models.OperationStatusCompleted, "", map[string]int{"questions": len(leaves)})
	return responses
}

// runAggregating delegates deduplication and key-point union to the
// Aggregator agent; it fails only on internal error (§4.F).
func (p *Pipeline) runAggregating(ctx context.Context, task models.Task, responses []agents.SearchResponse) (agents.AggregateResponse, error) {
	stage := models.TaskStatusAggregating
	opID, skip, err := p.beginStage(ctx, task, stage)
	if err != nil {
		return agents.AggregateResponse{}, err
	}
	if skip {
		return agents.AggregateResponse{}, nil
	}
	started := time.Now()

	var aggregated agents.AggregateResponse
	if err := request(ctx, p.bus, agents.AgentTypeAggregator, agents.AggregateRequest{
		TaskID:    task.ID,
		Responses: responses,
	}, &aggregated); err != nil {
		p.endStage(ctx, task, stage, opID, started, models.OperationStatusFailed, err.Error(), nil)
		return agents.AggregateResponse{}, &StageError{Stage: string(stage), Kind: KindStoreError, Err: err}
	}

	p.endStage(ctx, task, stage, opID, started, models.OperationStatusCompleted, "", map[string]int{"sources": len(aggregated.Sources)})
	return aggregated, nil
}

// runSummarizing retries once on failure, then falls back to a
// placeholder summary and continues rather than failing the task (§4.F).
func (p *Pipeline) runSummarizing(ctx context.Context, task models.Task, aggregated agents.AggregateResponse) (agents.Summary, error) {
	stage := models.TaskStatusSummarizing
	opID, skip, err := p.beginStage(ctx, task, stage)
	if err != nil {
		return agents.Summary{}, err
	}
	if skip {
		return agents.Summary{}, nil
	}
	started := time.Now()

	sources := sourceURLs(aggregated)
	var summary agents.Summary
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		lastErr = request(ctx, p.bus, agents.AgentTypeSummarizer, agents.SummarizeRequest{
			TaskQuery: task.Description,
			Sources:   sources,
			KeyPoints: aggregated.KeyPoints,
		}, &summary)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		summary = agents.Placeholder(task.Description)
		p.endStage(ctx, task, stage, opID, started, models.OperationStatusCompleted, lastErr.Error(), map[string]int{"placeholder": 1})
		return summary, nil
	}

	p.endStage(ctx, task, stage, opID, started, models.OperationStatusCompleted, "", map[string]int{"key_findings": len(summary.KeyFindings)})
	return summary, nil
}

// runReasoning mirrors runSummarizing's retry-then-placeholder policy.
func (p *Pipeline) runReasoning(ctx context.Context, task models.Task, summary agents.Summary, aggregated agents.AggregateResponse) (agents.Reasoning, error) {
	stage := models.TaskStatusReasoning
	opID, skip, err := p.beginStage(ctx, task, stage)
	if err != nil {
		return agents.Reasoning{}, err
	}
	if skip {
		return agents.Reasoning{}, nil
	}
	started := time.Now()

	summaryJSON, _ := json.Marshal(summary)
	var reasoning agents.Reasoning
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		lastErr = request(ctx, p.bus, agents.AgentTypeReasoner, agents.ReasonRequest{
			TaskQuery: task.Description,
			Summary:   string(summaryJSON),
			Sources:   sourceURLs(aggregated),
		}, &reasoning)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		reasoning = agents.PlaceholderReasoning(task.Description)
		p.endStage(ctx, task, stage, opID, started, models.OperationStatusCompleted, lastErr.Error(), map[string]int{"placeholder": 1})
		return reasoning, nil
	}

	p.endStage(ctx, task, stage, opID, started, models.OperationStatusCompleted, "", map[string]int{"insights": len(reasoning.Insights)})
	return reasoning, nil
}

// runGeneratingArtifacts retries once on failure, then fails the task
// (§4.F): this is the last stage, so an artifact-less task is a genuine
// failure rather than something later stages can paper over.
func (p *Pipeline) runGeneratingArtifacts(ctx context.Context, task models.Task, summary agents.Summary, reasoning agents.Reasoning) ([]models.Artifact, error) {
	stage := models.TaskStatusGeneratingArtifacts
	opID, skip, err := p.beginStage(ctx, task, stage)
	if err != nil {
		return nil, err
	}
	if skip {
		return nil, nil
	}
	started := time.Now()

	var resp agents.ArtifactResponse
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		lastErr = request(ctx, p.bus, agents.AgentTypeArtifact, agents.ArtifactRequest{
			TaskID:    task.ID,
			Title:     task.Title,
			Summary:   summary,
			Reasoning: reasoning,
		}, &resp)
		if lastErr == nil && len(resp.Artifacts) > 0 {
			break
		}
	}
	if lastErr != nil || len(resp.Artifacts) == 0 {
		p.endStage(ctx, task, stage, opID, started, models.OperationStatusFailed, errString(lastErr), nil)
		return nil, &StageError{Stage: string(stage), Kind: KindStageFailed, Err: fmt.Errorf("no artifacts produced: %w", lastErr)}
	}

	p.endStage(ctx, task, stage, opID, started, models.OperationStatusCompleted, "", map[string]int{"artifacts": len(resp.Artifacts)})
	return resp.Artifacts, nil
}

func sourceURLs(aggregated agents.AggregateResponse) []string {
	urls := make([]string, 0, len(aggregated.Sources))
	for _, s := range aggregated.Sources {
		urls = append(urls, s.URL)
	}
	sort.Strings(urls)
	return urls
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
