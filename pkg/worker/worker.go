// Package worker implements the Worker (spec.md §4.E): a long-running
// consumer with a stable id that pops jobs off the Work Queue, ensures the
// backing Task row exists, and drives it through the Orchestration
// Pipeline, persisting the outcome and emitting lifecycle events along the
// way.
//
// Grounded on the teacher's pkg/queue/worker.go run-loop shape (stopCh,
// stopOnce, a health-tracking mutex, a heartbeat goroutine alongside the
// main poll loop) generalized from its session-claiming/ent-transaction
// idiom to the Work Queue's blocking_pop contract, and on original_source's
// worker.py for the exact step sequence of spec.md §4.E (ensure task row,
// transition to planning, hand off to the pipeline, persist on success or
// failure, call complete unconditionally).
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus-orchestrator/pkg/config"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
	"github.com/nexus-research/nexus-orchestrator/pkg/monitor"
	"github.com/nexus-research/nexus-orchestrator/pkg/pipeline"
	"github.com/nexus-research/nexus-orchestrator/pkg/queue"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
)

// Status is a Worker's own liveness/activity state, reported on its
// heartbeat (§4.E "published every 10s with status and current task id").
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
)

// taskStatusChannelPrefix names the per-task status pub/sub channel
// supplemented from original_source's worker.py (SPEC_FULL.md §4): a
// narrower, best-effort channel than the Monitoring Event Bus that some
// clients may prefer to subscribe to directly.
const taskStatusChannelPrefix = "nexus:task_status:"

// Worker drains the Work Queue and drives each job through the
// Orchestration Pipeline.
type Worker struct {
	id       string
	queue    *queue.Queue
	hb       *queue.Heartbeat
	delayed  *queue.DelayedScheduler
	pipeline *pipeline.Pipeline
	store    store.KnowledgeStore
	mon      monitor.Publisher
	rdb      *redis.Client // optional: per-task status channel only
	cfg      config.WorkerConfig
	hbEvery  time.Duration
	log      *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        Status
	currentTaskID string
}

// New constructs a Worker with a stable id. rdb may be nil, in which case
// the per-task status channel publish is skipped.
func New(id string, q *queue.Queue, hb *queue.Heartbeat, delayed *queue.DelayedScheduler, p *pipeline.Pipeline, st store.KnowledgeStore, mon monitor.Publisher, rdb *redis.Client, cfg config.WorkerConfig, heartbeatEvery time.Duration, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		id: id, queue: q, hb: hb, delayed: delayed, pipeline: p, store: st, mon: mon, rdb: rdb,
		cfg: cfg, hbEvery: heartbeatEvery, log: log,
		stopCh: make(chan struct{}), status: StatusIdle,
	}
}

// Start registers the worker's first heartbeat, emits worker_started, and
// begins the poll loop and heartbeat loop in the background.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.hb.Beat(ctx, w.id, string(StatusIdle), ""); err != nil {
		return err
	}
	w.mon.Publish(ctx, monitor.NewEvent(models.EventWorkerStarted, func(e *models.Event) {
		e.WorkerID = w.id
	}), "")

	w.wg.Add(2)
	go w.runHeartbeat(ctx)
	go w.run(ctx)
	return nil
}

// Stop signals the poll loop to stop accepting new jobs and blocks until
// the in-flight task (if any) finishes and the worker exits (§4.E "lets
// the in-flight task run to completion ... and exits").
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.mon.Publish(context.Background(), monitor.NewEvent(models.EventWorkerStopped, func(e *models.Event) {
		e.WorkerID = w.id
	}), "")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.BlockingPop(ctx, w.id, w.cfg.PopTimeout)
		if err != nil {
			if !errors.Is(err, queue.ErrEmpty) {
				w.log.Warn("worker: blocking pop failed", "worker_id", w.id, "error", err)
			}
			continue
		}

		w.processJob(ctx, job)
	}
}

func (w *Worker) runHeartbeat(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.hbEvery)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			status, taskID := w.status, w.currentTaskID
			w.mu.RUnlock()
			if err := w.hb.Beat(ctx, w.id, string(status), taskID); err != nil {
				w.log.Warn("worker: heartbeat failed", "worker_id", w.id, "error", err)
			}
			w.mon.Publish(ctx, monitor.NewEvent(models.EventWorkerHeartbeat, func(e *models.Event) {
				e.WorkerID = w.id
				e.Status = string(status)
				e.TaskID = taskID
			}), "")
		}
	}
}

// processJob ensures the task row exists, hands it to the pipeline bounded
// by the per-run stage deadline, and persists the outcome; once the
// pipeline has run it calls Complete on the queue whether the run
// succeeded or failed (§4.E step 5: "the error is durable; no automatic
// requeue from the worker"). If the task row cannot be ensured it returns
// before the pipeline run without calling Complete.
func (w *Worker) processJob(ctx context.Context, job models.JobEnvelope) {
	w.setActivity(StatusWorking, job.TaskID)
	defer w.setActivity(StatusIdle, "")

	task, err := w.ensureTask(ctx, job)
	if err != nil {
		w.log.Warn("worker: ensure task row failed", "task_id", job.TaskID, "error", err)
		return
	}

	w.transition(ctx, task.ID, models.TaskStatusPlanning)
	w.mon.Publish(ctx, monitor.NewEvent(models.EventTaskStarted, func(e *models.Event) {
		e.TaskID = task.ID
		e.WorkerID = w.id
	}), "")

	runCtx, cancel := context.WithTimeout(ctx, w.cfg.StageDeadline)
	result, runErr := w.pipeline.Run(runCtx, task)
	cancel()

	if runErr != nil {
		w.handleFailure(ctx, task, runErr)
	} else {
		w.handleSuccess(ctx, task, result)
	}

	if err := w.queue.Complete(ctx, w.id, job); err != nil {
		w.log.Warn("worker: complete queue entry failed", "task_id", task.ID, "error", err)
	}

	if runErr == nil && task.ContinuousMode && w.delayed != nil {
		w.scheduleContinuation(ctx, task, job)
	}
}

func (w *Worker) ensureTask(ctx context.Context, job models.JobEnvelope) (models.Task, error) {
	existing, ok, err := w.store.GetTask(ctx, job.TaskID)
	if err != nil {
		return models.Task{}, err
	}
	if ok {
		existing.RunCount = job.RunCount
		existing.ContinuousMode = job.ContinuousMode
		existing.ContinuousIntervalHours = job.ContinuousIntervalHours
		return existing, nil
	}

	task := models.Task{
		ID:                      job.TaskID,
		Title:                   job.Title,
		Description:             job.Description,
		Status:                  models.TaskStatusCreated,
		ContinuousMode:          job.ContinuousMode,
		ContinuousIntervalHours: job.ContinuousIntervalHours,
		RunCount:                job.RunCount,
	}
	if err := w.store.CreateTaskIfAbsent(ctx, task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (w *Worker) handleSuccess(ctx context.Context, task models.Task, result pipeline.Result) {
	if err := w.store.CompleteTask(ctx, task.ID, &result.Results, &result.Summary, &result.Reasoning); err != nil {
		w.log.Warn("worker: persist task completion failed", "task_id", task.ID, "error", err)
	}
	w.publishTaskStatus(ctx, task.ID, string(models.TaskStatusCompleted))
	w.mon.Publish(ctx, monitor.NewEvent(models.EventTaskCompleted, func(e *models.Event) {
		e.TaskID = task.ID
		e.WorkerID = w.id
	}), "")
}

func (w *Worker) handleFailure(ctx context.Context, task models.Task, runErr error) {
	category := "stage_failed"
	var stageErr *pipeline.StageError
	if errors.As(runErr, &stageErr) {
		category = stageErr.Category()
	}
	if err := w.store.FailTask(ctx, task.ID, runErr.Error(), category); err != nil {
		w.log.Warn("worker: persist task failure failed", "task_id", task.ID, "error", err)
	}
	w.publishTaskStatus(ctx, task.ID, string(models.TaskStatusFailed))
	w.mon.Publish(ctx, monitor.NewEvent(models.EventTaskFailed, func(e *models.Event) {
		e.TaskID = task.ID
		e.WorkerID = w.id
		e.Error = runErr.Error()
	}), "")
}

func (w *Worker) scheduleContinuation(ctx context.Context, task models.Task, job models.JobEnvelope) {
	runCount, err := w.store.IncrementRunCount(ctx, task.ID)
	if err != nil {
		w.log.Warn("worker: increment run count failed", "task_id", task.ID, "error", err)
		return
	}
	interval := time.Duration(task.ContinuousIntervalHours) * time.Hour
	if interval <= 0 {
		interval = time.Hour
	}
	if err := w.delayed.ScheduleContinuation(ctx, job, runCount, interval); err != nil {
		w.log.Warn("worker: schedule continuation failed", "task_id", task.ID, "error", err)
	}
}

func (w *Worker) transition(ctx context.Context, taskID string, status models.TaskStatus) {
	if err := w.store.UpdateTaskStatus(ctx, taskID, status); err != nil {
		w.log.Warn("worker: transition task status failed", "task_id", taskID, "status", status, "error", err)
	}
	w.publishTaskStatus(ctx, taskID, string(status))
}

// publishTaskStatus is the best-effort per-task channel publish
// supplemented from original_source's worker.py (SPEC_FULL.md §4); a
// publish failure here never affects task outcome.
func (w *Worker) publishTaskStatus(ctx context.Context, taskID, status string) {
	if w.rdb == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{"task_id": taskID, "status": status})
	if err != nil {
		return
	}
	if err := w.rdb.Publish(ctx, taskStatusChannelPrefix+taskID, payload).Err(); err != nil {
		w.log.Warn("worker: publish task status failed", "task_id", taskID, "error", err)
	}
}

func (w *Worker) setActivity(status Status, taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentTaskID = taskID
}
