// Package api implements the HTTP intake surface (spec.md §6): task
// submission, task lookup, and a one-shot monitoring snapshot. The Live
// Event Endpoint itself lives in pkg/live; this package only wires its
// WebSocket route to pkg/live.Manager.
//
// Grounded on the teacher's pkg/api/handlers.go gin handler shape
// (*gin.Context, c.ShouldBindJSON, c.JSON with gin.H) — tarsy's declared
// direct dependency is gin, not the echo v5 used inconsistently elsewhere
// in its own tree (see DESIGN.md).
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexus-research/nexus-orchestrator/pkg/live"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
	"github.com/nexus-research/nexus-orchestrator/pkg/monitor"
	"github.com/nexus-research/nexus-orchestrator/pkg/queue"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
)

// snapshotTimeout bounds the store/queue calls a snapshot request makes.
const snapshotTimeout = 5 * time.Second

// Server is the HTTP intake handler set.
type Server struct {
	store     store.KnowledgeStore
	queue     *queue.Queue
	hb        *queue.Heartbeat
	mon       monitor.Publisher
	live      *live.Manager
	projectID string
	log       *slog.Logger
}

// NewServer constructs a Server. projectID tags every task this process
// enqueues for monitoring purposes; an empty string is valid (single-tenant
// deployments).
func NewServer(st store.KnowledgeStore, q *queue.Queue, hb *queue.Heartbeat, mon monitor.Publisher, liveMgr *live.Manager, projectID string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: st, queue: q, hb: hb, mon: mon, live: liveMgr, projectID: projectID, log: log}
}

// Register mounts every route this package owns onto router.
func (s *Server) Register(router *gin.Engine) {
	router.GET("/health", s.healthHandler)
	router.POST("/tasks", s.createTaskHandler)
	router.GET("/tasks/:task_id", s.getTaskHandler)
	router.GET("/monitor/snapshot", s.snapshotHandler)
	router.GET("/ws/monitor", s.wsMonitorHandler)
}

// createTaskRequest is the POST /tasks body (spec.md §6).
type createTaskRequest struct {
	Title                   string `json:"title" binding:"required"`
	Description             string `json:"description" binding:"required"`
	ContinuousMode          bool   `json:"continuous_mode"`
	ContinuousIntervalHours int    `json:"continuous_interval_hours"`
}

// createTaskHandler handles POST /tasks: creates the Task row, enqueues a
// normal-priority job, publishes task_enqueued, and returns the new id.
func (s *Server) createTaskHandler(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taskID := uuid.NewString()
	task := models.Task{
		ID:                      taskID,
		Title:                   req.Title,
		Description:             req.Description,
		Status:                  models.TaskStatusCreated,
		ContinuousMode:          req.ContinuousMode,
		ContinuousIntervalHours: req.ContinuousIntervalHours,
	}
	if err := s.store.CreateTaskIfAbsent(c.Request.Context(), task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	job := models.JobEnvelope{
		TaskID:                  taskID,
		Title:                   req.Title,
		Description:             req.Description,
		ContinuousMode:          req.ContinuousMode,
		ContinuousIntervalHours: req.ContinuousIntervalHours,
	}
	if err := s.queue.Enqueue(c.Request.Context(), job, models.PriorityNormal); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.mon.Publish(c.Request.Context(), monitor.NewEvent(models.EventTaskEnqueued, func(e *models.Event) {
		e.TaskID = taskID
		e.ProjectID = s.projectID
	}), s.projectID)

	c.JSON(http.StatusCreated, gin.H{"task_id": taskID})
}

// getTaskResponse is the GET /tasks/{task_id} body (spec.md §6).
type getTaskResponse struct {
	TaskID                  string            `json:"task_id"`
	Title                   string            `json:"title"`
	Description             string            `json:"description"`
	Status                  models.TaskStatus `json:"status"`
	ContinuousMode          bool              `json:"continuous_mode"`
	ContinuousIntervalHours int               `json:"continuous_interval_hours"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
	Artifacts               []models.Artifact `json:"artifacts"`
}

func (s *Server) getTaskHandler(c *gin.Context) {
	taskID := c.Param("task_id")
	task, ok, err := s.store.GetTask(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	artifacts, err := s.store.ListArtifactsForTask(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, getTaskResponse{
		TaskID:                  task.ID,
		Title:                   task.Title,
		Description:             task.Description,
		Status:                  task.Status,
		ContinuousMode:          task.ContinuousMode,
		ContinuousIntervalHours: task.ContinuousIntervalHours,
		CreatedAt:               task.CreatedAt,
		UpdatedAt:               task.UpdatedAt,
		Artifacts:               artifacts,
	})
}

// snapshotHandler handles GET /monitor/snapshot: a one-shot stats_snapshot
// event built from the Work Queue's current depths and the Heartbeat's
// online-worker count (spec.md §6).
func (s *Server) snapshotHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	depths, err := s.queue.Depths(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	online, err := s.hb.OnlineWorkers(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	event := monitor.NewEvent(models.EventStatsSnapshot, func(e *models.Event) {
		e.ProjectID = c.Query("project_id")
		e.TaskID = c.Query("task_id")
		e.Queue = depths
		e.Counts = map[string]int{"online_workers": online}
	})
	c.JSON(http.StatusOK, event)
}

// wsMonitorHandler upgrades GET /ws/monitor to the Live Event Endpoint,
// computing its connect-time snapshot from the same queue/heartbeat state
// as snapshotHandler.
func (s *Server) wsMonitorHandler(c *gin.Context) {
	err := s.live.ServeWS(c.Writer, c.Request, func(ctx context.Context) (live.Snapshot, error) {
		depths, err := s.queue.Depths(ctx)
		if err != nil {
			return live.Snapshot{}, err
		}
		online, err := s.hb.OnlineWorkers(ctx)
		if err != nil {
			return live.Snapshot{}, err
		}
		return live.Snapshot{Queue: depths, OnlineWorkers: online}, nil
	})
	if err != nil {
		s.log.Warn("api: websocket upgrade failed", "error", err)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy := s.store.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": map[bool]string{true: "healthy", false: "unhealthy"}[healthy]})
}
