package models

// EventType enumerates the Monitoring Event types (§6).
type EventType string

const (
	EventWorkerStarted   EventType = "worker_started"
	EventWorkerHeartbeat EventType = "worker_heartbeat"
	EventWorkerStopped   EventType = "worker_stopped"
	EventTaskEnqueued    EventType = "task_enqueued"
	EventTaskStarted     EventType = "task_started"
	EventTaskRetry       EventType = "task_retry"
	EventTaskCompleted   EventType = "task_completed"
	EventTaskFailed      EventType = "task_failed"
	EventTaskStalled     EventType = "task_stalled"
	EventPhaseStarted    EventType = "phase_started"
	EventPhaseCompleted  EventType = "phase_completed"
	EventQueueDepthUpdate EventType = "queue_depth_update"
	EventStatsSnapshot   EventType = "stats_snapshot"
)

// Event is the Monitoring Event (§3). Ephemeral: never persisted by the
// core, only published and observed. The struct has no `json` tags and
// pkg/monitor marshals it as is, so the serialized keys are the Go field
// names (EventID, TS, EventType, ...), not snake_case names such as
// event_id or event_type.
type Event struct {
	EventID      string
	TS           string
	EventType    EventType
	ProjectID    string
	ParentTaskID string
	TaskID       string
	TaskType     string
	Phase        string
	WorkerID     string
	RetryCount   int
	Status       string
	DurationMS   int64
	Counts       map[string]int
	Queue        map[string]int
	Message      string
	Error        string
	Meta         map[string]any
}
