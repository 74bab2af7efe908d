package models

// SubtaskStatus mirrors a subset of TaskStatus applicable to one
// decomposition node's own lifecycle.
type SubtaskStatus string

const (
	SubtaskStatusPending    SubtaskStatus = "pending"
	SubtaskStatusInProgress SubtaskStatus = "in_progress"
	SubtaskStatusDone       SubtaskStatus = "done"
	SubtaskStatusFailed     SubtaskStatus = "failed"
)

// AgentType selects which Agent handles a Subtask, per the Planner's
// assignment rule (§4.G).
type AgentType string

const (
	AgentTypeBrowserSearch  AgentType = "browser_search"
	AgentTypeQuerySearch    AgentType = "query_search"
	AgentTypeSummarization  AgentType = "summarization"
)

// Subtask is one node in the decomposition tree for a Task (§3). Forms a
// finite tree rooted at one subtask per task; cycles are forbidden by
// construction (children are only ever appended, never linked back to an
// ancestor).
type Subtask struct {
	ID               string
	TaskID           string
	ParentID         *string
	Title            string
	Description      string
	KeyQuestions     []string
	DataSources      []string
	Status           SubtaskStatus
	AssignedAgent    AgentType
	ExpectedHours    float64
	Result           *string
	ChildIDs         []string
	Depth            int
}

// DecompositionNode is the wire shape the Decomposer agent parses from the
// LLM's JSON tree before it is flattened into a Subtask (§4.G).
type DecompositionNode struct {
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	KeyQuestions []string             `json:"key_questions"`
	DataSources  []string             `json:"data_sources"`
	Subtopics    []DecompositionNode  `json:"subtopics"`
}
