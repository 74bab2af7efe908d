// Package agents implements the stage handlers of spec.md §4.G: the
// Decomposer, Planner, per-provider search agents, Aggregator,
// Summarizer, Reasoner, and Artifact generator. Each agent subscribes to
// exactly one request topic on the Messaging Bus and replies on a
// canonical reply topic, correlated by conversation id (§4.B, §9).
package agents

import "github.com/nexus-research/nexus-orchestrator/pkg/models"

// RequestTopic returns the canonical request topic for an agent type.
func RequestTopic(agentType models.AgentType) string {
	return "agents:" + string(agentType) + ":request"
}

// ReplyTopic returns the canonical reply topic for an agent type.
func ReplyTopic(agentType models.AgentType) string {
	return "agents:" + string(agentType) + ":reply"
}

// Non-subtask-assignable agent types used directly by pipeline stages.
const (
	AgentTypeDecomposer  models.AgentType = "decomposer"
	AgentTypePlanner     models.AgentType = "planner"
	AgentTypeAggregator  models.AgentType = "aggregator"
	AgentTypeSummarizer  models.AgentType = "summarizer"
	AgentTypeReasoner    models.AgentType = "reasoner"
	AgentTypeArtifact    models.AgentType = "artifact_generator"
)
