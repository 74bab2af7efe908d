package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus-orchestrator/pkg/agents"
	"github.com/nexus-research/nexus-orchestrator/pkg/bus"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// defaultReplyTimeout is the caller-supplied deadline WaitForReply uses
// when a stage does not override it (§5 Cancellation and timeouts).
const defaultReplyTimeout = 60 * time.Second

// request sends a correlated request to agentType over the Messaging Bus
// and decodes its reply into out. The request is published first; the
// reply is then awaited with WaitForReply, which subscribes a temporary
// handler on the agent's reply topic for this one call.
func request(ctx context.Context, b bus.MessagingBus, agentType models.AgentType, in, out any) error {
	payload, err := toPayload(in)
	if err != nil {
		return fmt.Errorf("pipeline: encode request: %w", err)
	}

	env := models.Envelope{
		Sender:         "pipeline",
		Topic:          agents.RequestTopic(agentType),
		Payload:        payload,
		MessageID:      uuid.NewString(),
		ConversationID: uuid.NewString(),
	}
	if err := b.Publish(ctx, env); err != nil {
		return fmt.Errorf("pipeline: publish request to %s: %w", agentType, err)
	}

	reply, err := b.WaitForReply(ctx, agents.ReplyTopic(agentType), env.ConversationID, env.MessageID, defaultReplyTimeout)
	if err != nil {
		return fmt.Errorf("pipeline: wait for %s reply: %w", agentType, err)
	}
	if errMsg, ok := reply.Payload["error"]; ok {
		return fmt.Errorf("pipeline: %s agent error: %v", agentType, errMsg)
	}
	if out == nil {
		return nil
	}
	if err := fromPayload(reply.Payload, out); err != nil {
		return fmt.Errorf("pipeline: decode %s reply: %w", agentType, err)
	}
	return nil
}

func toPayload(in any) (map[string]any, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromPayload(payload map[string]any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
