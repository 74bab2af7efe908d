package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nexus-research/nexus-orchestrator/pkg/bus"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// Capability is the uniform agent contract: a stable agent_type key and a
// start/stop/handle lifecycle, so the registry can drive any agent
// identically regardless of what it does internally (§9 design note).
type Capability interface {
	AgentType() models.AgentType
	Start(ctx context.Context) error
	Stop()
	HandleEnvelope(ctx context.Context, req models.Envelope) (models.Envelope, error)
}

// runner wires a Capability to the Messaging Bus: subscribes to its
// request topic, invokes HandleEnvelope, and publishes whatever it
// returns to the reply topic, copying conversation_id/reply_to across
// (§4.G "reply with conversation_id and in_reply_to copied from the
// request").
type runner struct {
	cap        Capability
	bus        bus.MessagingBus
	log        *slog.Logger
	handlerID  string
}

func newRunner(cap Capability, b bus.MessagingBus, log *slog.Logger) *runner {
	if log == nil {
		log = slog.Default()
	}
	return &runner{cap: cap, bus: b, log: log}
}

func (r *runner) start(ctx context.Context) error {
	topic := RequestTopic(r.cap.AgentType())
	r.handlerID = r.bus.Subscribe(ctx, topic, func(req models.Envelope) {
		reply, err := r.cap.HandleEnvelope(ctx, req)
		if err != nil {
			reply = models.Envelope{
				Payload: map[string]any{"error": err.Error()},
			}
			r.log.Warn("agents: handler error", "agent_type", r.cap.AgentType(), "error", err)
		}
		reply.Sender = string(r.cap.AgentType())
		reply.Topic = ReplyTopic(r.cap.AgentType())
		reply.ConversationID = req.ConversationID
		reply.ReplyTo = req.MessageID
		if pubErr := r.bus.Publish(ctx, reply); pubErr != nil {
			r.log.Warn("agents: publish reply failed", "agent_type", r.cap.AgentType(), "error", pubErr)
		}
	})
	return nil
}

func (r *runner) stop() {
	if r.handlerID != "" {
		r.bus.Unsubscribe(RequestTopic(r.cap.AgentType()), r.handlerID)
	}
}

// decodePayload round-trips a bus envelope's map[string]any payload into a
// typed request struct via JSON, since map[string]any is the wire shape
// every envelope carries.
func decodePayload(payload map[string]any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("agents: encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("agents: decode payload: %w", err)
	}
	return nil
}

// encodePayload is the inverse of decodePayload, used to build a reply
// envelope's payload from a typed response struct.
func encodePayload(in any) (map[string]any, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("agents: encode response: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("agents: decode response: %w", err)
	}
	return out, nil
}
