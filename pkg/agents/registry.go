package agents

import (
	"context"
	"log/slog"

	"github.com/nexus-research/nexus-orchestrator/pkg/bus"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// Registry owns the lifecycle of every Capability running in a worker
// process, keyed by agent_type (§9 design note: a dynamic-dispatch
// registry in place of a fixed agent-type switch statement).
type Registry struct {
	bus     bus.MessagingBus
	log     *slog.Logger
	runners map[models.AgentType]*runner
}

// NewRegistry constructs an empty Registry bound to a Messaging Bus.
func NewRegistry(b bus.MessagingBus, log *slog.Logger) *Registry {
	return &Registry{bus: b, log: log, runners: make(map[models.AgentType]*runner)}
}

// Register adds a Capability to the registry. Must be called before
// StartAll.
func (r *Registry) Register(cap Capability) {
	r.runners[cap.AgentType()] = newRunner(cap, r.bus, r.log)
}

// StartAll starts every registered agent's Capability and its bus runner.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, rn := range r.runners {
		if err := rn.cap.Start(ctx); err != nil {
			return err
		}
		if err := rn.start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every registered agent in reverse of no particular order;
// agents are stateless between invocations so ordering does not matter.
func (r *Registry) StopAll() {
	for _, rn := range r.runners {
		rn.stop()
		rn.cap.Stop()
	}
}
