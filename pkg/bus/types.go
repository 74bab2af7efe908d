package bus

import (
	"context"
	"time"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// MessagingBus is the contract of spec.md §4.B, satisfied by both the
// Redis-backed Bus and the in-process MemoryBus.
type MessagingBus interface {
	Publish(ctx context.Context, envelope models.Envelope) error
	Subscribe(ctx context.Context, topic string, handler Handler) string
	Unsubscribe(topic, handlerID string)
	WaitForReply(ctx context.Context, topic, conversationID, replyTo string, timeout time.Duration) (models.Envelope, error)
}

var (
	_ MessagingBus = (*Bus)(nil)
	_ MessagingBus = (*MemoryBus)(nil)
)
