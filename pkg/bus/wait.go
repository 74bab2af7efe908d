package bus

import (
	"context"
	"errors"
	"time"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// ErrTimeout is the distinct failure kind for a WaitForReply deadline
// exceeded (§7 error kind `timeout`), as opposed to a transport error.
var ErrTimeout = errors.New("bus: wait_for_reply timed out")

// WaitForReply registers a temporary subscriber on topic, resolves on the
// first envelope whose ConversationID and ReplyTo match, and always
// unsubscribes on return, whether it resolved or timed out (§4.B).
func (b *Bus) WaitForReply(ctx context.Context, topic, conversationID, replyTo string, timeout time.Duration) (models.Envelope, error) {
	result := make(chan models.Envelope, 1)

	handlerID := b.Subscribe(ctx, topic, func(envelope models.Envelope) {
		if conversationID != "" && envelope.ConversationID != conversationID {
			return
		}
		if replyTo != "" && envelope.ReplyTo != replyTo {
			return
		}
		select {
		case result <- envelope:
		default:
		}
	})
	defer b.Unsubscribe(topic, handlerID)

	if timeout <= 0 {
		select {
		case envelope := <-result:
			return envelope, nil
		default:
			return models.Envelope{}, ErrTimeout
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case envelope := <-result:
		return envelope, nil
	case <-timer.C:
		return models.Envelope{}, ErrTimeout
	case <-ctx.Done():
		return models.Envelope{}, ctx.Err()
	}
}
