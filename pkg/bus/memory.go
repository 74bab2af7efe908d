package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// MemoryBus is an in-process Messaging Bus used by tests and by a single
// worker process's own in-memory fan-out (spec.md §5: "across workers the
// messaging bus degrades to a no-broker in-process fabric"). It satisfies
// the same contract as Bus without a Redis dependency.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]map[string]Handler
}

// NewMemory constructs an empty MemoryBus.
func NewMemory() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[string]Handler)}
}

// Publish dispatches envelope synchronously-fanned-out (each handler runs
// in its own goroutine) to every current subscriber of envelope.Topic.
func (m *MemoryBus) Publish(_ context.Context, envelope models.Envelope) error {
	if envelope.MessageID == "" {
		envelope.MessageID = uuid.NewString()
	}
	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.subs[envelope.Topic]))
	for _, h := range m.subs[envelope.Topic] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		go func(h Handler) {
			defer func() { recover() }()
			h(envelope)
		}(h)
	}
	return nil
}

// Subscribe registers handler on topic and returns a handler id.
func (m *MemoryBus) Subscribe(_ context.Context, topic string, handler Handler) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[string]Handler)
	}
	id := uuid.NewString()
	m.subs[topic][id] = handler
	return id
}

// Unsubscribe removes handlerID from topic.
func (m *MemoryBus) Unsubscribe(topic, handlerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs[topic], handlerID)
	if len(m.subs[topic]) == 0 {
		delete(m.subs, topic)
	}
}

// WaitForReply mirrors Bus.WaitForReply's correlation semantics against the
// in-process fabric.
func (m *MemoryBus) WaitForReply(ctx context.Context, topic, conversationID, replyTo string, timeout time.Duration) (models.Envelope, error) {
	result := make(chan models.Envelope, 1)

	handlerID := m.Subscribe(ctx, topic, func(envelope models.Envelope) {
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
	defer m.Unsubscribe(topic, handlerID)

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
