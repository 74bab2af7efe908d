// Package bus implements the Messaging Bus (spec.md §4.B): a Redis pub/sub
// transport with subscribe, publish, and correlated wait-for-reply
// semantics layered on top of a one-way fabric.
//
// Grounded on original_source's src/orchestration/communication_bus.py
// (subscription bookkeeping, single receiver-loop-per-topic dispatch,
// exception-swallowing callback wrapper). WaitForReply correlates a reply
// by subscribing a temporary handler on the reply topic for each call and
// unsubscribing it on return; replies are not routed through a shared
// table of pending waiters.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// Handler processes one envelope. Handlers are invoked concurrently per
// §4.B; a slow handler must not block delivery to others.
type Handler func(models.Envelope)

// Bus is the Redis-backed Messaging Bus.
type Bus struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu          sync.Mutex
	subs        map[string]map[string]Handler // topic -> handlerID -> handler
	pubsubs     map[string]*redis.PubSub       // topic -> live subscription
	cancelFuncs map[string]context.CancelFunc  // topic -> receiver loop cancel
}

// New constructs a Bus bound to rdb.
func New(rdb *redis.Client, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		rdb:         rdb,
		logger:      logger,
		subs:        make(map[string]map[string]Handler),
		pubsubs:     make(map[string]*redis.PubSub),
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

// Publish serializes and publishes envelope to its Topic.
func (b *Bus) Publish(ctx context.Context, envelope models.Envelope) error {
	if envelope.MessageID == "" {
		envelope.MessageID = uuid.NewString()
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}
	return b.rdb.Publish(ctx, envelope.Topic, data).Err()
}

// Subscribe registers handler on topic, starting a single receiver loop for
// that topic if this is its first subscriber. Returns a handler id usable
// with Unsubscribe.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlerID := uuid.NewString()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[string]Handler)
		ps := b.rdb.Subscribe(ctx, topic)
		b.pubsubs[topic] = ps

		loopCtx, cancel := context.WithCancel(ctx)
		b.cancelFuncs[topic] = cancel
		go b.receiveLoop(loopCtx, topic, ps)
	}
	b.subs[topic][handlerID] = handler
	return handlerID
}

// Unsubscribe removes handlerID from topic. When topic has no remaining
// subscribers, its receiver loop is stopped and the Redis subscription
// closed.
func (b *Bus) Unsubscribe(topic, handlerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers, ok := b.subs[topic]
	if !ok {
		return
	}
	delete(handlers, handlerID)
	if len(handlers) > 0 {
		return
	}

	delete(b.subs, topic)
	if cancel, ok := b.cancelFuncs[topic]; ok {
		cancel()
		delete(b.cancelFuncs, topic)
	}
	if ps, ok := b.pubsubs[topic]; ok {
		_ = ps.Close()
		delete(b.pubsubs, topic)
	}
}

// receiveLoop is the single receiver loop for topic; it routes every
// matching envelope to every current subscriber concurrently, and a panic
// or error in one handler never affects delivery to the others (§4.B
// Failure semantics).
func (b *Bus) receiveLoop(ctx context.Context, topic string, ps *redis.PubSub) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var envelope models.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				b.logger.Warn("bus: dropping malformed envelope", "topic", topic, "error", err)
				continue
			}
			b.dispatch(topic, envelope)
		}
	}
}

func (b *Bus) dispatch(topic string, envelope models.Envelope) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		go b.callHandler(h, envelope)
	}
}

func (b *Bus) callHandler(h Handler, envelope models.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus: handler panicked", "recover", r)
		}
	}()
	h(envelope)
}
