package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

func TestMemoryBus_PublishSubscribeFanOut(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	received := make(chan models.Envelope, 2)
	b.Subscribe(ctx, "topic.a", func(e models.Envelope) { received <- e })
	b.Subscribe(ctx, "topic.a", func(e models.Envelope) { received <- e })

	require.NoError(t, b.Publish(ctx, models.Envelope{Topic: "topic.a", Sender: "x"}))

	for i := 0; i < 2; i++ {
		select {
		case e := <-received:
			assert.Equal(t, "x", e.Sender)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
}

func TestMemoryBus_WaitForReply_ResolvesOnMatch(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = b.Publish(ctx, models.Envelope{
			Topic:          "replies",
			ConversationID: "conv-1",
			ReplyTo:        "req-1",
			Payload:        map[string]any{"ok": true},
		})
	}()

	envelope, err := b.WaitForReply(ctx, "replies", "conv-1", "req-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", envelope.ConversationID)
	assert.Equal(t, "req-1", envelope.ReplyTo)
}

func TestMemoryBus_WaitForReply_IgnoresNonMatchingConversation(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	go func() {
		_ = b.Publish(ctx, models.Envelope{Topic: "replies", ConversationID: "other", ReplyTo: "req-1"})
		time.Sleep(20 * time.Millisecond)
		_ = b.Publish(ctx, models.Envelope{Topic: "replies", ConversationID: "conv-1", ReplyTo: "req-1"})
	}()

	envelope, err := b.WaitForReply(ctx, "replies", "conv-1", "req-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", envelope.ConversationID)
}

func TestMemoryBus_WaitForReply_ZeroTimeoutReturnsImmediately(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	start := time.Now()
	_, err := b.WaitForReply(ctx, "replies", "conv-1", "req-1", 0)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestMemoryBus_WaitForReply_TimesOut(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()
	_, err := b.WaitForReply(ctx, "replies", "conv-1", "req-1", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestMemoryBus_UnsubscribeRemovesHandler(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	received := make(chan models.Envelope, 1)
	id := b.Subscribe(ctx, "topic.b", func(e models.Envelope) { received <- e })
	b.Unsubscribe("topic.b", id)

	require.NoError(t, b.Publish(ctx, models.Envelope{Topic: "topic.b"}))
	select {
	case <-received:
		t.Fatal("handler should have been unsubscribed")
	case <-time.After(50 * time.Millisecond):
	}
}
