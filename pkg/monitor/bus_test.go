package monitor

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus-orchestrator/pkg/config"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

func testConfig() config.MonitorConfig {
	return config.MonitorConfig{
		Enabled:              true,
		EventsChannel:        "nexus:events",
		StatsChannel:         "nexus:events:stats",
		ProjectChannelPrefix: "nexus:events:project:",
		MaxEventSizeBytes:    8192,
	}
}

func TestSerialize_WithinBudget(t *testing.T) {
	b := New(nil, testConfig(), nil)
	data := b.serialize(models.Event{EventID: "e1", EventType: models.EventTaskStarted, Message: "hi"})
	assert.LessOrEqual(t, len(data), 8192)

	var round models.Event
	require.NoError(t, json.Unmarshal(data, &round))
	assert.Equal(t, "e1", round.EventID)
}

func TestSerialize_TruncatesMetaFirst(t *testing.T) {
	b := New(nil, testConfig(), nil)
	bigMeta := map[string]any{"blob": strings.Repeat("x", 9000)}
	data := b.serialize(models.Event{EventID: "e2", EventType: models.EventTaskStarted, Meta: bigMeta, Message: "short"})
	assert.LessOrEqual(t, len(data), 8192)

	var round models.Event
	require.NoError(t, json.Unmarshal(data, &round))
	assert.Equal(t, true, round.Meta["truncated"])
	assert.Equal(t, "short", round.Message)
}

func TestSerialize_TruncatesMessageAndErrorWhenMetaAloneNotEnough(t *testing.T) {
	b := New(nil, testConfig(), nil)
	data := b.serialize(models.Event{
		EventID:   "e3",
		EventType: models.EventTaskStarted,
		Message:   strings.Repeat("m", 6000),
		Error:     strings.Repeat("e", 6000),
	})
	assert.LessOrEqual(t, len(data), 8192)

	var round models.Event
	require.NoError(t, json.Unmarshal(data, &round))
	assert.LessOrEqual(t, len(round.Message), 500+len("... [truncated]"))
	assert.True(t, strings.HasSuffix(round.Message, "... [truncated]"))
}

func TestPublish_DisabledIsNoOp(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	b := New(nil, cfg, nil)
	// Would panic on nil rdb if it tried to publish; disabled short-circuits first.
	b.Publish(context.Background(), models.Event{EventID: "e4"}, "")
}

func TestPublish_UnreachableRedisSwallowsError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()
	b := New(rdb, testConfig(), nil)

	done := make(chan struct{})
	go func() {
		b.Publish(context.Background(), models.Event{EventID: "e5", EventType: models.EventTaskStarted}, "")
		close(done)
	}()
	<-done // must return, never panics or blocks forever
}
