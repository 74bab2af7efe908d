package live

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// Subscriber forwards Monitoring Events published on Redis into a Manager's
// Broadcast. It subscribes once to the global events channel, the stats
// channel, and a glob pattern covering every project channel, relying on each connection's own
// Filter to do client-specific matching.
//
// This deliberately departs from the teacher's pkg/events ref-counted
// per-project LISTEN/UNLISTEN: that accounting exists because Postgres
// LISTEN channels are a resource worth conserving per active subscription.
// Redis PSUBSCRIBE makes a single glob-pattern subscription cheap and
// native, so there is nothing to ref-count here.
type Subscriber struct {
	rdb     *redis.Client
	manager *Manager
	log     *slog.Logger
}

// NewSubscriber constructs a Subscriber. The channel names are passed to
// Run, not stored here.
func NewSubscriber(rdb *redis.Client, manager *Manager, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{rdb: rdb, manager: manager, log: log}
}

// Run subscribes to eventsChannel, statsChannel and projectChannelPrefix+"*"
// and blocks,
// forwarding every decodable message to the Manager until ctx is cancelled
// or the subscription errors.
func (s *Subscriber) Run(ctx context.Context, eventsChannel, statsChannel, projectChannelPrefix string) error {
	sub := s.rdb.PSubscribe(ctx, eventsChannel, statsChannel, projectChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.forward(msg.Payload)
		}
	}
}

func (s *Subscriber) forward(payload string) {
	var event models.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.log.Warn("live: discarding undecodable event", "error", err)
		return
	}
	s.manager.Broadcast(event)
}
