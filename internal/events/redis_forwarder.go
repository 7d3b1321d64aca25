package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultChannelPrefix is prepended to the event kind to form the channel.
const DefaultChannelPrefix = "econ:events:"

// ChannelPublisher is the Redis Pub/Sub subset the forwarder needs.
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, message []byte) error
}

// RedisForwarder publishes bus events to per-kind Redis channels so other
// replicas and dashboards can follow the decision stream.
type RedisForwarder struct {
	client ChannelPublisher
	prefix string
}

func NewRedisForwarder(client ChannelPublisher, channelPrefix string) *RedisForwarder {
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	return &RedisForwarder{client: client, prefix: channelPrefix}
}

// Channel returns the channel events of kind are published on.
func (f *RedisForwarder) Channel(kind Kind) string {
	return f.prefix + string(kind)
}

// Handle is a bus Handler.
func (f *RedisForwarder) Handle(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	if err := f.client.Publish(ctx, f.Channel(ev.Kind), data); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Kind, err)
	}
	return nil
}
