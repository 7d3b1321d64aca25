package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// TopicPublisher sends one message to a durable topic.
type TopicPublisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string, orderingKey string) error
	Close() error
}

// PubSubForwarder mirrors every bus event to a Pub/Sub topic so downstream
// services receive governance events with at-least-once delivery.
//
// Usage:
//
//	fwd := events.NewPubSubForwarder(topic)
//	sub := bus.Subscribe("pubsub", fwd.Handle)
type PubSubForwarder struct {
	topic TopicPublisher
}

func NewPubSubForwarder(topic TopicPublisher) *PubSubForwarder {
	return &PubSubForwarder{topic: topic}
}

// Handle is a bus Handler.
func (f *PubSubForwarder) Handle(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	attrs := map[string]string{
		"kind":      string(ev.Kind),
		"scope":     ev.Scope,
		"event_id":  ev.ID,
		"timestamp": ev.Timestamp.Format(time.RFC3339Nano),
	}
	// Scope-scoped ordering
	return f.topic.Publish(ctx, data, attrs, ev.Scope)
}

// Close releases the underlying client.
func (f *PubSubForwarder) Close() error {
	return f.topic.Close()
}

// pubsubTopic adapts a Pub/Sub client topic to TopicPublisher.
type pubsubTopic struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// DialPubSubTopic connects to projectID and returns a publisher for topicID,
// creating the topic when it does not exist. credentialsFile may be empty to
// use application default credentials.
func DialPubSubTopic(ctx context.Context, projectID, topicID, credentialsFile string) (TopicPublisher, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
		slog.Info("[PubSub] created topic", "topic", topicID)
	}
	topic.EnableMessageOrdering = true

	slog.Info("[PubSub] connected", "project", projectID, "topic", topicID)
	return &pubsubTopic{client: client, topic: topic}, nil
}

// Publish does not wait for the server ack; the result is checked in the
// background so delivery latency stays off the bus drain loop.
func (t *pubsubTopic) Publish(ctx context.Context, data []byte, attrs map[string]string, orderingKey string) error {
	result := t.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: orderingKey,
	})
	go func() {
		getCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := result.Get(getCtx); err != nil {
			slog.Warn("[PubSub] publish failed", "kind", attrs["kind"], "event_id", attrs["event_id"], "error", err)
			if orderingKey != "" {
				t.topic.ResumePublish(orderingKey)
			}
		}
	}()
	return nil
}

func (t *pubsubTopic) Close() error {
	t.topic.Stop()
	return t.client.Close()
}
