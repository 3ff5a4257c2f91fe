package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"emailfilter/internal/application/triage"
)

// Publisher queues accepted webhook notifications for the worker.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

func NewPublisher(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{client: client, topic: client.Topic(topicID)}, nil
}

// Enqueue publishes the notifications as one message and waits for the
// server to accept it.
func (p *Publisher) Enqueue(ctx context.Context, notifications []triage.Notification) error {
	data, err := json.Marshal(triage.NotificationBatch{Value: notifications})
	if err != nil {
		return fmt.Errorf("marshal notifications: %w", err)
	}

	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"count": fmt.Sprint(len(notifications))},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish notifications: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
