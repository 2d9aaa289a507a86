package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

type PubSubEmitter struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	owned  bool
}

func NewPubSubEmitter(ctx context.Context, projectID, topicID string) (*PubSubEmitter, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	e := NewPubSubEmitterFromClient(client, topicID)
	e.owned = true
	return e, nil
}

// NewPubSubEmitterFromClient publishes through an existing client, which the
// caller keeps ownership of.
func NewPubSubEmitterFromClient(client *pubsub.Client, topicID string) *PubSubEmitter {
	return &PubSubEmitter{client: client, topic: client.Topic(topicID)}
}

// Emit publishes the event and waits for the server ack.
func (e *PubSubEmitter) Emit(ctx context.Context, event AuditEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("pubsub marshal failed: %w", err)
	}

	res := e.topic.Publish(ctx, &pubsub.Message{
		Data: b,
		Attributes: map[string]string{
			"kind":           event.Kind,
			"application_id": event.ApplicationID,
			"disposition":    string(event.Disposition),
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("pubsub publish failed: %w", err)
	}
	return nil
}

func (e *PubSubEmitter) Close() error {
	e.topic.Stop()
	if e.owned {
		return e.client.Close()
	}
	return nil
}
