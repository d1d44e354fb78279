package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ignite/subscriptions/internal/domain"
	"github.com/redis/go-redis/v9"
)

// payloadField is the stream entry field holding the JSON event.
const payloadField = "payload"

// Publisher appends SubscriptionCreated events to a Redis stream.
type Publisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithMaxLen caps the stream length (approximate trimming). Zero disables
// trimming.
func WithMaxLen(n int64) PublisherOption {
	return func(p *Publisher) { p.maxLen = n }
}

// NewPublisher creates a publisher for the given stream key.
func NewPublisher(client redis.UniversalClient, stream string, opts ...PublisherOption) *Publisher {
	p := &Publisher{client: client, stream: stream}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish appends one event to the stream.
func (p *Publisher) Publish(ctx context.Context, event domain.SubscriptionCreated) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal subscription created: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{payloadField: string(payload)},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Stream returns the stream key events are published to.
func (p *Publisher) Stream() string { return p.stream }
