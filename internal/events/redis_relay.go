package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher is the slice of the redis client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisRelay forwards every published event to a Redis pub/sub channel as JSON.
type RedisRelay struct {
	client  Publisher
	channel string
}

// NewRedisRelay builds a relay publishing on channel.
func NewRedisRelay(client Publisher, channel string) *RedisRelay {
	return &RedisRelay{client: client, channel: channel}
}

// Attach subscribes the relay to every event of dispatcher.
func (r *RedisRelay) Attach(dispatcher Dispatcher) {
	dispatcher.SubscribeAll(r.Handle)
}

// Handle encodes and publishes one event.
func (r *RedisRelay) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("relay event %s: %w", event.ID, err)
	}
	return nil
}
