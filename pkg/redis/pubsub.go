package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// TypedPubSub moves one JSON message type over named redis channels. The
// notification relay uses it to mirror events across service instances.
type TypedPubSub[T any] struct {
	client goredis.UniversalClient
	onDrop func(channel string, err error)
}

func NewTypedPubSub[T any](client goredis.UniversalClient) *TypedPubSub[T] {
	return &TypedPubSub[T]{client: client}
}

// OnDecodeError registers a callback for messages that fail to unmarshal.
// Without one, bad messages are skipped silently.
func (p *TypedPubSub[T]) OnDecodeError(fn func(channel string, err error)) {
	p.onDrop = fn
}

func (p *TypedPubSub[T]) Publish(ctx context.Context, channel string, msg T) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal pubsub payload: %w", err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Subscribe delivers channel messages to handler until ctx is cancelled or
// the subscription drops. Undecodable messages are skipped, not fatal.
func (p *TypedPubSub[T]) Subscribe(ctx context.Context, channel string, handler func(T)) error {
	sub := p.client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to redis: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			var payload T
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				if p.onDrop != nil {
					p.onDrop(channel, err)
				}
				continue
			}
			handler(payload)
		}
	}
}
