package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the redis stream appointment events are published to.
const DefaultStream = "clinic:events"

// RedisStreamHandler publishes outbox entries to a redis stream.
type RedisStreamHandler struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamHandler(client *redis.Client, stream string) *RedisStreamHandler {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamHandler{client: client, stream: stream, maxLen: 10000}
}

func (h *RedisStreamHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	if h == nil || h.client == nil {
		return nil
	}
	env := EnvelopeFor(entry)
	err := h.client.XAdd(ctx, &redis.XAddArgs{
		Stream: h.stream,
		MaxLen: h.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":   env.EventID.String(),
			"event_type": env.EventType,
			"aggregate":  env.Aggregate,
			"timestamp":  env.TimestampMicros,
			"payload":    string(env.Payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("events: xadd %s: %w", h.stream, err)
	}
	return nil
}
