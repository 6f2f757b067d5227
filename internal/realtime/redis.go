package realtime

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// RedisTransport publishes envelopes over redis pub/sub, one redis
// channel per chat channel. The relay hub subscribes on the other end.
type RedisTransport struct {
	client *redis.Client
}

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Publish(ctx context.Context, channel, _ string, payload []byte) error {
	return t.client.Publish(ctx, channel, payload).Err()
}
