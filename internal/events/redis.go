package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// RedisPublisher pushes events onto a Redis pub/sub channel for external
// consumers (dashboard push gateway). Failures are logged and dropped.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher connects to Redis at addr and publishes on channel.
func NewRedisPublisher(addr, channel string) *RedisPublisher {
	return &RedisPublisher{
		rdb:     redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("events: marshal failed", "kind", event.Kind, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		slog.Warn("events: redis publish failed", "kind", event.Kind, "job", event.JobID, "error", err)
	}
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
