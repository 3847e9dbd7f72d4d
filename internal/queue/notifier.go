// Package queue carries the Redis wake-up channel between the API server and
// the enrichment worker. Jobs themselves live in Postgres; Redis only
// shortcuts the worker's poll interval when fresh work arrives.
package queue

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Wake publishes a ping on the wake channel. Best-effort: the worker polls
// the job table anyway, so a failed publish only costs latency.
func (n *RedisNotifier) Wake(ctx context.Context) {
	if err := n.client.Publish(ctx, n.channel, "wake").Err(); err != nil {
		slog.WarnContext(ctx, "failed to publish worker wake-up", "error", err)
	}
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
