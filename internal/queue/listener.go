package queue

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"mindgraph.app/grove/common/logger"
)

// RedisListener subscribes to the wake channel and coalesces pings into a
// single-slot signal channel. A burst of publishes while the worker is busy
// collapses into one pending wake-up.
type RedisListener struct {
	pubsub *redis.PubSub
	wake   chan struct{}
}

func NewRedisListener(client *redis.Client, channel string) *RedisListener {
	return &RedisListener{
		pubsub: client.Subscribe(context.Background(), channel),
		wake:   make(chan struct{}, 1),
	}
}

// Wakeups returns the coalesced signal channel. Run must be started for it
// to ever fire.
func (l *RedisListener) Wakeups() <-chan struct{} {
	return l.wake
}

// Run pumps subscription messages into the wake channel until the context is
// cancelled or the subscription closes.
func (l *RedisListener) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "grove.queue.listener",
	})

	ch := l.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				slog.InfoContext(ctx, "wake subscription closed")
				return
			}
			select {
			case l.wake <- struct{}{}:
			default:
			}
		}
	}
}

func (l *RedisListener) Close() error {
	return l.pubsub.Close()
}
