// Package redisx fans settings-cache invalidations out across replicas.
// Every process keeps its own 5-minute settings snapshot; an administrative
// write publishes on a Redis channel so all replicas drop their snapshot at
// once instead of waiting out the TTL.
package redisx

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// InvalidationChannel carries settings-invalidation signals.
const InvalidationChannel = "field_service:settings_invalidate"

// InvalidationBus wraps the pub/sub pair.
type InvalidationBus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewInvalidationBus connects the bus to a Redis instance.
func NewInvalidationBus(addr string, db int, logger *slog.Logger) *InvalidationBus {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &InvalidationBus{
		rdb:    rdb,
		logger: logger.With("component", "invalidation-bus"),
	}
}

// Close releases the Redis client.
func (b *InvalidationBus) Close() error { return b.rdb.Close() }

// Publish signals every replica to drop its settings snapshot. Called after
// an administrative settings write.
func (b *InvalidationBus) Publish(ctx context.Context) error {
	return b.rdb.Publish(ctx, InvalidationChannel, "invalidate").Err()
}

// Listen blocks until ctx is done, calling onInvalidate for every signal.
// Subscription errors end the loop; the TTL still bounds staleness, so a
// dead bus degrades rather than breaks.
func (b *InvalidationBus) Listen(ctx context.Context, onInvalidate func()) {
	sub := b.rdb.Subscribe(ctx, InvalidationChannel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("invalidation subscription closed")
				return
			}
			b.logger.Info("settings invalidation received", "channel", msg.Channel)
			onInvalidate()
		}
	}
}
