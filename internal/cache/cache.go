// Package cache holds the invalidation hook called after committed
// mutations. Invalidation is fire-and-forget: a failed DEL can only make a
// cached read stale, never wrong data durable, so it is logged and dropped
// rather than failing the mutation that already committed.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StatsKey caches the occupancy summary; room keys cache single rooms.
const StatsKey = "stats:occupancy"

// RoomKey returns the cache key for a room, by its human-facing number.
func RoomKey(number string) string {
	return "room:" + number
}

// Invalidator drops cached values after a committed mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string)
}

// Redis is the production Invalidator.
type Redis struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedis(redisURL string, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{rdb: redis.NewClient(opts), logger: logger}, nil
}

func (r *Redis) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	// Detached from the request context: the mutation already committed,
	// so a cancelled request must not skip the invalidation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warn("cache invalidation failed",
			zap.Strings("keys", keys),
			zap.Error(err),
		)
	}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Noop satisfies Invalidator when no cache is configured (and in tests).
type Noop struct{}

func (Noop) Invalidate(context.Context, ...string) {}
