// Package idempotency collapses duplicate Telegram update deliveries so each
// update is processed at most once.
package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard answers whether an update key is seen for the first time.
type Guard interface {
	// FirstDelivery marks the key and reports whether this call marked it.
	// A false result means the same update was already handled (or is being
	// handled right now) and must be dropped.
	FirstDelivery(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// KeyForUpdate derives the dedupe key from Telegram's update identifier,
// which is unique per bot and stable across delivery retries.
func KeyForUpdate(updateID int) string {
	return fmt.Sprintf("update:%d", updateID)
}

type redisGuard struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisGuard builds a Redis-backed Guard.
func NewRedisGuard(client *redis.Client, log *slog.Logger) Guard {
	if log == nil {
		log = slog.Default()
	}

	return &redisGuard{client: client, log: log}
}

func (g *redisGuard) FirstDelivery(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	first, err := g.client.SetNX(ctx, recordKey(key), 1, ttl).Result()
	if err != nil {
		g.log.Error("failed to mark update delivery", slog.String("key", key), slog.Any("error", err))
		return false, err
	}

	return first, nil
}

func recordKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}
