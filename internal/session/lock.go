package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	chatLockKeyPattern = "session:lock:%d"
	lockTTL            = 10 * time.Second
)

// Locker serializes event processing per chat. Events for different chats
// proceed independently; two events for the same chat never run concurrently,
// which protects the read-then-write of the stored session.
type Locker struct {
	client *redis.Client
	log    *slog.Logger
}

// NewLocker constructs a Redis-backed per-chat locker.
func NewLocker(client *redis.Client, log *slog.Logger) *Locker {
	if log == nil {
		log = slog.Default()
	}

	return &Locker{client: client, log: log}
}

// Acquire takes the per-chat lock, returning ErrSessionLocked when another
// event for the same chat is in flight. The TTL bounds lock leakage if the
// holder dies mid-update.
func (l *Locker) Acquire(ctx context.Context, chatID int64) error {
	key := fmt.Sprintf(chatLockKeyPattern, chatID)

	acquired, err := l.client.SetNX(ctx, key, 1, lockTTL).Result()
	if err != nil {
		l.log.Error("failed to acquire chat lock", "chat_id", chatID, "error", err)
		return err
	}

	if !acquired {
		l.log.Warn("chat lock already held", "chat_id", chatID)
		return ErrSessionLocked
	}

	return nil
}

// Release frees the per-chat lock.
func (l *Locker) Release(ctx context.Context, chatID int64) {
	key := fmt.Sprintf(chatLockKeyPattern, chatID)
	if err := l.client.Del(ctx, key).Err(); err != nil {
		l.log.Error("failed to release chat lock", "chat_id", chatID, "error", err)
	}
}
