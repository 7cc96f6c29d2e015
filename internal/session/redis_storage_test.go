package session

import (
	"context"
	"io"
	"log/slog"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov-go/pizzeria-bot/internal/geo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestRedisStorage_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	storage := NewRedisStorage(client, testLogger())

	ctx := context.Background()
	sess := &Session{
		ChatID:       123,
		CurrentState: StateAwaitingFulfillment,
		Order: PendingOrder{
			Email:         "customer@example.com",
			PizzeriaID:    "pz1",
			CustomerCoord: &geo.Coordinate{Lat: 55.75, Lon: 37.61},
			DistanceKm:    3.2,
		},
	}

	require.NoError(t, storage.SetSession(ctx, sess.ChatID, sess))

	result, err := storage.GetSession(ctx, sess.ChatID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, sess.ChatID, result.ChatID)
	assert.Equal(t, sess.CurrentState, result.CurrentState)
	assert.Equal(t, sess.Order, result.Order)
	assert.False(t, result.UpdatedAt.IsZero())
}

func TestRedisStorage_GetNotFound(t *testing.T) {
	client := setupTestRedis(t)
	storage := NewRedisStorage(client, testLogger())

	sess, err := storage.GetSession(context.Background(), 999)
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStorage_ClearSession(t *testing.T) {
	client := setupTestRedis(t)
	storage := NewRedisStorage(client, testLogger())

	ctx := context.Background()
	sess := &Session{ChatID: 456, CurrentState: StateCartView}

	require.NoError(t, storage.SetSession(ctx, sess.ChatID, sess))
	require.NoError(t, storage.ClearSession(ctx, sess.ChatID))

	_, err := storage.GetSession(ctx, sess.ChatID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStorage_ListSessions(t *testing.T) {
	client := setupTestRedis(t)
	storage := NewRedisStorage(client, testLogger())

	ctx := context.Background()
	require.NoError(t, storage.SetSession(ctx, 1, &Session{ChatID: 1, CurrentState: StateBrowsingMenu}))
	require.NoError(t, storage.SetSession(ctx, 2, &Session{ChatID: 2, CurrentState: StateAwaitingEmail}))

	sessions, err := storage.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	states := make(map[int64]State, len(sessions))
	for _, s := range sessions {
		states[s.ChatID] = s.CurrentState
	}
	assert.Equal(t, StateBrowsingMenu, states[1])
	assert.Equal(t, StateAwaitingEmail, states[2])
}

func TestLocker_SerializesSameChat(t *testing.T) {
	client := setupTestRedis(t)
	locker := NewLocker(client, testLogger())

	ctx := context.Background()
	require.NoError(t, locker.Acquire(ctx, 42))

	err := locker.Acquire(ctx, 42)
	assert.ErrorIs(t, err, ErrSessionLocked)

	// An unrelated chat is not blocked.
	require.NoError(t, locker.Acquire(ctx, 43))

	locker.Release(ctx, 42)
	require.NoError(t, locker.Acquire(ctx, 42))
}
