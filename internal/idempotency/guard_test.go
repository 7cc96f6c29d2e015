package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) (Guard, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisGuard(client, nil), mr
}

func TestFirstDelivery(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	first, err := guard.FirstDelivery(ctx, KeyForUpdate(1001), time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := guard.FirstDelivery(ctx, KeyForUpdate(1001), time.Minute)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestFirstDelivery_KeyExpires(t *testing.T) {
	guard, mr := newTestGuard(t)
	ctx := context.Background()

	first, err := guard.FirstDelivery(ctx, KeyForUpdate(1002), time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	mr.FastForward(2 * time.Minute)

	again, err := guard.FirstDelivery(ctx, KeyForUpdate(1002), time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestFirstDelivery_DistinctUpdates(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	first, err := guard.FirstDelivery(ctx, KeyForUpdate(1), time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	other, err := guard.FirstDelivery(ctx, KeyForUpdate(2), time.Minute)
	require.NoError(t, err)
	assert.True(t, other)
}
