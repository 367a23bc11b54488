package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	current := time.Unix(1_700_000_000, 0)
	store := NewRedisStore(client)
	store.now = func() time.Time { return current }
	return store, &current
}

func TestRedisStore_RegisterAndBelongsTo(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	require.NoError(t, store.Register(ctx, "100", "user-a", "sales"))

	owns, err := store.BelongsTo(ctx, "100", "user-a")
	require.NoError(t, err)
	assert.True(t, owns)

	owns, err = store.BelongsTo(ctx, "100", "user-b")
	require.NoError(t, err)
	assert.False(t, owns)

	assert.ErrorIs(t, store.Register(ctx, "100", "user-b", "stolen"), ErrOwnershipConflict)
}

func TestRedisStore_ListOwnedOrdersByAccess(t *testing.T) {
	ctx := context.Background()
	store, clock := newRedisStore(t)

	require.NoError(t, store.Register(ctx, "1", "user-a", "first"))
	*clock = clock.Add(time.Minute)
	require.NoError(t, store.Register(ctx, "2", "user-a", "second"))
	*clock = clock.Add(time.Minute)
	require.NoError(t, store.Touch(ctx, "1", "user-a"))

	ids, err := store.ListOwned(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestRedisStore_TouchIgnoresForeignProjects(t *testing.T) {
	ctx := context.Background()
	store, clock := newRedisStore(t)

	require.NoError(t, store.Register(ctx, "1", "user-a", ""))
	*clock = clock.Add(48 * time.Hour)
	require.NoError(t, store.Touch(ctx, "1", "user-b"))

	stale, err := store.ListStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, stale)
}

func TestRedisStore_StaleSweepLifecycle(t *testing.T) {
	ctx := context.Background()
	store, clock := newRedisStore(t)

	require.NoError(t, store.Register(ctx, "old", "user-a", ""))
	*clock = clock.Add(48 * time.Hour)
	require.NoError(t, store.Register(ctx, "fresh", "user-b", ""))

	stale, err := store.ListStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, stale)

	require.NoError(t, store.RemoveAny(ctx, "old"))

	stale, err = store.ListStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)

	owns, err := store.BelongsTo(ctx, "old", "user-a")
	require.NoError(t, err)
	assert.False(t, owns)
}

func TestRedisStore_RemoveIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	require.NoError(t, store.Register(ctx, "1", "user-a", ""))
	require.NoError(t, store.Remove(ctx, "1", "user-b"))

	owns, err := store.BelongsTo(ctx, "1", "user-a")
	require.NoError(t, err)
	assert.True(t, owns)
}
