package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, time.Minute), mr
}

func TestRedisCacheSetGet(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	userID := uuid.New()
	project := uuid.New()
	key := decisionKey(userID, ActionRead, ScopeProject, &project)

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	cache.Set(ctx, key, true)
	allowed, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.True(t, allowed)

	denyKey := decisionKey(userID, ActionDelete, ScopeProject, &project)
	cache.Set(ctx, denyKey, false)
	allowed, ok = cache.Get(ctx, denyKey)
	require.True(t, ok)
	assert.False(t, allowed)
}

func TestRedisCacheInvalidateUser(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	userA := uuid.New()
	userB := uuid.New()
	project := uuid.New()

	keyA1 := decisionKey(userA, ActionRead, ScopeProject, &project)
	keyA2 := decisionKey(userA, ActionUpdate, ScopeGlobal, nil)
	keyB := decisionKey(userB, ActionRead, ScopeProject, &project)
	cache.Set(ctx, keyA1, true)
	cache.Set(ctx, keyA2, false)
	cache.Set(ctx, keyB, true)

	cache.InvalidateUser(ctx, userA)

	_, ok := cache.Get(ctx, keyA1)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, keyA2)
	assert.False(t, ok)

	allowed, ok := cache.Get(ctx, keyB)
	require.True(t, ok, "invalidation is scoped to the one user's index set")
	assert.True(t, allowed)
}

func TestRedisCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	key := decisionKey(uuid.New(), ActionRead, ScopeGlobal, nil)
	cache.Set(ctx, key, true)

	_, ok := cache.Get(ctx, key)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok = cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestRedisCacheDegradesToMissWhenDown(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	key := decisionKey(uuid.New(), ActionRead, ScopeGlobal, nil)
	cache.Set(ctx, key, true)

	mr.Close()

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok, "an unreachable cache reads as a miss, never an error")

	// Writes and invalidations are likewise best-effort.
	cache.Set(ctx, key, true)
	cache.InvalidateUser(ctx, uuid.New())
}
