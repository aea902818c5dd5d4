package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionKey(t *testing.T) {
	userID := uuid.New()
	project := uuid.New()

	key := decisionKey(userID, ActionRead, ScopeProject, &project)
	assert.Equal(t, userID.String()+"|Read|project|"+project.String(), key)

	key = decisionKey(userID, ActionDelete, ScopeGlobal, nil)
	assert.Equal(t, userID.String()+"|Delete|global|", key)

	// Every key carries the user prefix that invalidation matches on.
	assert.Contains(t, key, userKeyPrefix(userID))
}

func TestLRUCacheSetGet(t *testing.T) {
	cache := NewLRUCache(16, time.Minute)
	ctx := context.Background()
	key := decisionKey(uuid.New(), ActionRead, ScopeGlobal, nil)

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	cache.Set(ctx, key, true)
	allowed, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.True(t, allowed)

	// Denials are cached too.
	cache.Set(ctx, key, false)
	allowed, ok = cache.Get(ctx, key)
	require.True(t, ok)
	assert.False(t, allowed)
}

func TestLRUCacheInvalidateUser(t *testing.T) {
	cache := NewLRUCache(16, time.Minute)
	ctx := context.Background()

	userA := uuid.New()
	userB := uuid.New()
	project := uuid.New()

	keyA1 := decisionKey(userA, ActionRead, ScopeProject, &project)
	keyA2 := decisionKey(userA, ActionUpdate, ScopeProject, &project)
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
	require.True(t, ok, "other users' decisions must survive the invalidation")
	assert.True(t, allowed)
}

func TestLRUCacheBounded(t *testing.T) {
	cache := NewLRUCache(2, time.Minute)
	ctx := context.Background()

	k1 := decisionKey(uuid.New(), ActionRead, ScopeGlobal, nil)
	k2 := decisionKey(uuid.New(), ActionRead, ScopeGlobal, nil)
	k3 := decisionKey(uuid.New(), ActionRead, ScopeGlobal, nil)

	cache.Set(ctx, k1, true)
	cache.Set(ctx, k2, true)
	cache.Set(ctx, k3, true)

	_, ok := cache.Get(ctx, k1)
	assert.False(t, ok, "oldest entry is evicted at capacity")
	_, ok = cache.Get(ctx, k3)
	assert.True(t, ok)
}
