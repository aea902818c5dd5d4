package rbac

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores resolved permission decisions. Caching is strictly opt-in and
// explicit: a cache is injected into the checker, bounded in size and
// lifetime, and invalidated per user whenever the manager mutates that
// user's assignments. There is no implicit process-lifetime map anywhere in
// the engine.
type Cache interface {
	Get(ctx context.Context, key string) (allowed bool, ok bool)
	Set(ctx context.Context, key string, allowed bool)
	InvalidateUser(ctx context.Context, userID uuid.UUID)
}

// decisionKey builds the cache key for one check. The user id leads the key
// so per-user invalidation can match on prefix.
func decisionKey(userID uuid.UUID, permission string, scope ScopeType, scopeID *uuid.UUID) string {
	var b strings.Builder
	b.WriteString(userID.String())
	b.WriteByte('|')
	b.WriteString(permission)
	b.WriteByte('|')
	b.WriteString(string(scope))
	b.WriteByte('|')
	if scopeID != nil {
		b.WriteString(scopeID.String())
	}
	return b.String()
}

func userKeyPrefix(userID uuid.UUID) string {
	return userID.String() + "|"
}

// LRUCache is an in-process decision cache over an expirable LRU: bounded by
// entry count and per-entry TTL.
type LRUCache struct {
	lru *expirable.LRU[string, bool]
}

// NewLRUCache creates a cache holding at most size decisions for at most ttl.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{lru: expirable.NewLRU[string, bool](size, nil, ttl)}
}

// Get implements Cache.
func (c *LRUCache) Get(ctx context.Context, key string) (bool, bool) {
	return c.lru.Get(key)
}

// Set implements Cache.
func (c *LRUCache) Set(ctx context.Context, key string, allowed bool) {
	c.lru.Add(key, allowed)
}

// InvalidateUser implements Cache. It drops every decision whose key carries
// the user's prefix.
func (c *LRUCache) InvalidateUser(ctx context.Context, userID uuid.UUID) {
	prefix := userKeyPrefix(userID)
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}
