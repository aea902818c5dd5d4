package rbac

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisCache is a shared decision cache for multi-instance deployments.
// Each decision key is tracked in a per-user index set so invalidation is a
// single DEL batch instead of a keyspace scan.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a decision cache over the given Redis client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "flowgate:decision:",
		ttl:    ttl,
	}
}

func (c *RedisCache) decisionRedisKey(key string) string {
	return c.prefix + key
}

func (c *RedisCache) userIndexKey(userID uuid.UUID) string {
	return "flowgate:decisions_by_user:" + userID.String()
}

// Get implements Cache. Redis failures degrade to a cache miss; the checker
// falls through to the store.
func (c *RedisCache) Get(ctx context.Context, key string) (bool, bool) {
	val, err := c.client.Get(ctx, c.decisionRedisKey(key)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, allowed bool) {
	val := "0"
	if allowed {
		val = "1"
	}
	userID, err := uuid.Parse(key[:36])
	if err != nil {
		return
	}
	redisKey := c.decisionRedisKey(key)
	pipe := c.client.Pipeline()
	pipe.Set(ctx, redisKey, val, c.ttl)
	pipe.SAdd(ctx, c.userIndexKey(userID), redisKey)
	pipe.Expire(ctx, c.userIndexKey(userID), c.ttl)
	_, _ = pipe.Exec(ctx)
}

// InvalidateUser implements Cache.
func (c *RedisCache) InvalidateUser(ctx context.Context, userID uuid.UUID) {
	indexKey := c.userIndexKey(userID)
	keys, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return
	}
	keys = append(keys, indexKey)
	_ = c.client.Del(ctx, keys...).Err()
}
