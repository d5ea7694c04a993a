package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mappls-navigation/internal/routing"
)

// RedisRouteCache stores computed routes under routing cache keys.
type RedisRouteCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ routing.CacheStore = (*RedisRouteCache)(nil)

func NewRedisRouteCache(client *redis.Client, ttl time.Duration) *RedisRouteCache {
	return &RedisRouteCache{client: client, ttl: ttl}
}

func (r *RedisRouteCache) GetRoute(ctx context.Context, key string) (*routing.Route, error) {
	val, err := r.client.Get(ctx, routeCacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting cached route: %w", err)
	}
	var route routing.Route
	if err := json.Unmarshal(val, &route); err != nil {
		return nil, fmt.Errorf("unmarshalling cached route: %w", err)
	}
	return &route, nil
}

func (r *RedisRouteCache) SetRoute(ctx context.Context, key string, route *routing.Route) error {
	data, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("marshalling route: %w", err)
	}
	return r.client.Set(ctx, routeCacheKey(key), data, r.ttl).Err()
}

func routeCacheKey(key string) string {
	return fmt.Sprintf("routing:cache:%s", key)
}
