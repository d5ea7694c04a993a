package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mappls-navigation/internal/navigation"
)

type RedisSessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionCache(client *redis.Client, ttl time.Duration) *RedisSessionCache {
	return &RedisSessionCache{client: client, ttl: ttl}
}

func (r RedisSessionCache) SetSession(ctx context.Context, snapshot *navigation.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshalling session: %w", err)
	}
	return r.client.Set(ctx, sessionKey(snapshot.ID), data, r.ttl).Err()
}

// GetSession returns (nil, nil) when no snapshot is stored for sessionID.
func (r RedisSessionCache) GetSession(ctx context.Context, sessionID string) (*navigation.Snapshot, error) {
	val, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	var snapshot navigation.Snapshot
	if err := json.Unmarshal(val, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshalling session: %w", err)
	}
	return &snapshot, nil
}

func (r RedisSessionCache) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// RedisRouteStore keeps the last route calculation of each session.
type RedisRouteStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRouteStore(client *redis.Client, ttl time.Duration) *RedisRouteStore {
	return &RedisRouteStore{client: client, ttl: ttl}
}

func (r RedisRouteStore) SetLastRoute(ctx context.Context, sessionID string, result *navigation.RouteResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling route: %w", err)
	}
	return r.client.Set(ctx, routeKey(sessionID), data, r.ttl).Err()
}

func (r RedisRouteStore) LastRoute(ctx context.Context, sessionID string) (*navigation.RouteResult, error) {
	val, err := r.client.Get(ctx, routeKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting route: %w", err)
	}
	var result navigation.RouteResult
	if err := json.Unmarshal(val, &result); err != nil {
		return nil, fmt.Errorf("unmarshalling route: %w", err)
	}
	return &result, nil
}

func (r RedisRouteStore) ClearLastRoute(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, routeKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("deleting route: %w", err)
	}
	return nil
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("navigation:session:%s", sessionID)
}

func routeKey(sessionID string) string {
	return fmt.Sprintf("navigation:route:%s", sessionID)
}
