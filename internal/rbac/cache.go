package rbac

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	permKeyPrefix = "warden:perms:"
	roleKeyPrefix = "warden:roles:"
)

// PermissionCache memoizes effective permission and role sets per user in
// Redis. It sits between the engine and the store: cache misses resolve
// through the store (collapsed by singleflight), and every administrative
// mutation invalidates the affected users. Redis failures degrade to direct
// store reads, never to a wrong answer.
type PermissionCache struct {
	client *redis.Client
	source Resolver
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewPermissionCache wraps the source resolver with a Redis cache.
func NewPermissionCache(client *redis.Client, source Resolver, ttl time.Duration, logger *slog.Logger) *PermissionCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionCache{client: client, source: source, ttl: ttl, logger: logger}
}

// PermissionsOf returns the user's effective permission set, from cache when
// warm.
func (c *PermissionCache) PermissionsOf(ctx context.Context, userID string) ([]Permission, error) {
	key := permKeyPrefix + userID
	var cached []Permission
	if c.fetch(ctx, key, &cached) {
		return cached, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		perms, err := c.source.PermissionsOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, perms)
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Permission), nil
}

// RolesOf returns the user's bound roles, from cache when warm.
func (c *PermissionCache) RolesOf(ctx context.Context, userID string) ([]Role, error) {
	key := roleKeyPrefix + userID
	var cached []Role
	if c.fetch(ctx, key, &cached) {
		return cached, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		roles, err := c.source.RolesOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, roles)
		return roles, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Role), nil
}

// Invalidate drops the cached entries for the given users.
func (c *PermissionCache) Invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs)*2)
	for _, id := range userIDs {
		keys = append(keys, permKeyPrefix+id, roleKeyPrefix+id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache invalidate", slog.Any("error", err))
	}
}

func (c *PermissionCache) fetch(ctx context.Context, key string, target any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache read", slog.String("key", key), slog.Any("error", err))
		}
		return false
	}
	if err := json.Unmarshal(data, target); err != nil {
		c.logger.Warn("cache decode", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

func (c *PermissionCache) put(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache encode", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write", slog.String("key", key), slog.Any("error", err))
	}
}
