package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

// DefaultCacheTTL bounds how stale cached preferences and counts can be.
const DefaultCacheTTL = 300 * time.Second

// Cache is a best-effort read-through layer. Failures are logged and reported as misses.
type Cache interface {
	GetPreference(ctx context.Context, userID string) (*Preference, bool)
	SetPreference(ctx context.Context, p *Preference)
	InvalidatePreference(ctx context.Context, userID string)
	GetUnreadCount(ctx context.Context, userID string) (int, bool)
	SetUnreadCount(ctx context.Context, userID string, count int)
	InvalidateUnreadCount(ctx context.Context, userID string)
}

func preferenceKey(userID string) string  { return "notification_preferences:" + userID }
func unreadCountKey(userID string) string { return "unread_notifications_count:" + userID }

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *observability.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *observability.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger.With("component", "notification_cache")}
}

func (c *RedisCache) GetPreference(ctx context.Context, userID string) (*Preference, bool) {
	raw, err := c.client.Get(ctx, preferenceKey(userID)).Bytes()
	if err != nil {
		c.logMiss(err, "preferences", userID)
		return nil, false
	}
	var p Preference
	if err := json.Unmarshal(raw, &p); err != nil {
		c.logger.Warn("discarding corrupt cached preferences", "user_id", userID, "error", err)
		c.InvalidatePreference(ctx, userID)
		return nil, false
	}
	p.Normalize()
	return &p, true
}

func (c *RedisCache) SetPreference(ctx context.Context, p *Preference) {
	raw, err := json.Marshal(p)
	if err != nil {
		c.logger.Warn("failed to encode preferences for cache", "user_id", p.UserID, "error", err)
		return
	}
	if err := c.client.Set(ctx, preferenceKey(p.UserID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache preferences", "user_id", p.UserID, "error", err)
	}
}

func (c *RedisCache) InvalidatePreference(ctx context.Context, userID string) {
	c.del(ctx, preferenceKey(userID))
}

func (c *RedisCache) GetUnreadCount(ctx context.Context, userID string) (int, bool) {
	raw, err := c.client.Get(ctx, unreadCountKey(userID)).Result()
	if err != nil {
		c.logMiss(err, "unread_count", userID)
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.InvalidateUnreadCount(ctx, userID)
		return 0, false
	}
	return n, true
}

func (c *RedisCache) SetUnreadCount(ctx context.Context, userID string, count int) {
	if err := c.client.Set(ctx, unreadCountKey(userID), count, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache unread count", "user_id", userID, "error", err)
	}
}

func (c *RedisCache) InvalidateUnreadCount(ctx context.Context, userID string) {
	c.del(ctx, unreadCountKey(userID))
}

func (c *RedisCache) del(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("failed to invalidate cache key", "key", key, "error", err)
	}
}

func (c *RedisCache) logMiss(err error, what, userID string) {
	if errors.Is(err, redis.Nil) {
		return
	}
	c.logger.Warn(fmt.Sprintf("cache read failed for %s", what), "user_id", userID, "error", err)
}

// NopCache disables caching.
type NopCache struct{}

func (NopCache) GetPreference(context.Context, string) (*Preference, bool) { return nil, false }
func (NopCache) SetPreference(context.Context, *Preference)                {}
func (NopCache) InvalidatePreference(context.Context, string)              {}
func (NopCache) GetUnreadCount(context.Context, string) (int, bool)        { return 0, false }
func (NopCache) SetUnreadCount(context.Context, string, int)               {}
func (NopCache) InvalidateUnreadCount(context.Context, string)             {}
