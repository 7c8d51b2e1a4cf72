package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const allModulesKey = "all"

// resultCache stores history and summary payloads per user. A nil client
// disables caching.
type resultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func newResultCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *resultCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &resultCache{client: client, ttl: ttl, logger: logger}
}

func historyCacheKey(userID uint, module string) string {
	if module == "" {
		module = allModulesKey
	}
	return fmt.Sprintf("assessment:history:user:%d:module:%s", userID, module)
}

func summaryCacheKey(userID, sectionID uint) string {
	return fmt.Sprintf("assessment:summary:user:%d:section:%d", userID, sectionID)
}

func (c *resultCache) get(ctx context.Context, key string, target interface{}) bool {
	if c == nil || c.client == nil {
		return false
	}

	cached, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("failed to read result cache")
		}
		return false
	}

	if err := json.Unmarshal([]byte(cached), target); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt result cache entry")
		return false
	}
	return true
}

func (c *resultCache) set(ctx context.Context, key string, value interface{}) {
	if c == nil || c.client == nil {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to store result cache")
	}
}

// invalidate drops every cached view a write to (userID, sectionID) can change.
func (c *resultCache) invalidate(ctx context.Context, userID, sectionID uint, module string) {
	if c == nil || c.client == nil {
		return
	}

	keys := []string{
		historyCacheKey(userID, module),
		historyCacheKey(userID, ""),
		summaryCacheKey(userID, sectionID),
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Uint("user_id", userID).Msg("failed to invalidate result cache")
	}
}
