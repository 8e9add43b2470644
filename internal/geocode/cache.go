package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	platformredis "civicat/internal/platform/redis"
)

// Cache stores resolved fragments keyed by address. Implementations are
// best-effort: a miss or an error just means a fresh provider call.
type Cache interface {
	Get(ctx context.Context, address string) (Fragment, bool)
	Set(ctx context.Context, address string, frag Fragment)
}

// RedisCache caches fragments in Redis with a TTL. Addresses are hashed so
// arbitrary free text never becomes a raw key.
type RedisCache struct {
	client *platformredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *platformredis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(address string) string {
	sum := sha256.Sum256([]byte(address))
	return "geocode:" + hex.EncodeToString(sum[:16])
}

func (c *RedisCache) Get(ctx context.Context, address string) (Fragment, bool) {
	raw, err := c.client.Get(ctx, cacheKey(address)).Bytes()
	if err != nil {
		return nil, false
	}
	var frag Fragment
	if err := json.Unmarshal(raw, &frag); err != nil {
		c.logger.WarnContext(ctx, "geocode cache entry corrupt", "error", err)
		return nil, false
	}
	return frag, true
}

func (c *RedisCache) Set(ctx context.Context, address string, frag Fragment) {
	raw, err := json.Marshal(frag)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(address), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "geocode cache write failed", "error", err)
	}
}
