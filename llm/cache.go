package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/loomworks/loom/internal/metrics"
)

const cacheKeyPrefix = "llm:cache:"

// Cache wraps a Service with a Redis response cache. The key is a SHA-256
// digest of the JSON-serialized request, so identical prompts against the
// same model config share one entry. Credentials are excluded from the
// digest and never stored.
type Cache struct {
	inner     Service
	client    redis.UniversalClient
	ttl       time.Duration
	collector *metrics.Collector
	logger    *zap.Logger
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithCacheMetrics records hit and miss counts.
func WithCacheMetrics(c *metrics.Collector) CacheOption {
	return func(cache *Cache) { cache.collector = c }
}

// NewCache creates a caching wrapper around inner. A zero ttl means entries
// do not expire.
func NewCache(inner Service, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "llm_cache")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheKey returns the Redis key a request maps to.
func CacheKey(req Request) string {
	data, err := json.Marshal(req)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", req))
	}
	sum := sha256.Sum256(data)
	return cacheKeyPrefix + hex.EncodeToString(sum[:16])
}

// Execute serves a cached response when one exists, otherwise calls the
// wrapped service and stores its result. Cache transport errors degrade to
// a direct call; they never fail the request.
func (c *Cache) Execute(ctx context.Context, req Request) (*Response, error) {
	key := CacheKey(req)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached Response
		if err := json.Unmarshal(data, &cached); err == nil {
			c.logger.Debug("cache hit", zap.String("key", key))
			if c.collector != nil {
				c.collector.RecordCacheHit()
			}
			return &cached, nil
		}
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", key))
		c.client.Del(ctx, key)
	} else if err != redis.Nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if c.collector != nil {
		c.collector.RecordCacheMiss()
	}

	resp, err := c.inner.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resp); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return resp, nil
}

// Invalidate removes the cached entry for a request.
func (c *Cache) Invalidate(ctx context.Context, req Request) error {
	return c.client.Del(ctx, CacheKey(req)).Err()
}
