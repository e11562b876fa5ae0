// Package cache memoizes vision extractions so a rescanned certificate is not sent to the
// model twice.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/coi-compliance-server/internal/domain"
)

const (
	defaultMemoryCapacity = 1000
	defaultTTL            = 24 * time.Hour
	keyPrefix             = "coi:extraction:"
)

// Stats counts cache outcomes per tier.
type Stats struct {
	MemoryHits  int64 `json:"memory_hits"`
	RedisHits   int64 `json:"redis_hits"`
	Misses      int64 `json:"misses"`
	RedisErrors int64 `json:"redis_errors"`
}

// ExtractionCache is a two-tier cache: an in-process LRU in front of an optional Redis.
// Redis failures degrade to misses; the cache never fails a request.
type ExtractionCache struct {
	memory *expirable.LRU[string, *domain.ExtractionResult]
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger

	memoryHits  atomic.Int64
	redisHits   atomic.Int64
	misses      atomic.Int64
	redisErrors atomic.Int64
}

type cachedExtraction struct {
	Extraction *domain.ExtractionResult `json:"extraction"`
	CachedAt   time.Time                `json:"cached_at"`
}

// New creates an extraction cache. redisClient may be nil for a memory-only cache.
func New(config domain.CacheConfig, redisClient *redis.Client, logger *logrus.Logger) *ExtractionCache {
	capacity := config.MemoryCap
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &ExtractionCache{
		memory: expirable.NewLRU[string, *domain.ExtractionResult](capacity, nil, ttl),
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// NewRedisClient connects to Redis using the cache configuration.
func NewRedisClient(ctx context.Context, config domain.CacheConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Get looks the key up in memory, then in Redis. A Redis hit is promoted to memory.
func (c *ExtractionCache) Get(ctx context.Context, key string) (*domain.ExtractionResult, bool) {
	if extraction, ok := c.memory.Get(key); ok {
		c.memoryHits.Add(1)
		return extraction, true
	}

	if c.redis != nil {
		extraction, err := c.getRedis(ctx, key)
		switch {
		case err == nil:
			c.redisHits.Add(1)
			c.memory.Add(key, extraction)
			return extraction, true
		case !errors.Is(err, redis.Nil):
			c.redisErrors.Add(1)
			c.logger.WithError(err).WithField("cache_tier", "redis").Warn("Extraction cache read failed")
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Set stores the extraction in both tiers.
func (c *ExtractionCache) Set(ctx context.Context, key string, extraction *domain.ExtractionResult) {
	c.memory.Add(key, extraction)

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(cachedExtraction{Extraction: extraction, CachedAt: time.Now().UTC()})
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal extraction for cache")
		return
	}
	if err := c.redis.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		c.redisErrors.Add(1)
		c.logger.WithError(err).WithField("cache_tier", "redis").Warn("Extraction cache write failed")
	}
}

func (c *ExtractionCache) getRedis(ctx context.Context, key string) (*domain.ExtractionResult, error) {
	val, err := c.redis.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		return nil, err
	}

	var cached cachedExtraction
	if err := json.Unmarshal(val, &cached); err != nil || cached.Extraction == nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, keyPrefix+key)
		return nil, redis.Nil
	}
	return cached.Extraction, nil
}

// Stats returns a snapshot of the hit counters.
func (c *ExtractionCache) Stats() Stats {
	return Stats{
		MemoryHits:  c.memoryHits.Load(),
		RedisHits:   c.redisHits.Load(),
		Misses:      c.misses.Load(),
		RedisErrors: c.redisErrors.Load(),
	}
}

// Len returns the number of entries held in memory.
func (c *ExtractionCache) Len() int {
	return c.memory.Len()
}
