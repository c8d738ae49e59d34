package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/circuitbreaker"
	"github.com/Kocoro-lab/toolscout/internal/metrics"
	"github.com/Kocoro-lab/toolscout/internal/research"
)

// CacheConfig configures the Redis result cache.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Prefix    string        `mapstructure:"prefix"`
	SearchTTL time.Duration `mapstructure:"search_ttl"`
	ScrapeTTL time.Duration `mapstructure:"scrape_ttl"`
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.Prefix == "" {
		c.Prefix = "toolscout:cache"
	}
	if c.SearchTTL <= 0 {
		c.SearchTTL = 6 * time.Hour
	}
	if c.ScrapeTTL <= 0 {
		c.ScrapeTTL = 24 * time.Hour
	}
	return c
}

// CachedSearcher memoizes search results in Redis. Cache errors fall through
// to the wrapped searcher.
type CachedSearcher struct {
	next   research.Searcher
	redis  *circuitbreaker.RedisWrapper
	cfg    CacheConfig
	logger *zap.Logger
}

// NewCachedSearcher wraps next with a Redis cache.
func NewCachedSearcher(next research.Searcher, rw *circuitbreaker.RedisWrapper, cfg CacheConfig, logger *zap.Logger) *CachedSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSearcher{next: next, redis: rw, cfg: cfg.withDefaults(), logger: logger}
}

// Search implements research.Searcher.
func (c *CachedSearcher) Search(ctx context.Context, query string, limit int) ([]research.SearchResult, error) {
	key := c.cfg.Prefix + ":search:" + digest(query+"\x00"+strconv.Itoa(limit))
	var cached []research.SearchResult
	if c.load(ctx, "search", key, &cached) {
		return cached, nil
	}
	results, err := c.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, results, c.cfg.SearchTTL)
	return results, nil
}

// CachedScraper memoizes successful scrapes in Redis.
type CachedScraper struct {
	next   research.Scraper
	redis  *circuitbreaker.RedisWrapper
	cfg    CacheConfig
	logger *zap.Logger
}

// NewCachedScraper wraps next with a Redis cache.
func NewCachedScraper(next research.Scraper, rw *circuitbreaker.RedisWrapper, cfg CacheConfig, logger *zap.Logger) *CachedScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedScraper{next: next, redis: rw, cfg: cfg.withDefaults(), logger: logger}
}

// Scrape implements research.Scraper. Failed scrapes are not cached.
func (c *CachedScraper) Scrape(ctx context.Context, url string) (research.ScrapeResult, error) {
	key := c.cfg.Prefix + ":scrape:" + digest(url)
	var cached research.ScrapeResult
	if c.load(ctx, "scrape", key, &cached) && cached.Success {
		return cached, nil
	}
	res, err := c.next.Scrape(ctx, url)
	if err != nil || !res.Success {
		return res, err
	}
	c.store(ctx, key, res, c.cfg.ScrapeTTL)
	return res, nil
}

func (c *CachedSearcher) load(ctx context.Context, kind, key string, out interface{}) bool {
	return load(ctx, c.redis, c.logger, kind, key, out)
}

func (c *CachedSearcher) store(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	store(ctx, c.redis, c.logger, key, v, ttl)
}

func (c *CachedScraper) load(ctx context.Context, kind, key string, out interface{}) bool {
	return load(ctx, c.redis, c.logger, kind, key, out)
}

func (c *CachedScraper) store(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	store(ctx, c.redis, c.logger, key, v, ttl)
}

func load(ctx context.Context, rw *circuitbreaker.RedisWrapper, logger *zap.Logger, kind, key string, out interface{}) bool {
	data, err := rw.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Debug("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		metrics.RecordCache(kind, false)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		logger.Warn("Cache entry corrupt", zap.String("key", key), zap.Error(err))
		metrics.RecordCache(kind, false)
		return false
	}
	metrics.RecordCache(kind, true)
	return true
}

func store(ctx context.Context, rw *circuitbreaker.RedisWrapper, logger *zap.Logger, key string, v interface{}, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := rw.Set(ctx, key, data, ttl); err != nil {
		logger.Debug("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
