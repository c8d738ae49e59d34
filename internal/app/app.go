// Package app assembles collaborators and infrastructure from configuration.
// It is shared by the service binary and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/circuitbreaker"
	"github.com/Kocoro-lab/toolscout/internal/config"
	"github.com/Kocoro-lab/toolscout/internal/db"
	"github.com/Kocoro-lab/toolscout/internal/llm"
	"github.com/Kocoro-lab/toolscout/internal/research"
	"github.com/Kocoro-lab/toolscout/internal/web"
)

// OpenRedis connects to Redis when enabled. It returns nil, nil when disabled.
func OpenRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*circuitbreaker.RedisWrapper, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	rw := circuitbreaker.NewRedisWrapper(client, "redis", logger)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rw.Ping(ctx); err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	logger.Info("Redis connected", zap.String("addr", cfg.Addr))
	return rw, nil
}

// OpenDatabase opens the run store when enabled. It returns nil, nil when disabled.
func OpenDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*db.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dbCfg := cfg.Config
	return db.NewClient(&dbCfg, logger)
}

// NewSearcher builds the configured search chain, optionally cached.
func NewSearcher(cfg *config.Config, rw *circuitbreaker.RedisWrapper, logger *zap.Logger) (research.Searcher, error) {
	var chain []research.Searcher
	ddg := func() research.Searcher { return web.NewDuckDuckGo(cfg.Search.DuckDuckGoURL, nil, logger) }

	switch cfg.Search.Provider {
	case "duckduckgo":
		chain = append(chain, ddg())
	default:
		fc, err := web.NewFirecrawl(cfg.Firecrawl, logger)
		switch {
		case err == nil:
			chain = append(chain, fc)
			if cfg.Search.Fallback {
				chain = append(chain, ddg())
			}
		case cfg.Search.Fallback:
			logger.Warn("Firecrawl unavailable, searching with DuckDuckGo only", zap.Error(err))
			chain = append(chain, ddg())
		default:
			return nil, err
		}
	}

	var s research.Searcher = chain[0]
	if len(chain) > 1 {
		s = web.NewFallbackSearcher(logger, chain...)
	}
	if cfg.Cache.Enabled && rw != nil {
		s = web.NewCachedSearcher(s, rw, cfg.Cache, logger)
	}
	return s, nil
}

// NewScraper builds the configured scrape chain, optionally cached.
func NewScraper(cfg *config.Config, rw *circuitbreaker.RedisWrapper, logger *zap.Logger) research.Scraper {
	var chain []research.Scraper
	if cfg.Search.Provider != "duckduckgo" {
		if fc, err := web.NewFirecrawl(cfg.Firecrawl, logger); err == nil {
			chain = append(chain, fc)
		}
	}
	if len(chain) == 0 || cfg.Search.ScrapeFallback {
		chain = append(chain, web.NewHTMLScraper(cfg.Scraper, nil, logger))
	}

	var s research.Scraper = chain[0]
	if len(chain) > 1 {
		s = web.NewFallbackScraper(logger, chain...)
	}
	if cfg.Cache.Enabled && rw != nil {
		s = web.NewCachedScraper(s, rw, cfg.Cache, logger)
	}
	return s
}

// NewCollaborators builds search, scrape, model and prompts from cfg.
func NewCollaborators(cfg *config.Config, rw *circuitbreaker.RedisWrapper, logger *zap.Logger) (research.Collaborators, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	search, err := NewSearcher(cfg, rw, logger)
	if err != nil {
		return research.Collaborators{}, fmt.Errorf("search: %w", err)
	}
	model, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return research.Collaborators{}, fmt.Errorf("llm: %w", err)
	}
	prompts, err := research.LoadPrompts(strings.TrimSpace(cfg.Research.PromptsPath))
	if err != nil {
		return research.Collaborators{}, err
	}
	return research.Collaborators{
		Search:     search,
		Scrape:     NewScraper(cfg, rw, logger),
		Text:       model,
		Structured: model,
		Prompts:    prompts,
	}, nil
}

// Closer collects cleanup functions and runs them in reverse order.
type Closer []func() error

func (c *Closer) Add(f func() error) { *c = append(*c, f) }

func (c Closer) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
