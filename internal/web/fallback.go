package web

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

// FallbackScraper tries scrapers in order until one succeeds.
type FallbackScraper struct {
	scrapers []research.Scraper
	logger   *zap.Logger
}

// NewFallbackScraper chains scrapers; nil entries are skipped.
func NewFallbackScraper(logger *zap.Logger, scrapers ...research.Scraper) *FallbackScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	chain := make([]research.Scraper, 0, len(scrapers))
	for _, s := range scrapers {
		if s != nil {
			chain = append(chain, s)
		}
	}
	return &FallbackScraper{scrapers: chain, logger: logger}
}

// Scrape implements research.Scraper. It reports Success=false when every
// scraper failed, and an error only if every scraper returned one.
func (f *FallbackScraper) Scrape(ctx context.Context, url string) (research.ScrapeResult, error) {
	var errs []error
	for i, s := range f.scrapers {
		if err := ctx.Err(); err != nil {
			return research.ScrapeResult{URL: url}, err
		}
		res, err := s.Scrape(ctx, url)
		if err == nil && res.Success {
			if i > 0 {
				f.logger.Debug("Scrape served by fallback", zap.String("url", url), zap.Int("position", i))
			}
			return res, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(f.scrapers) && len(errs) > 0 {
		return research.ScrapeResult{URL: url}, errors.Join(errs...)
	}
	return research.ScrapeResult{URL: url}, nil
}

// FallbackSearcher tries searchers in order, moving on when one errors.
type FallbackSearcher struct {
	searchers []research.Searcher
	logger    *zap.Logger
}

// NewFallbackSearcher chains searchers; nil entries are skipped.
func NewFallbackSearcher(logger *zap.Logger, searchers ...research.Searcher) *FallbackSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	chain := make([]research.Searcher, 0, len(searchers))
	for _, s := range searchers {
		if s != nil {
			chain = append(chain, s)
		}
	}
	return &FallbackSearcher{searchers: chain, logger: logger}
}

// Search implements research.Searcher. An empty result from a healthy provider
// is returned as-is.
func (f *FallbackSearcher) Search(ctx context.Context, query string, limit int) ([]research.SearchResult, error) {
	var errs []error
	for i, s := range f.searchers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.Search(ctx, query, limit)
		if err == nil {
			return res, nil
		}
		f.logger.Warn("Search provider failed", zap.Int("position", i), zap.Error(err))
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return []research.SearchResult{}, nil
	}
	return nil, errors.Join(errs...)
}
