package research

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EntityResearcher produces the fact record for one tool. It never fails: any
// collaborator problem is folded into a placeholder or default record.
type EntityResearcher interface {
	Research(ctx context.Context, name string) EntityFactRecord
}

// EntityResearcherFunc adapts a function to EntityResearcher.
type EntityResearcherFunc func(ctx context.Context, name string) EntityFactRecord

func (f EntityResearcherFunc) Research(ctx context.Context, name string) EntityFactRecord {
	return f(ctx, name)
}

// SiteResearcher resolves a tool's site, fetches it and asks the structured
// model for its enrichment fields.
type SiteResearcher struct {
	search   Searcher
	scrape   Scraper
	model    StructuredModel
	prompts  Prompts
	settings Settings
	logger   *zap.Logger
}

// NewSiteResearcher creates the per-entity researcher.
func NewSiteResearcher(search Searcher, scrape Scraper, model StructuredModel, prompts Prompts, settings Settings, logger *zap.Logger) *SiteResearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiteResearcher{
		search:   search,
		scrape:   scrape,
		model:    model,
		prompts:  prompts,
		settings: settings.WithDefaults(),
		logger:   logger,
	}
}

// Research implements EntityResearcher.
func (r *SiteResearcher) Research(ctx context.Context, name string) EntityFactRecord {
	logger := r.logger.With(zap.String("tool", name))
	// in-flight calls run to completion; cancellation is observed by the executor
	ctx = context.WithoutCancel(ctx)

	hits, err := r.search.Search(ctx, r.settings.siteQuery(name), 1)
	if err != nil {
		logger.Warn("Site search failed", zap.Error(err))
		return PlaceholderRecord(name)
	}
	url := ""
	if len(hits) > 0 {
		url = strings.TrimSpace(hits[0].URL)
	}
	if url == "" {
		logger.Info("No site found")
		return PlaceholderRecord(name)
	}

	page, err := r.scrape.Scrape(ctx, url)
	if err != nil || !page.Success {
		logger.Warn("Site scrape failed", zap.String("url", url), zap.Error(err))
		return PlaceholderRecord(name)
	}

	schema, err := EnrichmentSchema()
	if err != nil {
		logger.Error("Enrichment schema unavailable", zap.Error(err))
		return DefaultRecord(name, url)
	}

	content := Truncator{Limit: r.settings.SiteCharLimit}.Truncate(page.Content)
	var enrichment Enrichment
	err = r.model.GenerateStructured(ctx, r.prompts.AnalysisSystem, r.prompts.analysisUser(name, content), schema, &enrichment)
	if err != nil {
		if errors.Is(err, ErrStructuredOutput) {
			logger.Warn("Analysis output rejected", zap.String("url", url), zap.Error(err))
		} else {
			logger.Warn("Analysis model failed", zap.String("url", url), zap.Error(err))
		}
		return DefaultRecord(name, url)
	}
	return MergeRecord(name, url, enrichment)
}

// EntityCallback observes one entity of a fan-out.
type EntityCallback func(index int, name string, record *EntityFactRecord)

// Executor runs an EntityResearcher over every name and assembles the records
// at their names' indices. started and completed may be nil.
type Executor interface {
	Execute(ctx context.Context, names []string, researcher EntityResearcher, started, completed EntityCallback) ([]EntityFactRecord, error)
}

// SequentialExecutor researches entities one at a time in order.
type SequentialExecutor struct{}

// Execute implements Executor. Cancellation is observed between entities.
func (SequentialExecutor) Execute(ctx context.Context, names []string, researcher EntityResearcher, started, completed EntityCallback) ([]EntityFactRecord, error) {
	records := make([]EntityFactRecord, len(names))
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if started != nil {
			started(i, name, nil)
		}
		records[i] = researcher.Research(ctx, name)
		if completed != nil {
			completed(i, name, &records[i])
		}
	}
	return records, nil
}

// PoolExecutor researches up to Limit entities concurrently.
type PoolExecutor struct {
	Limit int
}

// Execute implements Executor. Each record lands at its name's index whatever
// the completion order. Callbacks may run concurrently.
func (p PoolExecutor) Execute(ctx context.Context, names []string, researcher EntityResearcher, started, completed EntityCallback) ([]EntityFactRecord, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 1
	}
	records := make([]EntityFactRecord, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, name := range names {
		if gctx.Err() != nil {
			break
		}
		i, name := i, name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if started != nil {
				started(i, name, nil)
			}
			records[i] = researcher.Research(gctx, name)
			if completed != nil {
				completed(i, name, &records[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ExecutorFor picks the executor matching a concurrency setting.
func ExecutorFor(concurrency int) Executor {
	if concurrency <= 1 {
		return SequentialExecutor{}
	}
	return PoolExecutor{Limit: concurrency}
}
