package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ToolExtractor discovers candidate tool names for a query from web articles.
type ToolExtractor struct {
	search   Searcher
	scrape   Scraper
	model    TextModel
	prompts  Prompts
	settings Settings
	logger   *zap.Logger
}

// NewToolExtractor creates an extraction stage.
func NewToolExtractor(search Searcher, scrape Scraper, model TextModel, prompts Prompts, settings Settings, logger *zap.Logger) *ToolExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolExtractor{
		search:   search,
		scrape:   scrape,
		model:    model,
		prompts:  prompts,
		settings: settings.WithDefaults(),
		logger:   logger,
	}
}

// Extract returns the ordered, de-duplicated tool names for query. A search or
// model failure is returned as an error; individual scrape failures only drop
// that article from the aggregate.
func (e *ToolExtractor) Extract(ctx context.Context, query string) (ExtractionUpdate, error) {
	// cancellation takes effect at stage boundaries, never mid-call
	ctx = context.WithoutCancel(ctx)
	discovery := e.settings.discoveryQuery(query)
	results, err := e.search.Search(ctx, discovery, e.settings.ArticleResults)
	if err != nil {
		return ExtractionUpdate{}, fmt.Errorf("search articles: %w", classify("search", err))
	}
	if len(results) > e.settings.ArticleResults {
		results = results[:e.settings.ArticleResults]
	}

	content := e.aggregate(ctx, results)

	raw, err := e.model.Generate(ctx, e.prompts.ExtractionSystem, e.prompts.extractionUser(query, content))
	if err != nil {
		return ExtractionUpdate{}, fmt.Errorf("extract tool names: %w", classify("generate", err))
	}

	tools := ParseToolNames(raw, e.settings.MaxTools)
	e.logger.Info("Extracted tools",
		zap.Int("articles", len(results)),
		zap.Int("content_chars", len(content)),
		zap.Strings("tools", tools),
	)
	return ExtractionUpdate{Tools: tools}, nil
}

func (e *ToolExtractor) aggregate(ctx context.Context, results []SearchResult) string {
	truncator := Truncator{Limit: e.settings.ArticleCharLimit}
	docs := make([]string, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		page, err := e.scrape.Scrape(ctx, r.URL)
		if err != nil || !page.Success {
			e.logger.Warn("Article scrape failed",
				zap.String("url", r.URL),
				zap.Error(err),
			)
			continue
		}
		docs = append(docs, truncator.Truncate(page.Content))
	}
	return strings.Join(docs, e.settings.ArticleSeparator)
}

// ParseToolNames splits newline-delimited model output into trimmed names,
// dropping blanks and exact duplicates (first occurrence wins), capped at max.
// Bullets ("- ", "* ") are stripped. Numbering ("1. ", "2) ") is stripped only
// when every line is numbered, so a name like "7. Days" inside a plain list
// survives.
func ParseToolNames(raw string, max int) []string {
	lines := []string{}
	for _, line := range strings.Split(raw, "\n") {
		if line = stripBullet(strings.TrimSpace(line)); line != "" {
			lines = append(lines, line)
		}
	}
	numbered := len(lines) > 0
	for _, line := range lines {
		if _, ok := cutNumber(line); !ok {
			numbered = false
			break
		}
	}

	names := []string{}
	seen := make(map[string]struct{})
	for _, name := range lines {
		if max > 0 && len(names) >= max {
			break
		}
		if numbered {
			name, _ = cutNumber(name)
		}
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func stripBullet(s string) string {
	switch {
	case strings.HasPrefix(s, "- "), strings.HasPrefix(s, "* "), strings.HasPrefix(s, "• "):
		_, rest, _ := strings.Cut(s, " ")
		return strings.TrimSpace(rest)
	}
	return s
}

// cutNumber strips a leading "1. " or "1) ".
func cutNumber(s string) (string, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(s) && (s[i] == '.' || s[i] == ')') && s[i+1] == ' ' {
		return strings.TrimSpace(s[i+2:]), true
	}
	return s, false
}
