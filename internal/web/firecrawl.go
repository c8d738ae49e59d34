package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kocoro-lab/toolscout/internal/circuitbreaker"
	"github.com/Kocoro-lab/toolscout/internal/metrics"
	"github.com/Kocoro-lab/toolscout/internal/research"
)

const providerFirecrawl = "firecrawl"

// FirecrawlConfig configures the Firecrawl client.
type FirecrawlConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
	Burst           int           `mapstructure:"burst"`
	OnlyMainContent bool          `mapstructure:"only_main_content"`
}

// Firecrawl is a search and scrape client for the Firecrawl API.
type Firecrawl struct {
	cfg     FirecrawlConfig
	search  *circuitbreaker.HTTPWrapper
	scrape  *circuitbreaker.HTTPWrapper
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewFirecrawl creates a Firecrawl client. Search and scrape calls go through
// separate breakers so a flaky scrape target cannot block discovery.
func NewFirecrawl(cfg FirecrawlConfig, logger *zap.Logger) (*Firecrawl, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("firecrawl: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.firecrawl.dev"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{Timeout: cfg.Timeout}
	return &Firecrawl{
		cfg:     cfg,
		search:  circuitbreaker.NewHTTPWrapper(client, circuitbreaker.NameSearch, providerFirecrawl, logger),
		scrape:  circuitbreaker.NewHTTPWrapper(client, circuitbreaker.NameScrape, providerFirecrawl, logger),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		logger:  logger,
	}, nil
}

type firecrawlSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type firecrawlSearchResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Markdown    string `json:"markdown"`
		Metadata    struct {
			Title string `json:"title"`
		} `json:"metadata"`
	} `json:"data"`
	Error string `json:"error"`
}

// Search implements research.Searcher.
func (f *Firecrawl) Search(ctx context.Context, query string, limit int) (results []research.SearchResult, err error) {
	started := time.Now()
	defer func() { metrics.RecordCollaboratorCall(providerFirecrawl, "search", err, started) }()

	var out firecrawlSearchResponse
	status, err := f.post(ctx, f.search, "/v1/search", firecrawlSearchRequest{Query: query, Limit: limit}, &out)
	if err != nil {
		return nil, research.Unavailable("search", err)
	}
	if status != http.StatusOK || !out.Success {
		return nil, research.Unavailable("search", fmt.Errorf("firecrawl search http %d: %s", status, out.Error))
	}

	results = make([]research.SearchResult, 0, len(out.Data))
	for _, d := range out.Data {
		title := d.Title
		if title == "" {
			title = d.Metadata.Title
		}
		snippet := d.Description
		if snippet == "" {
			snippet = d.Markdown
		}
		results = append(results, research.SearchResult{Title: title, URL: d.URL, Snippet: snippet})
	}
	return results, nil
}

type firecrawlScrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type firecrawlScrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
	} `json:"data"`
	Error string `json:"error"`
}

// Scrape implements research.Scraper. Upstream and target-site failures are
// reported as Success=false; only breaker rejection and cancellation are errors.
func (f *Firecrawl) Scrape(ctx context.Context, url string) (result research.ScrapeResult, err error) {
	started := time.Now()
	defer func() {
		var callErr error
		if err != nil || !result.Success {
			callErr = fmt.Errorf("scrape failed")
		}
		metrics.RecordCollaboratorCall(providerFirecrawl, "scrape", callErr, started)
	}()

	result = research.ScrapeResult{URL: url}
	var out firecrawlScrapeResponse
	req := firecrawlScrapeRequest{URL: url, Formats: []string{"markdown"}, OnlyMainContent: f.cfg.OnlyMainContent}
	status, err := f.post(ctx, f.scrape, "/v1/scrape", req, &out)
	if err != nil {
		if circuitbreaker.IsRejection(err) || ctx.Err() != nil {
			return result, research.Unavailable("scrape", err)
		}
		f.logger.Warn("Firecrawl scrape failed", zap.String("url", url), zap.Error(err))
		return result, nil
	}
	if status != http.StatusOK || !out.Success || strings.TrimSpace(out.Data.Markdown) == "" {
		f.logger.Warn("Firecrawl scrape unsuccessful",
			zap.String("url", url),
			zap.Int("status", status),
			zap.String("error", out.Error),
		)
		return result, nil
	}
	result.Content = out.Data.Markdown
	result.Success = true
	return result, nil
}

func (f *Firecrawl) post(ctx context.Context, hw *circuitbreaker.HTTPWrapper, path string, body, out interface{}) (int, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(f.cfg.BaseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)

	resp, err := hw.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil && resp.StatusCode == http.StatusOK {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
