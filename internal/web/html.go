package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/Kocoro-lab/toolscout/internal/circuitbreaker"
	"github.com/Kocoro-lab/toolscout/internal/metrics"
	"github.com/Kocoro-lab/toolscout/internal/research"
)

const providerDirect = "direct"

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]+`)
)

// HTMLScraperConfig configures direct page fetches.
type HTMLScraperConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	MaxBytes  int64         `mapstructure:"max_bytes"`
}

// HTMLScraper fetches pages directly and converts their HTML to markdown-ish text.
type HTMLScraper struct {
	cfg    HTMLScraperConfig
	http   *circuitbreaker.HTTPWrapper
	logger *zap.Logger
}

// NewHTMLScraper creates a direct scraper.
func NewHTMLScraper(cfg HTMLScraperConfig, client *http.Client, logger *zap.Logger) *HTMLScraper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; toolscout/1.0)"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 4 << 20
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTMLScraper{
		cfg:    cfg,
		http:   circuitbreaker.NewHTTPWrapper(client, circuitbreaker.NameScrape, providerDirect, logger),
		logger: logger,
	}
}

// Scrape implements research.Scraper.
func (s *HTMLScraper) Scrape(ctx context.Context, url string) (result research.ScrapeResult, err error) {
	started := time.Now()
	result = research.ScrapeResult{URL: url}
	defer func() {
		var callErr error
		if err != nil || !result.Success {
			callErr = fmt.Errorf("scrape failed")
		}
		metrics.RecordCollaboratorCall(providerDirect, "scrape", callErr, started)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.logger.Debug("Invalid scrape url", zap.String("url", url), zap.Error(err))
		return result, nil
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := s.http.Do(req)
	if err != nil {
		if circuitbreaker.IsRejection(err) || ctx.Err() != nil {
			return result, research.Unavailable("scrape", err)
		}
		s.logger.Warn("Direct fetch failed", zap.String("url", url), zap.Error(err))
		return result, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("Direct fetch non-2xx", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return result, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBytes))
	if err != nil {
		s.logger.Warn("Direct fetch read failed", zap.String("url", url), zap.Error(err))
		return result, nil
	}

	content := string(body)
	if ct := resp.Header.Get("Content-Type"); ct == "" || strings.Contains(ct, "html") {
		md, err := HTMLToMarkdown(content)
		if err != nil {
			s.logger.Warn("HTML parse failed", zap.String("url", url), zap.Error(err))
			return result, nil
		}
		content = md
	}
	if strings.TrimSpace(content) == "" {
		return result, nil
	}
	result.Content = content
	result.Success = true
	return result, nil
}

// HTMLToMarkdown renders the readable text of an HTML document with light
// markdown structure. Navigation chrome and scripts are dropped.
func HTMLToMarkdown(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	render(root, &sb, 0)
	return cleanMarkdown(sb.String()), nil
}

func render(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 64 {
		return
	}
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header", "form":
			return
		case "title":
			sb.WriteString("# ")
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				render(c, sb, depth+1)
			}
			sb.WriteString("\n\n")
			return
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n" + strings.Repeat("#", int(n.Data[1]-'0')) + " ")
		case "p", "div", "section", "article", "table":
			sb.WriteString("\n\n")
		case "br", "tr":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		case "pre":
			sb.WriteString("\n\n```\n")
		case "code":
			sb.WriteString("`")
		case "img":
			if alt := attr(n, "alt"); alt != "" {
				sb.WriteString("[Image: " + alt + "]")
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(c, sb, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n")
		case "pre":
			sb.WriteString("\n```\n\n")
		case "code":
			sb.WriteString("`")
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func cleanMarkdown(s string) string {
	s = multiSpacePattern.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
