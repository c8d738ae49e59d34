package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/Kocoro-lab/toolscout/internal/circuitbreaker"
	"github.com/Kocoro-lab/toolscout/internal/metrics"
	"github.com/Kocoro-lab/toolscout/internal/research"
)

const providerDuckDuckGo = "duckduckgo"

// DuckDuckGo searches the DuckDuckGo lite HTML endpoint. It needs no API key
// and serves as the fallback search provider.
type DuckDuckGo struct {
	endpoint string
	http     *circuitbreaker.HTTPWrapper
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewDuckDuckGo creates a searcher. An empty endpoint uses the public lite page.
func NewDuckDuckGo(endpoint string, client *http.Client, logger *zap.Logger) *DuckDuckGo {
	if endpoint == "" {
		endpoint = "https://lite.duckduckgo.com/lite/"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuckDuckGo{
		endpoint: endpoint,
		http:     circuitbreaker.NewHTTPWrapper(client, circuitbreaker.NameSearch, providerDuckDuckGo, logger),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		logger:   logger,
	}
}

// Search implements research.Searcher.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) (results []research.SearchResult, err error) {
	started := time.Now()
	defer func() { metrics.RecordCollaboratorCall(providerDuckDuckGo, "search", err, started) }()

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, research.Unavailable("search", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; toolscout/1.0)")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, research.Unavailable("search", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, research.Unavailable("search", fmt.Errorf("duckduckgo http %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, research.Unavailable("search", err)
	}
	results, err = ParseDuckDuckGoLite(string(body))
	if err != nil {
		return nil, research.Unavailable("search", err)
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ParseDuckDuckGoLite extracts results from the lite HTML page: anchors with
// class "result-link", each followed by a "result-snippet" cell.
func ParseDuckDuckGoLite(page string) ([]research.SearchResult, error) {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}
	results := []research.SearchResult{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result-link"):
				href := resolveDDGLink(attr(n, "href"))
				title := strings.TrimSpace(textOf(n))
				if href != "" && title != "" {
					results = append(results, research.SearchResult{Title: title, URL: href})
				}
			case n.Data == "td" && hasClass(n, "result-snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = strings.Join(strings.Fields(textOf(n)), " ")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results, nil
}

// resolveDDGLink unwraps "//duckduckgo.com/l/?uddg=<target>" redirect links.
func resolveDDGLink(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
