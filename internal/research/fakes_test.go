package research

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
)

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	fn      func(query string, limit int) ([]SearchResult, error)
}

func (f *fakeSearch) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.fn(query, limit)
}

// siteSearch resolves "<name> official site" to https://<lower(name)>.example and
// article queries to n article URLs.
func siteSearch(articles int) *fakeSearch {
	return &fakeSearch{fn: func(query string, limit int) ([]SearchResult, error) {
		if name, ok := strings.CutSuffix(query, " official site"); ok {
			return []SearchResult{{Title: name, URL: "https://" + strings.ToLower(name) + ".example"}}, nil
		}
		out := []SearchResult{}
		for i := 0; i < articles && i < limit; i++ {
			out = append(out, SearchResult{Title: "article", URL: "https://blog.example/" + string(rune('a'+i))})
		}
		return out, nil
	}}
}

type fakeScrape struct {
	mu   sync.Mutex
	urls []string
	fail map[string]bool
	body func(url string) string
}

func (f *fakeScrape) Scrape(ctx context.Context, url string) (ScrapeResult, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if f.fail[url] {
		return ScrapeResult{URL: url, Success: false}, nil
	}
	content := "content of " + url
	if f.body != nil {
		content = f.body(url)
	}
	return ScrapeResult{URL: url, Content: content, Success: true}, nil
}

type textCall struct {
	system string
	user   string
}

type fakeText struct {
	mu      sync.Mutex
	calls   []textCall
	replies []string
	errs    []error
}

func (f *fakeText) Generate(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, textCall{system: system, user: user})
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", nil
}

func (f *fakeText) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStructured struct {
	calls atomic.Int32
	fn    func(user string) (string, error)
}

func (f *fakeStructured) GenerateStructured(ctx context.Context, system, user string, schema Schema, out interface{}) error {
	f.calls.Add(1)
	raw := `{"pricing_model":"Freemium","is_open_source":true,"tech_stack":["Postgres"],"description":"A backend.","api_available":true,"language_support":["JavaScript"],"integration_capabilities":["GitHub"]}`
	if f.fn != nil {
		var err error
		raw, err = f.fn(user)
		if err != nil {
			return err
		}
	}
	return json.Unmarshal([]byte(raw), out)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) OnEvent(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}
