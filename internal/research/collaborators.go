package research

import "context"

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ScrapeResult is the outcome of fetching one page. Ordinary fetch failures are
// reported with Success=false rather than an error.
type ScrapeResult struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	Success bool   `json:"success"`
}

// Searcher discovers pages for a query. An empty result is not an error.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// Scraper fetches the readable content of a page.
type Scraper interface {
	Scrape(ctx context.Context, url string) (ScrapeResult, error)
}

// TextModel produces free text from a system and user prompt.
type TextModel interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// StructuredModel produces a record validated against schema and decodes it
// into out. Output that cannot be validated yields ErrStructuredOutput.
type StructuredModel interface {
	GenerateStructured(ctx context.Context, system, user string, schema Schema, out interface{}) error
}

// Schema is a JSON Schema document plus the name the backend should use for it.
type Schema struct {
	Name     string
	Document map[string]interface{}
}
