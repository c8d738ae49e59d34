package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

type stubSearch struct{}

func (stubSearch) Search(ctx context.Context, query string, limit int) ([]research.SearchResult, error) {
	if strings.HasSuffix(query, "official site") {
		name := strings.TrimSuffix(query, " official site")
		return []research.SearchResult{{Title: name, URL: "https://" + strings.ToLower(name) + ".example"}}, nil
	}
	return []research.SearchResult{{Title: "Top tools", URL: "https://blog.example/top"}}, nil
}

type stubScrape struct{}

func (stubScrape) Scrape(ctx context.Context, url string) (research.ScrapeResult, error) {
	return research.ScrapeResult{URL: url, Content: "content of " + url, Success: true}, nil
}

// stubText answers after delay. A cancelled context interrupting the call
// is reported as an error reply so tests can tell it apart.
type stubText struct {
	reply string
	delay time.Duration
}

func (s stubText) Generate(ctx context.Context, system, user string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", errors.New("in-flight call interrupted")
		}
	}
	return s.reply, nil
}

type stubStructured struct{}

func (stubStructured) GenerateStructured(ctx context.Context, system, user string, schema research.Schema, out interface{}) error {
	*out.(*research.Enrichment) = research.Enrichment{PricingModel: "Free", Description: "desc"}
	return nil
}

type countingSink struct {
	mu     sync.Mutex
	events []research.Event
}

func (c *countingSink) OnEvent(e research.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *countingSink) last() research.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

type failingStore struct{ calls int }

func (f *failingStore) SaveRun(ctx context.Context, s *research.ResearchState, mode string) error {
	f.calls++
	return errors.New("disk full")
}

func (f *failingStore) GetRun(ctx context.Context, runID string) (*research.ResearchState, error) {
	return nil, errors.New("unreachable")
}

func newRunner(t *testing.T, text stubText, opts Options) *Runner {
	c := research.Collaborators{
		Search:     stubSearch{},
		Scrape:     stubScrape{},
		Text:       text,
		Structured: stubStructured{},
		Prompts:    research.DefaultPrompts(),
	}
	return New(c, research.DefaultSettings, zaptest.NewLogger(t), opts)
}

func TestRunCompletes(t *testing.T) {
	sink := &countingSink{}
	r := newRunner(t, stubText{reply: "Alpha\nBeta"}, Options{Sink: sink})

	state, err := r.Run(context.Background(), "run-1", "vector databases", nil, "sync")
	require.NoError(t, err)
	assert.Equal(t, research.StatusCompleted, state.Status)
	assert.Equal(t, []string{"Alpha", "Beta"}, state.ExtractedTools)
	assert.Len(t, state.Companies, 2)
	assert.Equal(t, research.EventRunCompleted, sink.last().Type)

	got, err := r.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, research.StatusCompleted, got.Status)
}

func TestRunEmptyQuery(t *testing.T) {
	r := newRunner(t, stubText{reply: "Alpha"}, Options{})
	_, err := r.Run(context.Background(), "run-1", "   ", nil, "sync")
	assert.ErrorIs(t, err, research.ErrEmptyQuery)

	_, err = r.Get(context.Background(), "run-1")
	assert.True(t, IsNotFound(err))
}

func TestRunAppliesOverrides(t *testing.T) {
	r := newRunner(t, stubText{reply: "A\nB\nC\nD"}, Options{})
	state, err := r.Run(context.Background(), "run-1", "crm", &research.Settings{MaxTools: 2, Concurrency: 2}, "sync")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, state.ExtractedTools)

	s, err := r.Settings(&research.Settings{Concurrency: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Concurrency)
	assert.Equal(t, research.DefaultSettings().MaxTools, s.MaxTools)
}

func TestRunStoreErrorsDoNotFailRun(t *testing.T) {
	store := &failingStore{}
	r := newRunner(t, stubText{reply: "Alpha"}, Options{Store: store})
	state, err := r.Run(context.Background(), "run-1", "crm", nil, "sync")
	require.NoError(t, err)
	assert.Equal(t, research.StatusCompleted, state.Status)
	assert.Equal(t, 2, store.calls)

	// memory copy is served before the store
	got, err := r.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "crm", got.Query)
}

func TestStartAndShutdown(t *testing.T) {
	r := newRunner(t, stubText{reply: "Alpha", delay: 100 * time.Millisecond}, Options{})

	require.NoError(t, r.Start("run-1", "crm", nil, "async"))
	got, err := r.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, research.StatusInProgress, got.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	got, err = r.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, research.StatusFailed, got.Status)
	assert.True(t, got.Status.Terminal())
}

func TestRejectsOutOfBoundsOverrides(t *testing.T) {
	tests := []struct {
		name      string
		overrides research.Settings
		field     string
	}{
		{"concurrency", research.Settings{Concurrency: research.ConcurrencyLimit + 1}, "concurrency"},
		{"max tools", research.Settings{MaxTools: 1_000_000}, "max_tools"},
		{"article results", research.Settings{ArticleResults: 500}, "article_results"},
		{"article chars", research.Settings{ArticleCharLimit: research.ArticleCharLimitMax + 1}, "article_char_limit"},
		{"site chars", research.Settings{SiteCharLimit: 1 << 30}, "site_char_limit"},
		{"recommendation chars", research.Settings{RecommendationCharLimit: 1 << 30}, "recommendation_char_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRunner(t, stubText{reply: "Alpha"}, Options{})

			_, err := r.Settings(&tt.overrides)
			require.ErrorIs(t, err, research.ErrInvalidSettings)
			assert.Contains(t, err.Error(), tt.field)

			state, err := r.Run(context.Background(), "run-1", "crm", &tt.overrides, "sync")
			assert.ErrorIs(t, err, research.ErrInvalidSettings)
			assert.Nil(t, state)

			assert.ErrorIs(t, r.Start("run-2", "crm", &tt.overrides, "async"), research.ErrInvalidSettings)
			_, err = r.Get(context.Background(), "run-2")
			assert.True(t, IsNotFound(err), "rejected runs leave no record")
		})
	}
}

func TestRunTimeout(t *testing.T) {
	r := newRunner(t, stubText{reply: "Alpha", delay: 100 * time.Millisecond}, Options{Timeout: 20 * time.Millisecond})
	state, err := r.Run(context.Background(), "run-1", "crm", nil, "sync")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, research.StatusFailed, state.Status)
	assert.True(t, strings.HasPrefix(state.FailureReason, "cancelled"), state.FailureReason)
	// the extraction call outlived the deadline and its result was kept
	assert.Equal(t, []string{"Alpha"}, state.ExtractedTools)
}

func TestMemoryStoreEvicts(t *testing.T) {
	m := NewMemoryStore(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.SaveRun(ctx, research.NewState(id, "q", time.Now()), "sync"))
	}
	_, err := m.GetRun(ctx, "a")
	assert.True(t, IsNotFound(err))
	got, err := m.GetRun(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "c", got.RunID)
}
