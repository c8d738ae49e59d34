package research

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T, c Collaborators, s Settings, opts ...Option) *Orchestrator {
	t.Helper()
	if c.Prompts == (Prompts{}) {
		c.Prompts = DefaultPrompts()
	}
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "run-1" }),
	}
	return New(c, s, zaptest.NewLogger(t), append(base, opts...)...)
}

func TestRun_FirebaseAlternatives(t *testing.T) {
	search := siteSearch(3)
	scrape := &fakeScrape{}
	text := &fakeText{replies: []string{
		"Supabase\nAppwrite\nPocketBase\nNhost\nParse\n",
		"Supabase is the best pick.",
	}}
	structured := &fakeStructured{}

	o := newTestOrchestrator(t, Collaborators{Search: search, Scrape: scrape, Text: text, Structured: structured}, DefaultSettings())
	sink := &recordingSink{}
	state, err := o.Run(context.Background(), "Firebase alternatives", sink)
	require.NoError(t, err)

	assert.Equal(t, "run-1", state.RunID)
	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, PhaseAnalyzed, state.Phase)
	assert.Equal(t, []string{"Supabase", "Appwrite", "PocketBase", "Nhost", "Parse"}, state.ExtractedTools)
	require.Len(t, state.Companies, 5)
	for i, name := range state.ExtractedTools {
		assert.Equal(t, name, state.Companies[i].Name)
		assert.Equal(t, SourceModel, state.Companies[i].Source)
		require.NotNil(t, state.Companies[i].Website)
		assert.Equal(t, "https://"+strings.ToLower(name)+".example", *state.Companies[i].Website)
	}
	require.NotNil(t, state.Recommendation)
	assert.Equal(t, "Supabase is the best pick.", *state.Recommendation)
	require.NotNil(t, state.CompletedAt)

	assert.Equal(t, "Firebase alternatives tools comparison best alternatives", search.queries[0])
	assert.Equal(t, "Supabase official site", search.queries[1])
	assert.Equal(t, 2, text.count())
	assert.Equal(t, int32(5), structured.calls.Load())

	// three articles scraped, truncated and joined
	assert.Contains(t, text.calls[0].user, "content of https://blog.example/a\n\ncontent of https://blog.example/b\n\ncontent of https://blog.example/c")
	assert.Contains(t, text.calls[1].user, "Firebase alternatives")
	assert.Contains(t, text.calls[1].user, `"name":"Supabase"`)

	types := sink.types()
	assert.Equal(t, EventStageStarted, types[0])
	assert.Equal(t, EventRunCompleted, types[len(types)-1])
	last := sink.events[len(sink.events)-1]
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, "run-1", last.RunID)
}

func TestRun_ToolCapAndDedup(t *testing.T) {
	text := &fakeText{replies: []string{"A\nB\nA\n\nC\nD\nE\nF\nG", "ok"}}
	s := DefaultSettings()
	s.MaxTools = 3
	o := newTestOrchestrator(t, Collaborators{Search: siteSearch(1), Scrape: &fakeScrape{}, Text: text, Structured: &fakeStructured{}}, s)

	state, err := o.Run(context.Background(), "queues", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, state.ExtractedTools)
	assert.Len(t, state.Companies, 3)
}

func TestRun_EmptyExtractionIsInsufficientData(t *testing.T) {
	text := &fakeText{replies: []string{"\n  \n"}}
	structured := &fakeStructured{}
	o := newTestOrchestrator(t, Collaborators{Search: siteSearch(0), Scrape: &fakeScrape{}, Text: text, Structured: structured}, DefaultSettings())

	sink := &recordingSink{}
	state, err := o.Run(context.Background(), "nothing", sink)
	require.NoError(t, err)

	assert.Equal(t, StatusInsufficientData, state.Status)
	assert.Equal(t, PhaseToolsExtracted, state.Phase)
	assert.Empty(t, state.Companies)
	require.NotNil(t, state.Recommendation)
	assert.Equal(t, InsufficientDataMessage, *state.Recommendation)
	// only the extraction call: empty aggregate text still reaches the model
	assert.Equal(t, 1, text.count())
	assert.Equal(t, int32(0), structured.calls.Load())
	assert.Equal(t, EventRunCompleted, sink.types()[len(sink.types())-1])
}

func TestRun_ScrapeFailureYieldsPlaceholder(t *testing.T) {
	scrape := &fakeScrape{fail: map[string]bool{"https://appwrite.example": true}}
	text := &fakeText{replies: []string{"Supabase\nAppwrite\nNhost", "Use Supabase."}}
	o := newTestOrchestrator(t, Collaborators{Search: siteSearch(2), Scrape: scrape, Text: text, Structured: &fakeStructured{}}, DefaultSettings())

	state, err := o.Run(context.Background(), "Firebase alternatives", nil)
	require.NoError(t, err)
	assert.Equal(t, PhaseAnalyzed, state.Phase)
	require.Len(t, state.Companies, 3)

	want := PlaceholderRecord("Appwrite")
	if diff := cmp.Diff(want, state.Companies[1]); diff != "" {
		t.Errorf("placeholder mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, state.Companies[1].Website)
	assert.Equal(t, SourceModel, state.Companies[0].Source)
	assert.Equal(t, SourceModel, state.Companies[2].Source)
	assert.Contains(t, text.calls[1].user, `"name":"Supabase"`)
	assert.Contains(t, text.calls[1].user, `"name":"Nhost"`)
}

func TestRun_NoSiteFound(t *testing.T) {
	search := &fakeSearch{fn: func(query string, limit int) ([]SearchResult, error) {
		if strings.HasSuffix(query, "official site") {
			return nil, nil
		}
		return []SearchResult{{URL: "https://blog.example/a"}}, nil
	}}
	text := &fakeText{replies: []string{"Ghost", "n/a"}}
	o := newTestOrchestrator(t, Collaborators{Search: search, Scrape: &fakeScrape{}, Text: text, Structured: &fakeStructured{}}, DefaultSettings())

	state, err := o.Run(context.Background(), "cms", nil)
	require.NoError(t, err)
	require.Len(t, state.Companies, 1)
	assert.Equal(t, SourcePlaceholder, state.Companies[0].Source)
}

func TestRun_StructuredOutputErrorYieldsDefault(t *testing.T) {
	structured := &fakeStructured{fn: func(user string) (string, error) {
		return "", InvalidOutput("generate_structured", errors.New("missing description"))
	}}
	text := &fakeText{replies: []string{"Supabase", "ok"}}
	o := newTestOrchestrator(t, Collaborators{Search: siteSearch(1), Scrape: &fakeScrape{}, Text: text, Structured: structured}, DefaultSettings())

	state, err := o.Run(context.Background(), "db", nil)
	require.NoError(t, err)
	rec := state.Companies[0]
	assert.Equal(t, SourceDefault, rec.Source)
	require.NotNil(t, rec.Website)
	assert.Equal(t, "https://supabase.example", *rec.Website)
	assert.Equal(t, PricingUnknown, rec.PricingModel)
	assert.Equal(t, Unknown, rec.IsOpenSource)
	assert.NotNil(t, rec.TechStack)
	assert.Empty(t, rec.TechStack)
}

func TestRun_ExtractionSearchFailureFails(t *testing.T) {
	search := &fakeSearch{fn: func(string, int) ([]SearchResult, error) {
		return nil, errors.New("connection refused")
	}}
	text := &fakeText{}
	o := newTestOrchestrator(t, Collaborators{Search: search, Scrape: &fakeScrape{}, Text: text, Structured: &fakeStructured{}}, DefaultSettings())

	sink := &recordingSink{}
	state, err := o.Run(context.Background(), "db", sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, PhaseStart, state.Phase)
	assert.Empty(t, state.ExtractedTools)
	assert.Nil(t, state.Recommendation)
	assert.Contains(t, state.FailureReason, "connection refused")
	assert.Equal(t, 0, text.count())
	assert.Equal(t, EventRunFailed, sink.types()[len(sink.types())-1])
}

func TestRun_RecommendationFailureFails(t *testing.T) {
	text := &fakeText{replies: []string{"Supabase"}, errs: []error{nil, errors.New("quota exceeded")}}
	o := newTestOrchestrator(t, Collaborators{Search: siteSearch(1), Scrape: &fakeScrape{}, Text: text, Structured: &fakeStructured{}}, DefaultSettings())

	state, err := o.Run(context.Background(), "db", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, PhaseResearched, state.Phase)
	assert.Len(t, state.Companies, 1)
	assert.Nil(t, state.Recommendation)
}

func TestRun_CancelledBetweenEntities(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var researched []string
	researcher := EntityResearcherFunc(func(ctx context.Context, name string) EntityFactRecord {
		researched = append(researched, name)
		cancel()
		return PlaceholderRecord(name)
	})
	extractor := extractorFunc(func(context.Context, string) (ExtractionUpdate, error) {
		return ExtractionUpdate{Tools: []string{"A", "B", "C"}}, nil
	})
	rec := &countingRecommender{}
	o := NewOrchestrator(extractor, researcher, rec, WithLogger(zaptest.NewLogger(t)))

	state, err := o.Run(ctx, "q", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"A"}, researched)
	assert.Equal(t, StatusFailed, state.Status)
	assert.True(t, strings.HasPrefix(state.FailureReason, "cancelled"))
	assert.Empty(t, state.Companies)
	assert.Equal(t, 0, rec.calls)
}

// slowStructured answers after delay unless its context is cancelled first.
type slowStructured struct {
	delay   time.Duration
	started chan struct{}
	once    sync.Once
	aborted atomic.Bool
	calls   atomic.Int32
}

func (s *slowStructured) GenerateStructured(ctx context.Context, system, user string, schema Schema, out interface{}) error {
	s.calls.Add(1)
	s.once.Do(func() { close(s.started) })
	select {
	case <-ctx.Done():
		s.aborted.Store(true)
		return ctx.Err()
	case <-time.After(s.delay):
	}
	return json.Unmarshal([]byte(`{"pricing_model":"Free","description":"done"}`), out)
}

func TestRun_CancellationWaitsForInFlightCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	model := &slowStructured{delay: 300 * time.Millisecond, started: make(chan struct{})}
	text := &fakeText{replies: []string{"A\nB"}}
	o := newTestOrchestrator(t, Collaborators{Search: siteSearch(1), Scrape: &fakeScrape{}, Text: text, Structured: model}, DefaultSettings())

	go func() {
		<-model.started
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	state, err := o.Run(ctx, "backend", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, model.aborted.Load(), "in-flight analysis call must run to completion")
	assert.Equal(t, int32(1), model.calls.Load())
	assert.Equal(t, StatusFailed, state.Status)
	assert.True(t, strings.HasPrefix(state.FailureReason, "cancelled"))
	assert.Empty(t, state.Companies)
	assert.Equal(t, 1, text.count())
}

func TestToolExtractor_CancellationDoesNotAbortCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	search := &fakeSearch{fn: func(string, int) ([]SearchResult, error) {
		cancel()
		return []SearchResult{{URL: "https://blog.example/a"}}, nil
	}}
	text := &fakeText{replies: []string{"Supabase"}}
	e := NewToolExtractor(search, &fakeScrape{}, text, DefaultPrompts(), DefaultSettings(), zaptest.NewLogger(t))

	got, err := e.Extract(ctx, "backend")
	require.NoError(t, err)
	assert.Equal(t, []string{"Supabase"}, got.Tools)
	assert.Equal(t, 1, text.count())
}

func TestRun_EmptyQuery(t *testing.T) {
	o := newTestOrchestrator(t, Collaborators{Search: siteSearch(0), Scrape: &fakeScrape{}, Text: &fakeText{}, Structured: &fakeStructured{}}, DefaultSettings())
	state, err := o.Run(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Nil(t, state)
}

func TestRun_PanickingSinkDoesNotAlterOutcome(t *testing.T) {
	text := &fakeText{replies: []string{"Supabase", "ok"}}
	o := newTestOrchestrator(t, Collaborators{Search: siteSearch(1), Scrape: &fakeScrape{}, Text: text, Structured: &fakeStructured{}}, DefaultSettings())

	state, err := o.Run(context.Background(), "db", SinkFunc(func(Event) { panic("sink down") }))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, state.Status)
}

func TestRun_EventOrderSequential(t *testing.T) {
	text := &fakeText{replies: []string{"A\nB", "ok"}}
	o := newTestOrchestrator(t, Collaborators{Search: siteSearch(1), Scrape: &fakeScrape{}, Text: text, Structured: &fakeStructured{}}, DefaultSettings())
	sink := &recordingSink{}
	_, err := o.Run(context.Background(), "q", sink)
	require.NoError(t, err)

	want := []EventType{
		EventStageStarted, EventStageCompleted,
		EventStageStarted,
		EventEntityStarted, EventEntityCompleted,
		EventEntityStarted, EventEntityCompleted,
		EventStageCompleted,
		EventStageStarted, EventStageCompleted,
		EventRunCompleted,
	}
	assert.Equal(t, want, sink.types())
	progress := make([]int, len(sink.events))
	for i, e := range sink.events {
		progress[i] = e.Progress
	}
	assert.Equal(t, []int{20, 40, 40, 40, 55, 55, 70, 70, 70, 90, 100}, progress)
	assert.Equal(t, "Extracted tools: A, B", sink.events[1].Message)
}

type extractorFunc func(ctx context.Context, query string) (ExtractionUpdate, error)

func (f extractorFunc) Extract(ctx context.Context, query string) (ExtractionUpdate, error) {
	return f(ctx, query)
}

type countingRecommender struct{ calls int }

func (c *countingRecommender) Recommend(ctx context.Context, query string, records []EntityFactRecord) (RecommendationUpdate, error) {
	c.calls++
	return RecommendationUpdate{Text: "rec"}, nil
}
