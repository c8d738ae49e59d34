package research

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPoolExecutor_IndexStableUnderRandomCompletion(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var inflight, peak atomic.Int32
	researcher := EntityResearcherFunc(func(ctx context.Context, name string) EntityFactRecord {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
		inflight.Add(-1)
		return PlaceholderRecord(name)
	})

	var completed atomic.Int32
	records, err := PoolExecutor{Limit: 3}.Execute(context.Background(), names, researcher, nil,
		func(int, string, *EntityFactRecord) { completed.Add(1) })
	require.NoError(t, err)
	require.Len(t, records, len(names))
	for i, name := range names {
		assert.Equal(t, name, records[i].Name)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, int32(len(names)), completed.Load())
}

func TestPoolExecutor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	records, err := PoolExecutor{Limit: 2}.Execute(ctx, []string{"a", "b"}, EntityResearcherFunc(func(ctx context.Context, name string) EntityFactRecord {
		return PlaceholderRecord(name)
	}), nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, records)
}

func TestSequentialExecutor_Order(t *testing.T) {
	var order []int
	records, err := SequentialExecutor{}.Execute(context.Background(), []string{"x", "y", "z"},
		EntityResearcherFunc(func(ctx context.Context, name string) EntityFactRecord { return PlaceholderRecord(name) }),
		func(i int, _ string, _ *EntityFactRecord) { order = append(order, i) }, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, "z", records[2].Name)
}

func TestExecutorFor(t *testing.T) {
	assert.IsType(t, SequentialExecutor{}, ExecutorFor(0))
	assert.IsType(t, SequentialExecutor{}, ExecutorFor(1))
	assert.Equal(t, PoolExecutor{Limit: 4}, ExecutorFor(4))
}

func TestRun_PoolMatchesSequential(t *testing.T) {
	run := func(concurrency int) *ResearchState {
		s := DefaultSettings()
		s.Concurrency = concurrency
		text := &fakeText{replies: []string{"Supabase\nAppwrite\nPocketBase\nNhost\nParse", "ok"}}
		scrape := &fakeScrape{fail: map[string]bool{"https://nhost.example": true}}
		o := newTestOrchestrator(t, Collaborators{Search: siteSearch(3), Scrape: scrape, Text: text, Structured: &fakeStructured{}}, s)
		state, err := o.Run(context.Background(), "Firebase alternatives", nil)
		require.NoError(t, err)
		return state
	}
	seq, pool := run(1), run(4)
	assert.Equal(t, seq.Companies, pool.Companies)
	assert.Equal(t, SourcePlaceholder, pool.Companies[3].Source)
}

func TestSiteResearcher_TruncatesSiteContent(t *testing.T) {
	long := make([]rune, 10000)
	for i := range long {
		long[i] = 'é'
	}
	var seen string
	structured := &fakeStructured{fn: func(user string) (string, error) {
		seen = user
		return `{"pricing_model":"paid","tech_stack":[],"description":"x","language_support":[],"integration_capabilities":[]}`, nil
	}}
	s := DefaultSettings()
	s.SiteCharLimit = 100
	p := Prompts{AnalysisUser: "{content}"}
	r := NewSiteResearcher(siteSearch(0), &fakeScrape{body: func(string) string { return string(long) }}, structured, p, s, nil)

	rec := r.Research(context.Background(), "Tool")
	assert.Equal(t, 100, len([]rune(seen)))
	assert.Equal(t, PricingPaid, rec.PricingModel)
	assert.Equal(t, Unknown, rec.APIAvailable)
}
