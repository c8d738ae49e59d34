package web

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

type stubScraper struct {
	res   research.ScrapeResult
	err   error
	calls int
}

func (s *stubScraper) Scrape(ctx context.Context, url string) (research.ScrapeResult, error) {
	s.calls++
	r := s.res
	r.URL = url
	return r, s.err
}

type stubSearcher struct {
	res   []research.SearchResult
	err   error
	calls int
}

func (s *stubSearcher) Search(ctx context.Context, query string, limit int) ([]research.SearchResult, error) {
	s.calls++
	return s.res, s.err
}

func TestFallbackScraper(t *testing.T) {
	failed := &stubScraper{res: research.ScrapeResult{Success: false}}
	ok := &stubScraper{res: research.ScrapeResult{Success: true, Content: "hello"}}
	f := NewFallbackScraper(zaptest.NewLogger(t), failed, nil, ok)

	res, err := f.Scrape(context.Background(), "https://x")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Content)
	assert.Equal(t, 1, failed.calls)

	allErr := NewFallbackScraper(nil, &stubScraper{err: errors.New("a")}, &stubScraper{err: errors.New("b")})
	_, err = allErr.Scrape(context.Background(), "https://x")
	assert.Error(t, err)

	mixed := NewFallbackScraper(nil, &stubScraper{err: errors.New("a")}, failed)
	res, err = mixed.Scrape(context.Background(), "https://x")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestFallbackSearcher(t *testing.T) {
	down := &stubSearcher{err: research.Unavailable("search", errors.New("503"))}
	empty := &stubSearcher{res: []research.SearchResult{}}
	never := &stubSearcher{res: []research.SearchResult{{URL: "x"}}}
	f := NewFallbackSearcher(zaptest.NewLogger(t), down, empty, never)

	res, err := f.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Equal(t, 0, never.calls)

	_, err = NewFallbackSearcher(nil, down).Search(context.Background(), "q", 3)
	assert.ErrorIs(t, err, research.ErrCollaboratorUnavailable)
}
