package web

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/toolscout/internal/circuitbreaker"
	"github.com/Kocoro-lab/toolscout/internal/research"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *circuitbreaker.RedisWrapper) {
	t.Helper()
	mr := miniredis.RunT(t)
	rw := circuitbreaker.NewRedisWrapper(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "web-test", zaptest.NewLogger(t))
	t.Cleanup(func() { _ = rw.Close() })
	return mr, rw
}

func TestCachedSearcher(t *testing.T) {
	mr, rw := newTestRedis(t)
	inner := &stubSearcher{res: []research.SearchResult{{Title: "Supabase", URL: "https://supabase.com"}}}
	c := NewCachedSearcher(inner, rw, CacheConfig{SearchTTL: time.Minute}, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := c.Search(ctx, "q", 3)
	require.NoError(t, err)
	second, err := c.Search(ctx, "q", 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	_, err = c.Search(ctx, "q", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	mr.FastForward(2 * time.Minute)
	_, err = c.Search(ctx, "q", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestCachedScraperSkipsFailures(t *testing.T) {
	_, rw := newTestRedis(t)
	inner := &stubScraper{res: research.ScrapeResult{Success: false}}
	c := NewCachedScraper(inner, rw, CacheConfig{}, nil)
	ctx := context.Background()

	_, _ = c.Scrape(ctx, "https://x")
	_, _ = c.Scrape(ctx, "https://x")
	assert.Equal(t, 2, inner.calls)

	inner.res = research.ScrapeResult{Success: true, Content: "ok"}
	_, _ = c.Scrape(ctx, "https://x")
	res, err := c.Scrape(ctx, "https://x")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, 3, inner.calls)
}

func TestCacheFallsThroughWhenRedisDown(t *testing.T) {
	mr, rw := newTestRedis(t)
	mr.Close()
	inner := &stubSearcher{res: []research.SearchResult{{URL: "x"}}}
	c := NewCachedSearcher(inner, rw, CacheConfig{}, nil)

	res, err := c.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}
