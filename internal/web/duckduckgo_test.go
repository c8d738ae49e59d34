package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const ddgPage = `<html><body><table>
<tr><td><a rel="nofollow" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fsupabase.com%2F&amp;rut=abc" class='result-link'>Supabase | The Postgres Platform</a></td></tr>
<tr><td class='result-snippet'>Supabase is an open   source Firebase alternative.</td></tr>
<tr><td><a href="https://appwrite.io/" class="result-link">Appwrite</a></td></tr>
<tr><td class="result-snippet">Build like a team of hundreds.</td></tr>
<tr><td><a href="javascript:void(0)" class="result-link">Bad</a></td></tr>
</table></body></html>`

func TestParseDuckDuckGoLite(t *testing.T) {
	results, err := ParseDuckDuckGoLite(ddgPage)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://supabase.com/", results[0].URL)
	assert.Equal(t, "Supabase | The Postgres Platform", results[0].Title)
	assert.Equal(t, "Supabase is an open source Firebase alternative.", results[0].Snippet)
	assert.Equal(t, "https://appwrite.io/", results[1].URL)
}

func TestDuckDuckGoSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Supabase official site", r.PostForm.Get("q"))
		_, _ = w.Write([]byte(ddgPage))
	}))
	defer srv.Close()

	d := NewDuckDuckGo(srv.URL, srv.Client(), zaptest.NewLogger(t))
	results, err := d.Search(context.Background(), "Supabase official site", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://supabase.com/", results[0].URL)
}
