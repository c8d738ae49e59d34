package research

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestParseToolNames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		max  int
		want []string
	}{
		{"dedup keeps first", "Supabase\nAppwrite\n\nAppwrite\n", 5, []string{"Supabase", "Appwrite"}},
		{"trims", "  Supabase  \n\tAppwrite\t", 5, []string{"Supabase", "Appwrite"}},
		{"case sensitive", "supabase\nSupabase", 5, []string{"supabase", "Supabase"}},
		{"cap", "a\nb\nc\nd\ne\nf", 5, []string{"a", "b", "c", "d", "e"}},
		{"cap counts unique only", "a\na\na\nb", 2, []string{"a", "b"}},
		{"bullets", "- Supabase\n* Appwrite\n• Nhost", 5, []string{"Supabase", "Appwrite", "Nhost"}},
		{"numbered list", "1. PocketBase\n2) Nhost\n3. Supabase", 5, []string{"PocketBase", "Nhost", "Supabase"}},
		{"numbered bullets", "- 1. PocketBase\n- 2. Nhost", 5, []string{"PocketBase", "Nhost"}},
		{"leading number in a plain list", "Supabase\n7. Days Dev Kit\n7-Zip", 5, []string{"Supabase", "7. Days Dev Kit", "7-Zip"}},
		{"keeps digits in names", "1Password\n0x Protocol", 5, []string{"1Password", "0x Protocol"}},
		{"empty", "", 5, []string{}},
		{"whitespace only", " \n\n \t", 5, []string{}},
		{"crlf", "Supabase\r\nAppwrite\r\n", 5, []string{"Supabase", "Appwrite"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseToolNames(tt.raw, tt.max)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), tt.max)
		})
	}
}

func TestToolExtractor_TruncatesEachArticle(t *testing.T) {
	body := strings.Repeat("ß", 4000)
	text := &fakeText{replies: []string{"X"}}
	p := Prompts{ExtractionUser: "{content}"}
	e := NewToolExtractor(siteSearch(3), &fakeScrape{body: func(string) string { return body }}, text, p, DefaultSettings(), zaptest.NewLogger(t))

	update, err := e.Extract(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, update.Tools)

	parts := strings.Split(text.calls[0].user, "\n\n")
	require.Len(t, parts, 3)
	for _, part := range parts {
		assert.Equal(t, 1500, utf8.RuneCountInString(part))
	}
}

func TestToolExtractor_SkipsFailedArticles(t *testing.T) {
	text := &fakeText{replies: []string{"X"}}
	scrape := &fakeScrape{fail: map[string]bool{"https://blog.example/b": true}}
	p := Prompts{ExtractionUser: "{content}"}
	e := NewToolExtractor(siteSearch(3), scrape, text, p, DefaultSettings(), zaptest.NewLogger(t))

	_, err := e.Extract(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "content of https://blog.example/a\n\ncontent of https://blog.example/c", text.calls[0].user)
}

func TestToolExtractor_ModelFailure(t *testing.T) {
	text := &fakeText{errs: []error{assert.AnError}}
	e := NewToolExtractor(siteSearch(1), &fakeScrape{}, text, DefaultPrompts(), DefaultSettings(), nil)

	_, err := e.Extract(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.ErrorIs(t, err, assert.AnError)
}
