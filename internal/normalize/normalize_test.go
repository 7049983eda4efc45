package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/pulse/internal/pulse"
)

func TestStringValue(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   string
		wantOK bool
	}{
		{name: "trimmed string", input: "  hello ", want: "hello", wantOK: true},
		{name: "blank string", input: "   ", wantOK: false},
		{name: "first non blank of list", input: []any{"", 3, "  second "}, want: "second", wantOK: true},
		{name: "string slice", input: []string{" ", "a"}, want: "a", wantOK: true},
		{name: "all blank list", input: []any{" ", ""}, wantOK: false},
		{name: "number", input: 42.0, wantOK: false},
		{name: "nil", input: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StringValue(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "rfc3339", input: "2024-01-01T00:00:00Z", want: "2024-01-01T00:00:00.000Z"},
		{name: "rfc3339 with offset", input: "2024-01-01T02:00:00+02:00", want: "2024-01-01T00:00:00.000Z"},
		{name: "fractional seconds", input: "2024-01-01T00:00:00.123Z", want: "2024-01-01T00:00:00.123Z"},
		{name: "rss pubDate", input: "Mon, 01 Jan 2024 12:00:00 GMT", want: "2024-01-01T12:00:00.000Z"},
		{name: "rss pubDate numeric zone", input: "Mon, 01 Jan 2024 12:00:00 +0100", want: "2024-01-01T11:00:00.000Z"},
		{name: "date only", input: "2024-02-29", want: "2024-02-29T00:00:00.000Z"},
		{name: "garbage", input: "yesterday-ish", want: ""},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ISO(ParseDate(tt.input)))
		})
	}
}

func TestContentHash(t *testing.T) {
	got := ContentHash("db-source", "https://example.com/news", "2024-01-01T00:00:00.000Z", "Breaking News")
	assert.Equal(t, "12ca280f003a3f690b8b34f7c71e06c1cba43273f13a39702f92f3a1d93c422b", got)

	// Missing values hash as empty strings
	assert.Equal(t, "e400910345cae5e10608f6d60df20d8c1d27b4598698d48be0d679322bc25aa7", ContentHash("db-source", "", "", ""))
}

func TestArticle_FallbackChains(t *testing.T) {
	raw := map[string]any{
		"headline":     []any{" ", "Fallback Title"},
		"link":         "https://example.com/a",
		"pubDate":      "Mon, 01 Jan 2024 12:00:00 GMT",
		"creator":      []any{"Jane Doe"},
		"image":        "https://example.com/a.png",
		"summary":      "<p>Short <b>summary</b> &amp; more</p>",
		"body":         "Body text",
		"lang":         "pt",
		"country":      "br",
		"unrelatedKey": true,
	}

	n := Article(raw)
	assert.Equal(t, "Fallback Title", n.Title)
	assert.Equal(t, "https://example.com/a", n.URL)
	require.NotNil(t, n.PublishedAt)
	assert.Equal(t, "2024-01-01T12:00:00.000Z", ISO(n.PublishedAt))
	assert.Equal(t, "Jane Doe", n.Author)
	assert.Equal(t, "https://example.com/a.png", n.URLToImage)
	assert.Equal(t, "Short summary & more", n.Description)
	assert.Equal(t, "Body text", n.Content)
	assert.Equal(t, "pt", n.Language)
	assert.Equal(t, "br", n.Country)
}

func TestArticle_PrefersPrimaryFields(t *testing.T) {
	n := Article(map[string]any{
		"title":        "Primary",
		"headline":     "Secondary",
		"url":          "https://example.com/primary",
		"link":         "https://example.com/secondary",
		"publishedAt":  "2024-01-01T00:00:00Z",
		"published_at": "2020-01-01T00:00:00Z",
	})

	assert.Equal(t, "Primary", n.Title)
	assert.Equal(t, "https://example.com/primary", n.URL)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", ISO(n.PublishedAt))
	assert.Equal(t, DefaultLanguage, n.Language)
	assert.Empty(t, n.Country)
}

func TestArticle_BadDateIsAbsent(t *testing.T) {
	n := Article(map[string]any{"title": "x", "publishedAt": "not a date"})
	assert.Nil(t, n.PublishedAt)

	// And it hashes with an empty published component
	assert.Equal(t, ContentHash("s", "", "", "x"), n.Hash("s"))
}

func TestToArticle_StableHash(t *testing.T) {
	var (
		src = pulse.Source{ID: "db-source", Name: "DB Source"}
		raw = map[string]any{
			"title":       "Breaking News",
			"url":         "https://example.com/news",
			"publishedAt": "2024-01-01T00:00:00Z",
		}
		first  = ToArticle(src, raw, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC))
		second = ToArticle(src, raw, time.Date(2024, 5, 6, 23, 0, 0, 0, time.UTC))
	)

	assert.Equal(t, "12ca280f003a3f690b8b34f7c71e06c1cba43273f13a39702f92f3a1d93c422b", first.ContentHash)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, first.ContentHash, first.ArticleID)
	assert.Equal(t, "DB Source", first.SourceName)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), first.IngestDate)
	assert.True(t, pulse.SameContent(first, second))
}

func TestSource(t *testing.T) {
	src, err := Source(map[string]any{
		"id":                 "json-source",
		"name":               "JSON Source",
		"api_endpoint":       "https://example.com/json",
		"rate_limit_per_min": 30.0,
		"timeoutMs":          2500.0,
		"tags":               []any{"markets", 7, "br"},
		"headers":            map[string]any{"X-Token": "abc", "X-Bad": 1.0},
		"active":             "false",
		"description":        "  A source ",
		"lastFetchedAt":      "2024-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, "json-source", src.ID)
	assert.Equal(t, "JSON Source", src.Name)
	assert.Equal(t, "https://example.com/json", src.APIEndpoint)
	assert.Equal(t, 30, src.RateLimitPerMin)
	assert.Equal(t, 2500, src.TimeoutMs)
	assert.Equal(t, []string{"markets", "br"}, src.Tags)
	assert.Equal(t, map[string]string{"X-Token": "abc"}, src.Headers)
	assert.False(t, src.Active)
	require.NotNil(t, src.Description)
	assert.Equal(t, "A source", *src.Description)
	require.NotNil(t, src.LastFetchedAt)
}

func TestSource_Defaults(t *testing.T) {
	src, err := Source(map[string]any{
		"id":          "x",
		"name":        "X",
		"apiEndpoint": "https://x",
	})
	require.NoError(t, err)

	assert.True(t, src.Active)
	// Absent optionals stay unset so a merge keeps the stored values
	assert.Zero(t, src.RateLimitPerMin)
	assert.Zero(t, src.TimeoutMs)
	assert.Nil(t, src.Tags)
	assert.Nil(t, src.Headers)
	assert.Nil(t, src.Description)
	assert.Nil(t, src.LastFetchedAt)

	src = src.WithDefaults()
	assert.Equal(t, pulse.DefaultRateLimitPerMin, src.RateLimitPerMin)
	assert.Equal(t, pulse.DefaultTimeoutMs, src.TimeoutMs)
	assert.Equal(t, []string{}, src.Tags)
}

func TestSource_EmptyTagsArePresent(t *testing.T) {
	src, err := Source(map[string]any{
		"id":          "x",
		"name":        "X",
		"apiEndpoint": "https://x",
		"tags":        []any{},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{}, src.Tags)
}

func TestSource_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		entry map[string]any
	}{
		{name: "missing id", entry: map[string]any{"name": "X", "api_endpoint": "https://x"}},
		{name: "blank name", entry: map[string]any{"id": "x", "name": "  ", "api_endpoint": "https://x"}},
		{name: "missing endpoint", entry: map[string]any{"id": "x", "name": "X"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Source(tt.entry)
			assert.True(t, errors.Is(err, pulse.ErrInvalidSource))
		})
	}
}

func TestSources_FiltersInvalid(t *testing.T) {
	valid, invalid := Sources([]map[string]any{
		{"id": "a", "name": "A", "apiEndpoint": "https://a"},
		{"id": "b"},
		{"id": "c", "name": "C", "api_endpoint": "https://c"},
	})

	require.Len(t, valid, 2)
	assert.Equal(t, "a", valid[0].ID)
	assert.Equal(t, "c", valid[1].ID)
	require.Len(t, invalid, 1)
	assert.ErrorIs(t, invalid[0], pulse.ErrInvalidSource)
}
