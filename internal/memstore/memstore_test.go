package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/pulse/internal/normalize"
	"github.com/jdholdren/pulse/internal/pulse"
)

func ptr[T any](v T) *T { return &v }

func article(hash, sourceID, title string, published *time.Time) pulse.Article {
	collected := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	return pulse.Article{
		ArticleID:      hash,
		ContentHash:    hash,
		SourceID:       sourceID,
		Title:          title,
		PublishedAtUTC: published,
		CollectedAtUTC: collected,
		Language:       "en",
		Raw:            map[string]any{"title": title},
		IngestDate:     pulse.IngestDate(collected),
	}
}

func TestUpsertSources_Counts(t *testing.T) {
	var (
		ctx = context.Background()
		s   = New(pulse.Source{ID: "a", Name: "A", APIEndpoint: "https://a", Active: true})
	)

	counts, err := s.UpsertSources(ctx, []pulse.Source{
		{ID: "a", Name: "A", APIEndpoint: "https://a", Active: true},
		{ID: "b", Name: "B", APIEndpoint: "https://b", Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, pulse.UpsertCounts{Matched: 1, Upserted: 1, Modified: 0}, counts)

	counts, err = s.UpsertSources(ctx, []pulse.Source{
		{ID: "a", Name: "A renamed", APIEndpoint: "https://a", Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, pulse.UpsertCounts{Matched: 1, Modified: 1}, counts)
	assert.Equal(t, 2, s.Calls().UpsertSources)
}

func TestUpsertSources_NormalizedEntryKeepsStoredOptionals(t *testing.T) {
	var (
		ctx = context.Background()
		s   = New(pulse.Source{
			ID:              "a",
			Name:            "A",
			APIEndpoint:     "https://a",
			Active:          true,
			RateLimitPerMin: 30,
			TimeoutMs:       5000,
			Tags:            []string{"markets"},
		})
	)

	incoming, err := normalize.Source(map[string]any{"id": "a", "name": "A", "api_endpoint": "https://a"})
	require.NoError(t, err)
	counts, err := s.UpsertSources(ctx, []pulse.Source{incoming})
	require.NoError(t, err)
	assert.Equal(t, pulse.UpsertCounts{Matched: 1}, counts)

	active, err := s.ActiveSources(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 30, active[0].RateLimitPerMin)
	assert.Equal(t, 5000, active[0].TimeoutMs)
	assert.Equal(t, []string{"markets"}, active[0].Tags)
}

func TestActiveSources_OrderedByName(t *testing.T) {
	s := New(
		pulse.Source{ID: "z", Name: "Zeta", Active: true},
		pulse.Source{ID: "a", Name: "Alpha", Active: true},
		pulse.Source{ID: "off", Name: "Beta", Active: false},
	)

	sources, err := s.ActiveSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "Alpha", sources[0].Name)
	assert.Equal(t, "Zeta", sources[1].Name)
}

func TestMarkFetched(t *testing.T) {
	var (
		ctx = context.Background()
		s   = New(pulse.Source{ID: "a", Name: "A", Active: true})
		at  = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	)

	require.NoError(t, s.MarkFetched(ctx, "a", at))
	require.NoError(t, s.MarkFetched(ctx, "missing", at))

	src, err := s.Source(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, src.LastFetchedAt)
	assert.True(t, at.Equal(*src.LastFetchedAt))

	_, err = s.Source(ctx, "missing")
	assert.ErrorIs(t, err, pulse.ErrNotFound)
}

func TestUpsertArticle_Outcomes(t *testing.T) {
	var (
		ctx       = context.Background()
		s         = New()
		published = ptr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		a         = article("h1", "src", "Title", published)
	)

	outcome, err := s.UpsertArticle(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, pulse.OutcomeInserted, outcome)

	// Re-collected later with identical content
	again := a
	again.CollectedAtUTC = again.CollectedAtUTC.Add(48 * time.Hour)
	outcome, err = s.UpsertArticle(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, pulse.OutcomeSkipped, outcome)

	changed := again
	changed.Description = "now with a description"
	outcome, err = s.UpsertArticle(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, pulse.OutcomeUpdated, outcome)

	stored, err := s.Article(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "now with a description", stored.Description)
	assert.Equal(t, a.CollectedAtUTC, stored.CollectedAtUTC)
}

func TestLatestArticles(t *testing.T) {
	var (
		ctx = context.Background()
		s   = New()
		d1  = ptr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		d2  = ptr(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
		d3  = ptr(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	)
	for _, a := range []pulse.Article{
		article("h1", "s1", "one", d1),
		article("h2", "s1", "two", d2),
		article("h3", "s2", "three", d3),
		article("h4", "s2", "undated", nil),
	} {
		_, err := s.UpsertArticle(ctx, a)
		require.NoError(t, err)
	}

	page, err := s.LatestArticles(ctx, pulse.LatestQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "h3", page.Items[0].ArticleID)
	assert.Equal(t, "h2", page.Items[1].ArticleID)
	assert.Nil(t, page.Items[0].Raw)

	page, err = s.LatestArticles(ctx, pulse.LatestQuery{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "h4", page.Items[1].ArticleID)

	page, err = s.LatestArticles(ctx, pulse.LatestQuery{SourceID: "s1", From: d2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "h2", page.Items[0].ArticleID)

	page, err = s.LatestArticles(ctx, pulse.LatestQuery{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.EqualValues(t, 4, page.Total)
}

func TestSearchArticles(t *testing.T) {
	var (
		ctx = context.Background()
		s   = New()
	)
	a := article("h1", "s1", "Markets rally", ptr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	b := article("h2", "s1", "Weather today", ptr(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	b.Description = "markets closed for the storm"
	c := article("h3", "s1", "Sports", nil)
	for _, art := range []pulse.Article{a, b, c} {
		_, err := s.UpsertArticle(ctx, art)
		require.NoError(t, err)
	}

	page, err := s.SearchArticles(ctx, pulse.SearchQuery{Q: "markets"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	// Title matches outrank description matches
	assert.Equal(t, "h1", page.Items[0].ArticleID)
	assert.Equal(t, "h2", page.Items[1].ArticleID)
	assert.Equal(t, pulse.DefaultPageSize, page.PageSize)
}
