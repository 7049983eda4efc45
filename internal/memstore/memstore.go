// Package memstore is an in-process [pulse.Store]. It backs dry runs that have
// no database to talk to.
package memstore

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jdholdren/pulse/internal/pulse"
)

// Calls counts the writes a store received.
type Calls struct {
	UpsertSources int
	UpsertArticle int
	MarkFetched   int
}

// Store keeps sources and articles in maps guarded by a single mutex.
type Store struct {
	mu       sync.Mutex
	sources  map[string]pulse.Source
	articles map[string]pulse.Article
	calls    Calls
}

var _ pulse.Store = (*Store)(nil)

// New returns a store seeded with sources.
func New(sources ...pulse.Source) *Store {
	s := &Store{
		sources:  make(map[string]pulse.Source),
		articles: make(map[string]pulse.Article),
	}
	for _, src := range sources {
		s.sources[src.ID] = src.WithDefaults()
	}

	return s
}

func (s *Store) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

func (s *Store) ActiveSources(_ context.Context) ([]pulse.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := []pulse.Source{}
	for _, src := range s.sources {
		if src.Active {
			ret = append(ret, src)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })

	return ret, nil
}

func (s *Store) Source(_ context.Context, id string) (pulse.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[id]
	if !ok {
		return pulse.Source{}, pulse.ErrNotFound
	}

	return src, nil
}

func (s *Store) UpsertSources(_ context.Context, sources []pulse.Source) (pulse.UpsertCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.UpsertSources++

	var counts pulse.UpsertCounts
	for _, src := range sources {
		if src.ID == "" {
			continue
		}

		existing, ok := s.sources[src.ID]
		if !ok {
			s.sources[src.ID] = src.WithDefaults()
			counts.Upserted++
			continue
		}

		counts.Matched++
		merged := existing.Merge(src)
		if !reflect.DeepEqual(existing, merged) {
			counts.Modified++
		}
		s.sources[src.ID] = merged
	}

	return counts, nil
}

func (s *Store) MarkFetched(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.MarkFetched++

	src, ok := s.sources[id]
	if !ok {
		return nil
	}
	at = at.UTC()
	src.LastFetchedAt = &at
	s.sources[id] = src

	return nil
}

func (s *Store) UpsertArticle(_ context.Context, a pulse.Article) (pulse.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.UpsertArticle++

	existing, ok := s.articles[a.ContentHash]
	if !ok {
		s.articles[a.ContentHash] = a
		return pulse.OutcomeInserted, nil
	}
	if pulse.SameContent(existing, a) {
		return pulse.OutcomeSkipped, nil
	}

	// First collection stays put
	a.CollectedAtUTC = existing.CollectedAtUTC
	a.IngestDate = existing.IngestDate
	s.articles[a.ContentHash] = a

	return pulse.OutcomeUpdated, nil
}

func (s *Store) LatestArticles(_ context.Context, q pulse.LatestQuery) (pulse.ArticlePage, error) {
	page, size := pulse.Bounds(q.Page, q.PageSize, pulse.MaxLatestPageSize)

	s.mu.Lock()
	matched := make([]pulse.Article, 0, len(s.articles))
	for _, a := range s.articles {
		if !matches(a, q.SourceID, q.Language) {
			continue
		}
		if q.From != nil && (a.PublishedAtUTC == nil || a.PublishedAtUTC.Before(*q.From)) {
			continue
		}
		if q.To != nil && (a.PublishedAtUTC == nil || a.PublishedAtUTC.After(*q.To)) {
			continue
		}
		matched = append(matched, a)
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return newer(matched[i], matched[j]) })

	return paginate(matched, page, size), nil
}

func (s *Store) SearchArticles(_ context.Context, q pulse.SearchQuery) (pulse.ArticlePage, error) {
	page, size := pulse.Bounds(q.Page, q.PageSize, pulse.MaxSearchPageSize)
	terms := strings.Fields(strings.ToLower(q.Q))

	type scored struct {
		article pulse.Article
		score   int
	}

	s.mu.Lock()
	var hits []scored
	for _, a := range s.articles {
		if !matches(a, q.SourceID, q.Language) {
			continue
		}
		if score := textScore(a, terms); score > 0 {
			hits = append(hits, scored{article: a, score: score})
		}
	}
	s.mu.Unlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return newer(hits[i].article, hits[j].article)
	})

	articles := make([]pulse.Article, 0, len(hits))
	for _, h := range hits {
		articles = append(articles, h.article)
	}

	return paginate(articles, page, size), nil
}

func (s *Store) Article(_ context.Context, id string) (pulse.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		return pulse.Article{}, pulse.ErrNotFound
	}

	return a, nil
}

func (s *Store) EnsureIndexes(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

func matches(a pulse.Article, sourceID, language string) bool {
	if sourceID != "" && a.SourceID != sourceID {
		return false
	}
	if language != "" && a.Language != language {
		return false
	}

	return true
}

// Orders by published time then collection time, newest first. Articles
// without a published time sort last.
func newer(a, b pulse.Article) bool {
	switch {
	case a.PublishedAtUTC != nil && b.PublishedAtUTC == nil:
		return true
	case a.PublishedAtUTC == nil && b.PublishedAtUTC != nil:
		return false
	case a.PublishedAtUTC != nil && !a.PublishedAtUTC.Equal(*b.PublishedAtUTC):
		return a.PublishedAtUTC.After(*b.PublishedAtUTC)
	}

	return a.CollectedAtUTC.After(b.CollectedAtUTC)
}

// Counts term occurrences, weighting the title the highest.
func textScore(a pulse.Article, terms []string) int {
	var (
		title   = strings.ToLower(a.Title)
		desc    = strings.ToLower(a.Description)
		content = strings.ToLower(a.Content)
		score   int
	)
	for _, term := range terms {
		score += 3*strings.Count(title, term) + 2*strings.Count(desc, term) + strings.Count(content, term)
	}

	return score
}

func paginate(articles []pulse.Article, page, size int) pulse.ArticlePage {
	ret := pulse.ArticlePage{
		Page:     page,
		PageSize: size,
		Total:    int64(len(articles)),
		Items:    []pulse.Article{},
	}

	start := (page - 1) * size
	if start >= len(articles) {
		return ret
	}
	end := min(start+size, len(articles))
	for _, a := range articles[start:end] {
		a.Raw = nil
		ret.Items = append(ret.Items, a)
	}

	return ret
}
