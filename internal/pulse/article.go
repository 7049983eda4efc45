package pulse

import (
	"context"
	"time"
)

type (
	// Article is a normalized news item, keyed by its content hash.
	Article struct {
		ArticleID      string         `json:"articleId" bson:"articleId"`
		ContentHash    string         `json:"contentHash" bson:"contentHash"`
		SourceID       string         `json:"sourceId" bson:"sourceId"`
		SourceName     string         `json:"sourceName,omitempty" bson:"sourceName,omitempty"`
		Title          string         `json:"title,omitempty" bson:"title,omitempty"`
		Author         string         `json:"author,omitempty" bson:"author,omitempty"`
		URL            string         `json:"url,omitempty" bson:"url,omitempty"`
		URLToImage     string         `json:"urlToImage,omitempty" bson:"urlToImage,omitempty"`
		PublishedAtUTC *time.Time     `json:"publishedAtUtc,omitempty" bson:"publishedAtUtc,omitempty"`
		CollectedAtUTC time.Time      `json:"collectedAtUtc" bson:"collectedAtUtc"`
		Description    string         `json:"description,omitempty" bson:"description,omitempty"`
		Content        string         `json:"content,omitempty" bson:"content,omitempty"`
		Language       string         `json:"language,omitempty" bson:"language,omitempty"`
		Country        string         `json:"country,omitempty" bson:"country,omitempty"`
		Raw            map[string]any `json:"raw,omitempty" bson:"raw,omitempty"`
		IngestDate     time.Time      `json:"ingestDate" bson:"_ingestDate"`
	}

	// Outcome is what an article upsert ended up doing.
	Outcome string

	// ArticleRepo is the write surface of the pipeline for articles.
	ArticleRepo interface {
		// UpsertArticle inserts or updates by content hash. Matching documents whose
		// content didn't change report OutcomeSkipped.
		UpsertArticle(ctx context.Context, a Article) (Outcome, error)
	}

	LatestQuery struct {
		Page     int
		PageSize int
		SourceID string
		Language string
		From     *time.Time
		To       *time.Time
	}

	SearchQuery struct {
		Q        string
		Page     int
		PageSize int
		SourceID string
		Language string
	}

	// ArticlePage is one page of a listing. Items never carry the raw payload.
	ArticlePage struct {
		Page     int       `json:"page"`
		PageSize int       `json:"pageSize"`
		Total    int64     `json:"total"`
		Items    []Article `json:"items"`
	}

	// ArticleQuery is the read surface used by the HTTP API.
	ArticleQuery interface {
		LatestArticles(ctx context.Context, q LatestQuery) (ArticlePage, error)
		SearchArticles(ctx context.Context, q SearchQuery) (ArticlePage, error)
		// Article looks up by articleId, or by the store's own identifier.
		Article(ctx context.Context, id string) (Article, error)
	}

	// Store is everything a backing store provides.
	Store interface {
		SourceRepo
		ArticleRepo
		ArticleQuery

		EnsureIndexes(ctx context.Context) error
		Close(ctx context.Context) error
	}
)

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeUpdated   Outcome = "updated"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeSimulated Outcome = "simulated"
)

// IngestDate is UTC midnight of the day t falls on.
func IngestDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameContent reports whether two articles carry the same stored content,
// ignoring the collection timestamps.
func SameContent(a, b Article) bool {
	if a.SourceID != b.SourceID || a.SourceName != b.SourceName ||
		a.Title != b.Title || a.Author != b.Author || a.URL != b.URL ||
		a.URLToImage != b.URLToImage || a.Description != b.Description ||
		a.Content != b.Content || a.Language != b.Language || a.Country != b.Country {
		return false
	}
	if (a.PublishedAtUTC == nil) != (b.PublishedAtUTC == nil) {
		return false
	}
	if a.PublishedAtUTC != nil && !a.PublishedAtUTC.Equal(*b.PublishedAtUTC) {
		return false
	}

	return true
}

const (
	DefaultPageSize   = 20
	MaxLatestPageSize = 100
	MaxSearchPageSize = 50
)

// Bounds clamps a requested page to at least 1 and a page size into [1, max],
// with non-positive sizes taking [DefaultPageSize].
func Bounds(page, size, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > max {
		size = max
	}

	return page, size
}
