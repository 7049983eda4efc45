package normalize

import (
	"time"

	"github.com/jdholdren/pulse/internal/pulse"
)

// DefaultLanguage is assumed when upstream records carry neither language nor lang.
const DefaultLanguage = "en"

// NormalizedArticle is an upstream record mapped onto canonical fields. Empty
// strings mean the field was absent.
type NormalizedArticle struct {
	Title       string
	URL         string
	PublishedAt *time.Time
	Author      string
	URLToImage  string
	Description string
	Content     string
	Language    string
	Country     string
}

// Article applies the per field fallback chains to a raw upstream record.
func Article(raw map[string]any) NormalizedArticle {
	n := NormalizedArticle{
		Title:       firstValue(raw, "title", "headline"),
		Author:      firstValue(raw, "author", "creator"),
		Description: sanitize(firstValue(raw, "description", "summary")),
		Content:     sanitize(firstValue(raw, "content", "body")),
		Language:    DefaultLanguage,
	}

	n.URL, _ = firstString(raw, "url", "link")
	n.URLToImage, _ = firstString(raw, "urlToImage", "image")
	if published, ok := firstString(raw, "publishedAt", "pubDate", "published_at"); ok {
		n.PublishedAt = ParseDate(published)
	}
	if lang, ok := firstString(raw, "language", "lang"); ok {
		n.Language = lang
	}
	n.Country, _ = firstString(raw, "country")

	return n
}

// Hash is the content hash of the article as published by sourceID.
func (n NormalizedArticle) Hash(sourceID string) string {
	return ContentHash(sourceID, n.URL, ISO(n.PublishedAt), n.Title)
}

// ToArticle builds the document to upsert for a raw record collected at now.
func ToArticle(src pulse.Source, raw map[string]any, now time.Time) pulse.Article {
	n := Article(raw)
	hash := n.Hash(src.ID)
	now = now.UTC()

	return pulse.Article{
		ArticleID:      hash,
		ContentHash:    hash,
		SourceID:       src.ID,
		SourceName:     src.Name,
		Title:          n.Title,
		Author:         n.Author,
		URL:            n.URL,
		URLToImage:     n.URLToImage,
		PublishedAtUTC: n.PublishedAt,
		CollectedAtUTC: now,
		Description:    n.Description,
		Content:        n.Content,
		Language:       n.Language,
		Country:        n.Country,
		Raw:            raw,
		IngestDate:     pulse.IngestDate(now),
	}
}
