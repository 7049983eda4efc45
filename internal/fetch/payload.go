package fetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

// Kind is the shape of a fetched payload, decided once at decode time.
type Kind int

const (
	// KindEmpty is any payload with nothing to ingest.
	KindEmpty Kind = iota
	// KindArticles is a bare array, an object with an articles array, or a feed.
	KindArticles
	// KindSources is an object declaring nested sources.
	KindSources
)

func (k Kind) String() string {
	switch k {
	case KindArticles:
		return "articles"
	case KindSources:
		return "sources"
	}

	return "empty"
}

// Payload is the decoded body of a source endpoint. Only the slice matching
// Kind is populated.
type Payload struct {
	Kind     Kind
	Articles []map[string]any
	Sources  []map[string]any
}

// Decode classifies body. A sources array wins over an articles array when an
// object carries both. Bodies that aren't JSON are tried as RSS or Atom.
func Decode(body []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Payload{Kind: KindEmpty}, nil
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return decodeFeed(trimmed)
	}

	switch v := v.(type) {
	case []any:
		return Payload{Kind: KindArticles, Articles: objects(v)}, nil
	case map[string]any:
		if sources, ok := v["sources"].([]any); ok {
			return Payload{Kind: KindSources, Sources: objects(sources)}, nil
		}
		if articles, ok := v["articles"].([]any); ok {
			return Payload{Kind: KindArticles, Articles: objects(articles)}, nil
		}
	}

	return Payload{Kind: KindEmpty}, nil
}

// Keeps the elements that are JSON objects.
func objects(items []any) []map[string]any {
	ret := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			ret = append(ret, obj)
		}
	}

	return ret
}

func decodeFeed(body []byte) (Payload, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return Payload{}, fmt.Errorf("error decoding payload: not json and not a feed: %w", err)
	}

	articles := make([]map[string]any, 0, len(feed.Items))
	for _, item := range feed.Items {
		articles = append(articles, feedItem(feed, item))
	}

	return Payload{Kind: KindArticles, Articles: articles}, nil
}

// Maps a feed item onto the field names articles are normalized from.
func feedItem(feed *gofeed.Feed, item *gofeed.Item) map[string]any {
	raw := map[string]any{}
	set := func(k, v string) {
		if v != "" {
			raw[k] = v
		}
	}

	set("title", item.Title)
	set("link", item.Link)
	set("guid", item.GUID)
	set("description", item.Description)
	set("content", item.Content)
	set("language", feed.Language)

	switch {
	case item.PublishedParsed != nil:
		set("publishedAt", item.PublishedParsed.UTC().Format(time.RFC3339Nano))
	case item.UpdatedParsed != nil:
		set("publishedAt", item.UpdatedParsed.UTC().Format(time.RFC3339Nano))
	default:
		set("pubDate", item.Published)
	}
	if item.Author != nil {
		set("author", item.Author.Name)
	}
	if item.Image != nil {
		set("image", item.Image.URL)
	}
	if len(item.Categories) > 0 {
		cats := make([]any, 0, len(item.Categories))
		for _, c := range item.Categories {
			cats = append(cats, c)
		}
		raw["categories"] = cats
	}

	return raw
}
