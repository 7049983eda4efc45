// Package normalize maps heterogeneous upstream records onto the canonical
// article and source shapes, and computes the content hash used to dedupe
// articles.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// StringValue collapses a string or a list of strings into the first non-blank,
// trimmed string.
func StringValue(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		s := strings.TrimSpace(v)
		return s, s != ""
	case []string:
		for _, item := range v {
			if s := strings.TrimSpace(item); s != "" {
				return s, true
			}
		}
	case []any:
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				continue
			}
			if s := strings.TrimSpace(str); s != "" {
				return s, true
			}
		}
	}

	return "", false
}

// firstString returns the first of keys that holds a string value at all,
// untrimmed. Blank strings still win over later keys.
func firstString(raw map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok {
			return s, true
		}
	}

	return "", false
}

// firstValue is StringValue over a fallback chain of keys.
func firstValue(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := StringValue(raw[k]); ok {
			return s
		}
	}

	return ""
}

func intValue(v any) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return int(f), true
	}

	return 0, false
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// ParseDate parses the date formats feeds commonly use. Anything unparseable is
// treated as absent rather than an error.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}

		t = t.UTC()
		return &t
	}

	return nil
}

// ISO formats t the way the content hash expects: UTC with millisecond precision.
func ISO(t *time.Time) string {
	if t == nil {
		return ""
	}

	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ContentHash is the hex SHA-256 over the pipe-joined identity of an article.
func ContentHash(sourceID, url, publishedISO, title string) string {
	sum := sha256.Sum256([]byte(sourceID + "|" + url + "|" + publishedISO + "|" + title))
	return hex.EncodeToString(sum[:])
}

var stripPolicy = bluemonday.StrictPolicy()

// Removes all html tags from free text fields. Plain text is left as is so
// entities aren't introduced where there was no markup.
func sanitize(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}

	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(s)))
}
