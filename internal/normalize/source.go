package normalize

import (
	"fmt"
	"time"

	"github.com/jdholdren/pulse/internal/pulse"
)

// Source accepts either camelCase or snake_case variants of the source fields.
// Entries without an id, name or endpoint come back as [pulse.ErrInvalidSource].
//
// Optional fields the entry leaves out stay zero, or nil, so that a merge keeps
// the stored value. [pulse.Source.WithDefaults] fills them for new records.
func Source(entry map[string]any) (pulse.Source, error) {
	id, ok := StringValue(entry["id"])
	if !ok {
		return pulse.Source{}, fmt.Errorf("%w: missing id", pulse.ErrInvalidSource)
	}
	name, ok := StringValue(entry["name"])
	if !ok {
		return pulse.Source{}, fmt.Errorf("%w: source %s is missing name", pulse.ErrInvalidSource, id)
	}
	endpoint := firstValue(entry, "apiEndpoint", "api_endpoint")
	if endpoint == "" {
		return pulse.Source{}, fmt.Errorf("%w: source %s is missing api endpoint", pulse.ErrInvalidSource, id)
	}

	src := pulse.Source{
		ID:          id,
		Name:        name,
		APIEndpoint: endpoint,
		Active:      true,
	}

	if desc, ok := StringValue(entry["description"]); ok {
		src.Description = &desc
	}
	if rate, ok := numberField(entry, "rateLimitPerMin", "rate_limit_per_min"); ok {
		src.RateLimitPerMin = rate
	}
	if timeout, ok := numberField(entry, "timeoutMs", "timeout_ms"); ok {
		src.TimeoutMs = timeout
	}

	switch active := entry["active"].(type) {
	case bool:
		src.Active = active
	case string:
		src.Active = active != "false"
	}

	switch tags := entry["tags"].(type) {
	case []string:
		src.Tags = append([]string{}, tags...)
	case []any:
		src.Tags = []string{}
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				src.Tags = append(src.Tags, s)
			}
		}
	}

	switch headers := entry["headers"].(type) {
	case map[string]string:
		src.Headers = headers
	case map[string]any:
		src.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			if s, ok := v.(string); ok {
				src.Headers[k] = s
			}
		}
	}

	switch fetched := entry["lastFetchedAt"].(type) {
	case string:
		src.LastFetchedAt = ParseDate(fetched)
	case time.Time:
		t := fetched.UTC()
		src.LastFetchedAt = &t
	}

	return src, nil
}

func numberField(entry map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		if n, ok := intValue(entry[k]); ok {
			return n, true
		}
	}

	return 0, false
}

// Sources normalizes every entry, returning the valid ones alongside the errors
// for the ones that had to be dropped.
func Sources(entries []map[string]any) ([]pulse.Source, []error) {
	var (
		valid   = make([]pulse.Source, 0, len(entries))
		invalid []error
	)
	for i, entry := range entries {
		src, err := Source(entry)
		if err != nil {
			invalid = append(invalid, fmt.Errorf("entry %d: %w", i, err))
			continue
		}

		valid = append(valid, src)
	}

	return valid, invalid
}
