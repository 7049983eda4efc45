package pulse

import (
	"context"
	"time"
)

const (
	DefaultRateLimitPerMin = 60
	DefaultTimeoutMs       = 10000
)

type (
	// Source is a configured feed endpoint from which articles or further
	// sources are retrieved.
	Source struct {
		ID              string            `json:"id" bson:"id"`
		Name            string            `json:"name" bson:"name"`
		APIEndpoint     string            `json:"apiEndpoint" bson:"apiEndpoint"`
		Description     *string           `json:"description,omitempty" bson:"description,omitempty"`
		Active          bool              `json:"active" bson:"active"`
		RateLimitPerMin int               `json:"rateLimitPerMin" bson:"rateLimitPerMin"`
		TimeoutMs       int               `json:"timeoutMs" bson:"timeoutMs"`
		Tags            []string          `json:"tags" bson:"tags"`
		Headers         map[string]string `json:"headers,omitempty" bson:"headers,omitempty"`
		LastFetchedAt   *time.Time        `json:"lastFetchedAt,omitempty" bson:"lastFetchedAt,omitempty"`
	}

	// UpsertCounts are the counts a store reports back from a bulk source write.
	UpsertCounts struct {
		Matched  int `json:"matched"`
		Upserted int `json:"upserted"`
		Modified int `json:"modified"`
	}

	// SourceRepo is the storage surface the registry and the pipeline need for sources.
	SourceRepo interface {
		// ActiveSources returns every source with active = true, ordered by name ascending.
		ActiveSources(ctx context.Context) ([]Source, error)
		// UpsertSources merges each source by id. Optional fields left unset on the
		// incoming record keep whatever the store already has.
		UpsertSources(ctx context.Context, sources []Source) (UpsertCounts, error)
		// MarkFetched stamps lastFetchedAt on an existing source. It never creates one.
		MarkFetched(ctx context.Context, id string, at time.Time) error
	}
)

// Pacing is the wait before each request to the source so that requests issued
// for it stay under its per-minute rate limit.
func (s Source) Pacing() time.Duration {
	rate := s.RateLimitPerMin
	if rate <= 0 {
		rate = DefaultRateLimitPerMin
	}

	// ceil(60000 / rate) in whole milliseconds
	ms := (60000 + rate - 1) / rate
	return time.Duration(ms) * time.Millisecond
}

// Timeout is the per-attempt request timeout for the source, falling back to def.
func (s Source) Timeout(def time.Duration) time.Duration {
	if s.TimeoutMs > 0 {
		return time.Duration(s.TimeoutMs) * time.Millisecond
	}

	return def
}

func (c UpsertCounts) Add(o UpsertCounts) UpsertCounts {
	return UpsertCounts{
		Matched:  c.Matched + o.Matched,
		Upserted: c.Upserted + o.Upserted,
		Modified: c.Modified + o.Modified,
	}
}

// Merge lays incoming over s, which is the stored record with the same id.
// Optional fields incoming leaves unset keep the stored value, and numeric
// fields fall back to the stored value and then the defaults.
func (s Source) Merge(incoming Source) Source {
	merged := incoming
	if merged.Description == nil {
		merged.Description = s.Description
	}
	if merged.Headers == nil {
		merged.Headers = s.Headers
	}
	if merged.LastFetchedAt == nil {
		merged.LastFetchedAt = s.LastFetchedAt
	}
	if merged.Tags == nil {
		merged.Tags = s.Tags
	}
	if merged.RateLimitPerMin <= 0 {
		merged.RateLimitPerMin = s.RateLimitPerMin
	}
	if merged.TimeoutMs <= 0 {
		merged.TimeoutMs = s.TimeoutMs
	}

	return merged.WithDefaults()
}

// WithDefaults fills in the defaults for anything left unset.
func (s Source) WithDefaults() Source {
	if s.RateLimitPerMin <= 0 {
		s.RateLimitPerMin = DefaultRateLimitPerMin
	}
	if s.TimeoutMs <= 0 {
		s.TimeoutMs = DefaultTimeoutMs
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}

	return s
}
