package pulse_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jdholdren/pulse/internal/pulse"
)

func TestSourcePacing(t *testing.T) {
	tests := []struct {
		name string
		rate int
		want time.Duration
	}{
		{name: "default rate", rate: 60, want: time.Second},
		{name: "rounds up", rate: 7, want: 8572 * time.Millisecond},
		{name: "zero falls back to default", rate: 0, want: time.Second},
		{name: "negative falls back to default", rate: -5, want: time.Second},
		{name: "fast source", rate: 120000, want: time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pulse.Source{RateLimitPerMin: tt.rate}.Pacing()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSourceTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Second, pulse.Source{TimeoutMs: 5000}.Timeout(time.Second))
	assert.Equal(t, time.Second, pulse.Source{}.Timeout(time.Second))
}

func TestTotals(t *testing.T) {
	results := []pulse.SourceResult{
		{Metrics: pulse.Metrics{Inserted: 2, Fetched: 3, Failed: 1}},
		{Metrics: pulse.Metrics{Updated: 1, Skipped: 4, Simulated: 2, Fetched: 7}},
	}

	assert.Equal(t, pulse.Metrics{
		Inserted:  2,
		Updated:   1,
		Skipped:   4,
		Simulated: 2,
		Failed:    1,
		Fetched:   10,
	}, pulse.Totals(results))
	assert.Equal(t, pulse.Metrics{}, pulse.Totals(nil))
}

func TestMetricsRecord(t *testing.T) {
	var m pulse.Metrics
	m.Record(pulse.OutcomeInserted)
	m.Record(pulse.OutcomeInserted)
	m.Record(pulse.OutcomeSkipped)
	m.Record(pulse.OutcomeSimulated)

	assert.Equal(t, pulse.Metrics{Inserted: 2, Skipped: 1, Simulated: 1}, m)
}

func TestIngestDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	at := time.Date(2024, 3, 9, 22, 30, 0, 0, loc) // 2024-03-10T03:30Z

	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), pulse.IngestDate(at))
}

func TestFetchError(t *testing.T) {
	inner := errors.New("connection refused")
	err := &pulse.FetchError{URL: "https://x", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "request to https://x failed: connection refused", err.Error())

	err = &pulse.FetchError{URL: "https://x", Status: 503}
	assert.Equal(t, "request to https://x failed with status 503 (Service Unavailable)", err.Error())
}

func TestBounds(t *testing.T) {
	tests := []struct {
		page, size, max    int
		wantPage, wantSize int
	}{
		{page: 0, size: 0, max: 100, wantPage: 1, wantSize: pulse.DefaultPageSize},
		{page: 3, size: 500, max: 100, wantPage: 3, wantSize: 100},
		{page: -2, size: 10, max: 50, wantPage: 1, wantSize: 10},
		{page: 2, size: 60, max: pulse.MaxSearchPageSize, wantPage: 2, wantSize: 50},
	}

	for _, tt := range tests {
		page, size := pulse.Bounds(tt.page, tt.size, tt.max)
		assert.Equal(t, tt.wantPage, page)
		assert.Equal(t, tt.wantSize, size)
	}
}

func TestSourceMerge(t *testing.T) {
	var (
		desc    = "kept"
		fetched = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		stored  = pulse.Source{
			ID:              "s1",
			Name:            "Old",
			APIEndpoint:     "https://old",
			Description:     &desc,
			Active:          true,
			RateLimitPerMin: 30,
			TimeoutMs:       5000,
			Tags:            []string{"a"},
			Headers:         map[string]string{"X": "1"},
			LastFetchedAt:   &fetched,
		}
	)

	merged := stored.Merge(pulse.Source{
		ID:          "s1",
		Name:        "New",
		APIEndpoint: "https://new",
		Active:      false,
	})

	assert.Equal(t, "New", merged.Name)
	assert.Equal(t, "https://new", merged.APIEndpoint)
	assert.False(t, merged.Active)
	assert.Equal(t, &desc, merged.Description)
	assert.Equal(t, 30, merged.RateLimitPerMin)
	assert.Equal(t, 5000, merged.TimeoutMs)
	assert.Equal(t, []string{"a"}, merged.Tags)
	assert.Equal(t, map[string]string{"X": "1"}, merged.Headers)
	assert.Equal(t, &fetched, merged.LastFetchedAt)
}

func TestSourceWithDefaults(t *testing.T) {
	s := pulse.Source{ID: "s"}.WithDefaults()
	assert.Equal(t, pulse.DefaultRateLimitPerMin, s.RateLimitPerMin)
	assert.Equal(t, pulse.DefaultTimeoutMs, s.TimeoutMs)
	assert.Equal(t, []string{}, s.Tags)
}
