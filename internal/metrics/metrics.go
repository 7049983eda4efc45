// Package metrics holds the prometheus collectors of both binaries.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jdholdren/pulse/internal/pulse"
)

var (
	// Seed metrics
	SeedArticlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_seed_articles_total",
			Help: "Articles and nested sources processed by the seed runner, by outcome",
		},
		[]string{"source", "outcome"},
	)

	SeedSourcesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_seed_sources_total",
			Help: "Sources processed by the seed runner",
		},
		[]string{"source", "status"},
	)

	SeedSourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_seed_source_duration_seconds",
			Help:    "Time spent on a single source, pacing included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	SeedRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_seed_runs_total",
			Help: "Completed seed runs",
		},
		[]string{"dry_run"},
	)

	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Reporter records seed results on the collectors above.
type Reporter struct{}

func (Reporter) ReportSource(_ context.Context, r pulse.SourceResult) {
	status := "ok"
	if r.Error != "" {
		status = "failed"
	}
	SeedSourcesTotal.WithLabelValues(r.SourceID, status).Inc()
	SeedSourceDuration.WithLabelValues(r.SourceID).Observe(float64(r.DurationMs) / 1000)

	for outcome, n := range map[string]int{
		"inserted":  r.Metrics.Inserted,
		"updated":   r.Metrics.Updated,
		"skipped":   r.Metrics.Skipped,
		"simulated": r.Metrics.Simulated,
		"failed":    r.Metrics.Failed,
	} {
		if n > 0 {
			SeedArticlesTotal.WithLabelValues(r.SourceID, outcome).Add(float64(n))
		}
	}
}

func (Reporter) ReportSummary(_ context.Context, s pulse.SeedSummary) {
	SeedRunsTotal.WithLabelValues(strconv.FormatBool(s.DryRun)).Inc()
}
