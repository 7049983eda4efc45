// Package ingest runs the seed pipeline: resolve sources, fetch each one under
// its pacing, and upsert what came back.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jdholdren/pulse/internal/fetch"
	"github.com/jdholdren/pulse/internal/logger"
	"github.com/jdholdren/pulse/internal/normalize"
	"github.com/jdholdren/pulse/internal/pulse"
	"github.com/jdholdren/pulse/internal/registry"
)

const (
	DefaultConcurrency      = 3
	DefaultRequestTimeout   = 10 * time.Second
	DefaultSeedMaxPerSource = 200
)

type (
	// Config is resolved once from the environment before a run.
	Config struct {
		RequestTimeout   time.Duration // For sources without their own timeout
		SeedMaxPerSource int
	}

	// Options are the per run switches. Zero values take the defaults.
	Options struct {
		DryRun           bool
		SourceID         string
		Concurrency      int
		BootstrapSources bool
	}

	Fetcher interface {
		Fetch(ctx context.Context, url string, req fetch.Request) (fetch.Response, error)
	}

	Resolver interface {
		Resolve(ctx context.Context, opts registry.Options) (registry.Resolution, error)
	}

	// Repo is the store surface the pipeline writes to.
	Repo interface {
		pulse.SourceRepo
		pulse.ArticleRepo
	}

	// Reporter is told about every source result and the final summary.
	// Reporters can't influence the run.
	Reporter interface {
		ReportSource(ctx context.Context, r pulse.SourceResult)
		ReportSummary(ctx context.Context, s pulse.SeedSummary)
	}

	Pipeline struct {
		cfg       Config
		repo      Repo
		registry  Resolver
		fetcher   Fetcher
		reporters []Reporter

		now   func() time.Time
		sleep func(context.Context, time.Duration) error
	}

	Option func(*Pipeline)
)

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}

	return o
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.SeedMaxPerSource <= 0 {
		c.SeedMaxPerSource = DefaultSeedMaxPerSource
	}

	return c
}

func WithReporters(r ...Reporter) Option {
	return func(p *Pipeline) {
		p.reporters = append(p.reporters, r...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithSleep replaces how the pipeline waits out a source's pacing.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(p *Pipeline) {
		p.sleep = sleep
	}
}

func New(cfg Config, repo Repo, reg Resolver, fetcher Fetcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg.withDefaults(),
		repo:     repo,
		registry: reg,
		fetcher:  fetcher,
		now:      time.Now,
		sleep:    sleep,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run seeds every resolved source. Only failures that prevent the run from
// starting, or a canceled context, come back as errors; everything else is
// counted in the summary.
func (p *Pipeline) Run(ctx context.Context, opts Options) (pulse.SeedSummary, error) {
	opts = opts.withDefaults()

	summary := pulse.SeedSummary{
		RunID:   uuid.NewString(),
		DryRun:  opts.DryRun,
		Results: []pulse.SourceResult{},
	}
	ctx = logger.Ctx(ctx, slog.String("run_id", summary.RunID))

	res, err := p.registry.Resolve(ctx, registry.Options{
		DryRun:           opts.DryRun,
		BootstrapSources: opts.BootstrapSources,
		SourceID:         opts.SourceID,
	})
	if err != nil {
		return pulse.SeedSummary{}, err
	}
	summary.Bootstrap = res.Bootstrap

	if res.ShortCircuit {
		slog.InfoContext(ctx, "bootstrap only dry run, skipping fetch")
		p.reportSummary(ctx, summary)
		return summary, nil
	}

	slog.InfoContext(ctx, "seeding sources",
		"sources", len(res.Sources),
		"dry_run", opts.DryRun,
		"concurrency", opts.Concurrency,
	)

	var (
		mu      sync.Mutex
		work    = make(chan pulse.Source)
		workers = max(1, min(opts.Concurrency, len(res.Sources)))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(work)
		for _, src := range res.Sources {
			if gctx.Err() != nil {
				return nil
			}

			select {
			case work <- src:
			case <-gctx.Done():
				return nil
			}
		}

		return nil
	})
	for range workers {
		g.Go(func() error {
			for src := range work {
				result := p.processSource(gctx, src, opts.DryRun)

				mu.Lock()
				summary.Results = append(summary.Results, result)
				mu.Unlock()
			}

			return nil
		})
	}
	_ = g.Wait()

	summary.Totals = pulse.Totals(summary.Results)
	slog.InfoContext(ctx, "seed:summary",
		"sources", len(summary.Results),
		"inserted", summary.Totals.Inserted,
		"updated", summary.Totals.Updated,
		"skipped", summary.Totals.Skipped,
		"simulated", summary.Totals.Simulated,
		"failed", summary.Totals.Failed,
		"fetched", summary.Totals.Fetched,
	)
	p.reportSummary(ctx, summary)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("seed run interrupted: %w", err)
	}

	return summary, nil
}

// Handles one source start to finish. Nothing in here fails the run.
func (p *Pipeline) processSource(ctx context.Context, src pulse.Source, dryRun bool) pulse.SourceResult {
	ctx = logger.Ctx(ctx, slog.String("source_id", src.ID))

	var (
		start  = p.now()
		result = pulse.SourceResult{
			SourceID:   src.ID,
			SourceName: src.Name,
		}
	)

	if err := p.sleep(ctx, src.Pacing()); err != nil {
		result.Metrics.Failed++
		result.Error = err.Error()
		return p.finish(ctx, result, start)
	}

	resp, err := p.fetcher.Fetch(ctx, src.APIEndpoint, fetch.Request{
		Timeout: src.Timeout(p.cfg.RequestTimeout),
		Headers: src.Headers,
	})
	if err != nil {
		var fetchErr *pulse.FetchError
		if errors.As(err, &fetchErr) {
			result.HTTPStatus = fetchErr.Status
		}
		result.Metrics.Failed++
		result.Error = err.Error()
		return p.finish(ctx, result, start)
	}
	result.HTTPStatus = resp.Status

	if resp.Payload.Kind == fetch.KindSources {
		result.Metrics = p.ingestSources(ctx, src, resp.Payload.Sources, dryRun)
	} else {
		result.Metrics = p.ingestArticles(ctx, src, resp.Payload.Articles, dryRun)
	}

	if !dryRun {
		if err := p.repo.MarkFetched(ctx, src.ID, p.now()); err != nil {
			slog.WarnContext(ctx, "error marking source fetched", "error", err)
		}
	}

	return p.finish(ctx, result, start)
}

// Nested sources discovered in a payload are upserted one by one.
func (p *Pipeline) ingestSources(ctx context.Context, src pulse.Source, entries []map[string]any, dryRun bool) pulse.Metrics {
	sources, invalid := normalize.Sources(entries)
	for _, err := range invalid {
		slog.WarnContext(ctx, "dropping invalid discovered source", "error", err)
	}

	m := pulse.Metrics{Fetched: len(sources)}
	for _, discovered := range sources {
		if dryRun {
			m.Simulated++
			continue
		}

		counts, err := p.repo.UpsertSources(ctx, []pulse.Source{discovered})
		if err != nil {
			m.Failed++
			slog.ErrorContext(ctx, "error upserting discovered source",
				"error", &pulse.ItemError{SourceID: src.ID, Ref: discovered.ID, Err: err},
			)
			continue
		}

		m.Inserted += counts.Upserted
		m.Updated += counts.Modified
	}

	return m
}

func (p *Pipeline) ingestArticles(ctx context.Context, src pulse.Source, raws []map[string]any, dryRun bool) pulse.Metrics {
	if len(raws) > p.cfg.SeedMaxPerSource {
		raws = raws[:p.cfg.SeedMaxPerSource]
	}

	m := pulse.Metrics{Fetched: len(raws)}
	for _, raw := range raws {
		if dryRun {
			m.Record(pulse.OutcomeSimulated)
			continue
		}

		article := normalize.ToArticle(src, raw, p.now())
		outcome, err := p.repo.UpsertArticle(ctx, article)
		if err != nil {
			m.Failed++
			slog.ErrorContext(ctx, "error upserting article",
				"content_hash", article.ContentHash,
				"error", &pulse.ItemError{SourceID: src.ID, Ref: article.URL, Err: err},
			)
			continue
		}

		m.Record(outcome)
	}

	return m
}

func (p *Pipeline) finish(ctx context.Context, result pulse.SourceResult, start time.Time) pulse.SourceResult {
	result.DurationMs = p.now().Sub(start).Milliseconds()

	attrs := []any{
		"source_name", result.SourceName,
		"http_status", result.HTTPStatus,
		"duration_ms", result.DurationMs,
		"inserted", result.Metrics.Inserted,
		"updated", result.Metrics.Updated,
		"skipped", result.Metrics.Skipped,
		"simulated", result.Metrics.Simulated,
		"failed", result.Metrics.Failed,
		"fetched", result.Metrics.Fetched,
	}
	if result.Error != "" {
		slog.WarnContext(ctx, "seed:source:result", append(attrs, "error", result.Error)...)
	} else {
		slog.InfoContext(ctx, "seed:source:result", attrs...)
	}

	for _, r := range p.reporters {
		r.ReportSource(ctx, result)
	}

	return result
}

func (p *Pipeline) reportSummary(ctx context.Context, s pulse.SeedSummary) {
	for _, r := range p.reporters {
		r.ReportSummary(ctx, s)
	}
}
