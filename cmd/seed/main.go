// Seed pulls articles from every configured source into the store.
//
// Sources come from the store, or from the bootstrap file when the store has
// none. A run exits non-zero if it couldn't start or any source failed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sethvargo/go-envconfig"
	"github.com/urfave/cli/v2"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/pulse/internal/config"
	"github.com/jdholdren/pulse/internal/events"
	"github.com/jdholdren/pulse/internal/fetch"
	"github.com/jdholdren/pulse/internal/ingest"
	"github.com/jdholdren/pulse/internal/logger"
	"github.com/jdholdren/pulse/internal/metrics"
	"github.com/jdholdren/pulse/internal/registry"
	"github.com/jdholdren/pulse/internal/store"
)

const (
	ExitSuccess = 0
	ExitFailure = 1
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, os.Args, env{stdout: os.Stdout, stderr: os.Stderr}))
}

// env is where a run reads its settings from and writes to. The summary goes
// to stdout, logs to stderr.
type env struct {
	stdout   io.Writer
	stderr   io.Writer
	lookuper envconfig.Lookuper // Nil reads the process environment
}

// run executes the cli and returns the process exit code.
func run(ctx context.Context, args []string, e env) int {
	app := newApp(e)

	err := app.RunContext(ctx, args)
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintln(e.stderr, err)
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return ExitFailure
}

func newApp(e env) *cli.App {
	return &cli.App{
		Name:      "seed",
		Usage:     "Fetch articles from the configured sources into the store",
		Writer:    e.stdout,
		ErrWriter: e.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "source",
				Usage: "Only seed the source with this id",
			},
			&cli.BoolFlag{
				Name:  "dry",
				Usage: "Fetch and count, but write nothing",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Value: ingest.DefaultConcurrency,
				Usage: "Sources processed at once, ignored when not positive",
			},
			&cli.BoolFlag{
				Name:  "bootstrap-sources",
				Usage: "Upsert the bootstrap file into the store before seeding",
			},
		},
		Action: func(c *cli.Context) error {
			return seed(c.Context, e, ingest.Options{
				DryRun:           c.Bool("dry"),
				SourceID:         c.String("source"),
				Concurrency:      c.Int("concurrency"),
				BootstrapSources: c.Bool("bootstrap-sources"),
			})
		},
		Commands: []*cli.Command{
			{
				Name:  "bootstrap",
				Usage: "Upsert the bootstrap file into the store without fetching",
				Action: func(c *cli.Context) error {
					return seed(c.Context, e, ingest.Options{
						DryRun:           true,
						BootstrapSources: true,
					})
				},
			},
			{
				Name:  "ensure-indexes",
				Usage: "Create the store's indexes",
				Action: func(c *cli.Context) error {
					return ensureIndexes(c.Context, e)
				},
			},
		},
		// Exit codes are handled by run
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// setup loads the settings and installs the default logger.
func setup(ctx context.Context, e env) (config.Settings, error) {
	settings, err := config.Load(ctx, e.lookuper)
	if err != nil {
		return config.Settings{}, cli.Exit(err.Error(), ExitFailure)
	}
	slog.SetDefault(logger.New(e.stderr, settings.LoggerFormat, settings.LogLevel))

	return settings, nil
}

func seed(ctx context.Context, e env, opts ingest.Options) error {
	settings, err := setup(ctx, e)
	if err != nil {
		return err
	}

	// A bootstrap writes even on a dry run, so it needs a real store
	st, err := store.Open(ctx, settings, opts.DryRun && !opts.BootstrapSources)
	if err != nil {
		slog.ErrorContext(ctx, "seed failed", "error", err)
		return cli.Exit(err.Error(), ExitFailure)
	}
	defer func() {
		if err := st.Close(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "error closing store", "error", err)
		}
	}()

	publisher, closePublisher, err := events.Connect(settings.NatsURL)
	if err != nil {
		// Events are a side channel, the run goes ahead without them
		slog.WarnContext(ctx, "continuing without events", "error", err)
		publisher, closePublisher = &events.Publisher{}, func() {}
	}
	defer closePublisher()

	pipeline := ingest.New(
		ingest.Config{
			RequestTimeout:   settings.RequestTimeout(),
			SeedMaxPerSource: settings.SeedMax(),
		},
		st,
		registry.New(st, settings.BootstrapFile),
		fetch.NewClient(fetch.Config{}),
		ingest.WithReporters(metrics.Reporter{}, publisher),
	)

	summary, err := pipeline.Run(ctx, opts)
	if err != nil {
		slog.ErrorContext(ctx, "seed failed", "error", err)
		return cli.Exit(err.Error(), ExitFailure)
	}

	writeSummary(e.stdout, summary)

	if summary.Totals.Failed > 0 {
		slog.ErrorContext(ctx, "seed finished with errors", "failed", summary.Totals.Failed)
		return cli.Exit(fmt.Sprintf("seed finished with %d failures", summary.Totals.Failed), ExitFailure)
	}
	slog.InfoContext(ctx, "seed completed successfully", "run_id", summary.RunID)

	return nil
}

func ensureIndexes(ctx context.Context, e env) error {
	settings, err := setup(ctx, e)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, settings, false)
	if err != nil {
		return cli.Exit(err.Error(), ExitFailure)
	}
	defer st.Close(context.WithoutCancel(ctx))

	if err := st.EnsureIndexes(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("index creation failed: %s", err), ExitFailure)
	}
	slog.InfoContext(ctx, "indexes ensured", "driver", settings.StoreDriver)

	return nil
}
