// Api serves stored articles and sources over http.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/fx"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/pulse/internal/api"
	"github.com/jdholdren/pulse/internal/config"
	"github.com/jdholdren/pulse/internal/logger"
	"github.com/jdholdren/pulse/internal/pulse"
	"github.com/jdholdren/pulse/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Parse the config
	settings, err := config.Load(ctx, nil)
	if err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	slog.SetDefault(logger.New(os.Stderr, settings.LoggerFormat, settings.LogLevel))

	// Retry until the store is reachable
	var st pulse.Store
	if err := retry.Fibonacci(ctx, 1*time.Second, func(ctx context.Context) error {
		s, err := store.Open(ctx, settings, false)
		if errors.Is(err, pulse.ErrConfiguration) {
			return err
		}
		if err != nil {
			slog.WarnContext(ctx, "store not ready", "error", err)
			return retry.RetryableError(err)
		}
		st = s

		return nil
	}); err != nil {
		log.Fatalf("error opening store: %s", err)
	}

	if err := st.EnsureIndexes(ctx); err != nil {
		log.Fatalf("error ensuring indexes: %s", err)
	}

	// Start the application
	fx.New(
		fx.Supply(
			api.ServerConfig{
				Port:       settings.Port,
				CorsOrigin: settings.CorsOrigin,
				APIKey:     settings.SeedAPIKey,
			},
			fx.Annotate(st, fx.As(new(api.Repo))),
		),
		api.Module,
		// Hooks stop in reverse, so the store outlives the server
		fx.Invoke(func(lc fx.Lifecycle) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return st.Close(ctx)
				},
			})
		}),
		fx.Invoke(func(api.Server) {}), // Start the server
	).Run()
}
