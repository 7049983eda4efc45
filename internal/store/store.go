// Package store opens whichever [pulse.Store] the settings point at.
package store

import (
	"context"
	"log/slog"

	"github.com/jdholdren/pulse/internal/config"
	"github.com/jdholdren/pulse/internal/memstore"
	"github.com/jdholdren/pulse/internal/mongodb"
	"github.com/jdholdren/pulse/internal/pulse"
	"github.com/jdholdren/pulse/internal/sqlite"
)

// Open validates the settings and opens the store. Dry runs without a mongo
// connection string get an empty in-memory store. Callers that write on a dry
// run pass dryRun false.
func Open(ctx context.Context, s config.Settings, dryRun bool) (pulse.Store, error) {
	if err := s.Validate(dryRun); err != nil {
		return nil, err
	}

	if s.InMemory(dryRun) {
		slog.InfoContext(ctx, "no MONGODB_URI for dry run, using in-memory store")
		return memstore.New(), nil
	}

	switch s.StoreDriver {
	case config.DriverSQLite:
		repo, err := sqlite.Open(s.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.DebugContext(ctx, "opened sqlite store", "path", s.SQLitePath)

		return repo, nil
	default:
		st, err := mongodb.Connect(ctx, s.MongoURI, s.MongoDatabase)
		if err != nil {
			return nil, err
		}
		slog.DebugContext(ctx, "connected to mongo", "database", s.MongoDatabase)

		return st, nil
	}
}
