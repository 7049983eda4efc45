// Package config resolves the process environment into the settings both
// binaries run with. It's read once at start up and threaded through explicitly.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/jdholdren/pulse/internal/pulse"
)

const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"

	DefaultRequestTimeout   = 10 * time.Second
	DefaultSeedMaxPerSource = 200
)

// Settings is the environment of either binary.
type Settings struct {
	MongoURI      string `env:"MONGODB_URI"`
	MongoDatabase string `env:"MONGODB_DATABASE, default=marketpulse"`
	StoreDriver   string `env:"STORE_DRIVER, default=mongo"`
	SQLitePath    string `env:"SQLITE_PATH, default=pulse.db"`

	RequestTimeoutMs int    `env:"REQUEST_TIMEOUT_MS, default=10000"`
	SeedMaxPerSource int    `env:"SEED_MAX_PER_SOURCE, default=200"`
	BootstrapFile    string `env:"BOOTSTRAP_FILE, default=sources.json"`

	SeedAPIKey string `env:"SEED_API_KEY, default=dev-key-change-me"`
	Port       int    `env:"PORT, default=3000"`
	CorsOrigin string `env:"CORS_ORIGIN, default=*"`

	NatsURL string `env:"NATS_URL"`

	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
	LogLevel     string `env:"LOG_LEVEL, default=info"`
}

// Load processes the environment. A nil lookuper reads the real process
// environment.
func Load(ctx context.Context, lookuper envconfig.Lookuper) (Settings, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}

	var s Settings
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &s,
		Lookuper: lookuper,
	}); err != nil {
		return Settings{}, fmt.Errorf("%w: %s", pulse.ErrConfiguration, err)
	}
	s.StoreDriver = strings.ToLower(strings.TrimSpace(s.StoreDriver))

	return s, nil
}

// Validate checks the settings can back a run. A missing mongo connection
// string is only tolerated for dry runs, which fall back to memory.
func (s Settings) Validate(dryRun bool) error {
	switch s.StoreDriver {
	case DriverMongo:
		if s.MongoURI == "" && !dryRun {
			return fmt.Errorf("%w: MONGODB_URI must be set", pulse.ErrConfiguration)
		}
	case DriverSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("%w: SQLITE_PATH must be set", pulse.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", pulse.ErrConfiguration, s.StoreDriver)
	}

	return nil
}

// InMemory reports whether the run should use the in-process store.
func (s Settings) InMemory(dryRun bool) bool {
	return dryRun && s.StoreDriver == DriverMongo && s.MongoURI == ""
}

// RequestTimeout is the fallback per-attempt timeout for sources without their own.
func (s Settings) RequestTimeout() time.Duration {
	if s.RequestTimeoutMs <= 0 {
		return DefaultRequestTimeout
	}

	return time.Duration(s.RequestTimeoutMs) * time.Millisecond
}

// SeedMax caps how many articles are taken from a single payload.
func (s Settings) SeedMax() int {
	if s.SeedMaxPerSource <= 0 {
		return DefaultSeedMaxPerSource
	}

	return s.SeedMaxPerSource
}
