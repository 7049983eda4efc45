// Package registry resolves the set of sources a run works on: the store
// first, then the bootstrap file.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jdholdren/pulse/internal/normalize"
	"github.com/jdholdren/pulse/internal/pulse"
)

type (
	// Registry reads sources from the store, seeding it from a bootstrap file
	// when asked to.
	Registry struct {
		repo          pulse.SourceRepo
		bootstrapFile string
	}

	Options struct {
		DryRun           bool
		BootstrapSources bool
		SourceID         string // Narrows the working set to one source
	}

	Resolution struct {
		Sources []pulse.Source
		// Bootstrap holds the counts of the bulk upsert, when one succeeded.
		Bootstrap *pulse.UpsertCounts
		// ShortCircuit marks a dry run that did nothing but bootstrap.
		ShortCircuit bool
	}
)

func New(repo pulse.SourceRepo, bootstrapFile string) *Registry {
	return &Registry{
		repo:          repo,
		bootstrapFile: bootstrapFile,
	}
}

// Resolve returns the working set of sources for a run, or [pulse.ErrNoSources]
// when there's nothing to work on.
func (r *Registry) Resolve(ctx context.Context, opts Options) (Resolution, error) {
	sources, err := r.repo.ActiveSources(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("error loading active sources: %w", err)
	}

	var res Resolution
	if len(sources) == 0 {
		fromFile, err := r.loadBootstrap(ctx)
		if err != nil {
			return Resolution{}, err
		}
		sources = make([]pulse.Source, len(fromFile))
		for i, src := range fromFile {
			sources[i] = src.WithDefaults()
		}

		if opts.BootstrapSources && len(fromFile) > 0 {
			counts, err := r.repo.UpsertSources(ctx, fromFile)
			if err != nil {
				// The file entries remain the working set
				slog.ErrorContext(ctx, "error bootstrapping sources",
					"error", fmt.Errorf("%w: %w", pulse.ErrUpsert, err),
					"count", len(fromFile),
				)
			} else {
				slog.InfoContext(ctx, "bootstrapped sources",
					"matched", counts.Matched,
					"upserted", counts.Upserted,
					"modified", counts.Modified,
				)
				res.Bootstrap = &counts

				if opts.DryRun {
					res.ShortCircuit = true
					return res, nil
				}

				sources, err = r.repo.ActiveSources(ctx)
				if err != nil {
					return Resolution{}, fmt.Errorf("error reloading active sources: %w", err)
				}
			}
		}
	}

	if opts.SourceID != "" {
		filtered := sources[:0:0]
		for _, src := range sources {
			if src.ID == opts.SourceID {
				filtered = append(filtered, src)
			}
		}
		sources = filtered
	}
	if len(sources) == 0 {
		return Resolution{}, pulse.ErrNoSources
	}

	res.Sources = sources
	return res, nil
}

func (r *Registry) loadBootstrap(ctx context.Context) ([]pulse.Source, error) {
	entries, err := LoadFile(r.bootstrapFile)
	if err != nil {
		return nil, err
	}

	sources, invalid := normalize.Sources(entries)
	for _, err := range invalid {
		slog.WarnContext(ctx, "dropping invalid bootstrap source", "file", r.bootstrapFile, "error", err)
	}

	return sources, nil
}

// LoadFile reads the raw entries of a bootstrap file: a JSON array, or YAML
// for .yaml and .yml files. A missing file has no entries.
func LoadFile(path string) ([]map[string]any, error) {
	if path == "" {
		return nil, nil
	}

	byts, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap file: %w", err)
	}

	var parsed any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(byts, &parsed)
	default:
		err = json.Unmarshal(byts, &parsed)
	}
	if err != nil {
		return nil, fmt.Errorf("error decoding bootstrap file %s: %w", path, err)
	}

	items, ok := parsed.([]any)
	if !ok {
		return nil, fmt.Errorf("bootstrap file %s must contain an array of sources", path)
	}

	entries := make([]map[string]any, 0, len(items))
	for i, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			slog.Warn("dropping non object bootstrap entry", "file", path, "index", i)
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
