package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/pulse/internal/pulse"
)

type sourceRow struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	APIEndpoint     string         `db:"api_endpoint"`
	Description     *string        `db:"description"`
	Active          bool           `db:"active"`
	RateLimitPerMin int            `db:"rate_limit_per_min"`
	TimeoutMs       int            `db:"timeout_ms"`
	Tags            string         `db:"tags"`
	Headers         sql.NullString `db:"headers"`
	LastFetchedAt   *time.Time     `db:"last_fetched_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (row sourceRow) source() (pulse.Source, error) {
	src := pulse.Source{
		ID:              row.ID,
		Name:            row.Name,
		APIEndpoint:     row.APIEndpoint,
		Description:     row.Description,
		Active:          row.Active,
		RateLimitPerMin: row.RateLimitPerMin,
		TimeoutMs:       row.TimeoutMs,
		LastFetchedAt:   row.LastFetchedAt,
	}
	if err := json.Unmarshal([]byte(row.Tags), &src.Tags); err != nil {
		return pulse.Source{}, fmt.Errorf("error decoding tags of source %s: %w", row.ID, err)
	}
	if row.Headers.Valid {
		if err := json.Unmarshal([]byte(row.Headers.String), &src.Headers); err != nil {
			return pulse.Source{}, fmt.Errorf("error decoding headers of source %s: %w", row.ID, err)
		}
	}
	if src.LastFetchedAt != nil {
		t := src.LastFetchedAt.UTC()
		src.LastFetchedAt = &t
	}

	return src.WithDefaults(), nil
}

// Column values of src, as written.
func sourceValues(src pulse.Source) (map[string]any, error) {
	tags, err := json.Marshal(src.Tags)
	if err != nil {
		return nil, fmt.Errorf("error encoding tags: %w", err)
	}
	var headers sql.NullString
	if src.Headers != nil {
		byts, err := json.Marshal(src.Headers)
		if err != nil {
			return nil, fmt.Errorf("error encoding headers: %w", err)
		}
		headers = sql.NullString{String: string(byts), Valid: true}
	}
	var fetched *time.Time
	if src.LastFetchedAt != nil {
		t := src.LastFetchedAt.UTC()
		fetched = &t
	}

	return map[string]any{
		"id":                 src.ID,
		"name":               src.Name,
		"api_endpoint":       src.APIEndpoint,
		"description":        src.Description,
		"active":             src.Active,
		"rate_limit_per_min": src.RateLimitPerMin,
		"timeout_ms":         src.TimeoutMs,
		"tags":               string(tags),
		"headers":            headers,
		"last_fetched_at":    fetched,
	}, nil
}

func (r *Repo) ActiveSources(ctx context.Context) ([]pulse.Source, error) {
	const q = `SELECT * FROM sources WHERE active = 1 ORDER BY name ASC;`

	var rows []sourceRow
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("error selecting active sources: %w", err)
	}

	sources := make([]pulse.Source, 0, len(rows))
	for _, row := range rows {
		src, err := row.source()
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	return sources, nil
}

func (r *Repo) Source(ctx context.Context, id string) (pulse.Source, error) {
	return source(ctx, r.db, id)
}

func source(ctx context.Context, q sqlx.QueryerContext, id string) (pulse.Source, error) {
	var row sourceRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM sources WHERE id = ?;`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return pulse.Source{}, pulse.ErrNotFound
	}
	if err != nil {
		return pulse.Source{}, fmt.Errorf("error fetching source: %w", err)
	}

	return row.source()
}

// UpsertSources merges every source in one transaction. Matched sources whose
// merged record is unchanged aren't written.
func (r *Repo) UpsertSources(ctx context.Context, sources []pulse.Source) (pulse.UpsertCounts, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return pulse.UpsertCounts{}, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var counts pulse.UpsertCounts
	for _, src := range sources {
		if src.ID == "" {
			continue
		}

		existing, err := source(ctx, tx, src.ID)
		if errors.Is(err, pulse.ErrNotFound) {
			if err := insertSource(ctx, tx, src.WithDefaults()); err != nil {
				return pulse.UpsertCounts{}, err
			}
			counts.Upserted++
			continue
		}
		if err != nil {
			return pulse.UpsertCounts{}, err
		}

		counts.Matched++
		merged := existing.Merge(src)
		if reflect.DeepEqual(existing, merged) {
			continue
		}
		if err := updateSource(ctx, tx, merged); err != nil {
			return pulse.UpsertCounts{}, err
		}
		counts.Modified++
	}

	if err := tx.Commit(); err != nil {
		return pulse.UpsertCounts{}, fmt.Errorf("error committing sources: %w", err)
	}

	return counts, nil
}

func insertSource(ctx context.Context, tx *sqlx.Tx, src pulse.Source) error {
	values, err := sourceValues(src)
	if err != nil {
		return err
	}

	query, args, err := sq.Insert("sources").SetMap(values).ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error inserting source %s: %w", src.ID, err)
	}

	return nil
}

func updateSource(ctx context.Context, tx *sqlx.Tx, src pulse.Source) error {
	values, err := sourceValues(src)
	if err != nil {
		return err
	}
	delete(values, "id")

	query, args, err := sq.Update("sources").
		SetMap(values).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"id": src.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error updating source %s: %w", src.ID, err)
	}

	return nil
}

func (r *Repo) MarkFetched(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE sources SET last_fetched_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`

	if _, err := r.db.ExecContext(ctx, q, at.UTC(), id); err != nil {
		return fmt.Errorf("error marking source fetched: %w", err)
	}

	return nil
}
