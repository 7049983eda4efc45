package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jdholdren/pulse/internal/pulse"
)

const articleNamespace = "-art"

// Listing columns, everything but the raw payload.
var listColumns = []string{
	"a.id", "a.article_id", "a.content_hash", "a.source_id", "a.source_name",
	"a.title", "a.author", "a.url", "a.url_to_image", "a.published_at_utc",
	"a.collected_at_utc", "a.description", "a.content", "a.language",
	"a.country", "a.ingest_date",
}

type articleRow struct {
	ID             string         `db:"id"`
	ArticleID      string         `db:"article_id"`
	ContentHash    string         `db:"content_hash"`
	SourceID       string         `db:"source_id"`
	SourceName     string         `db:"source_name"`
	Title          string         `db:"title"`
	Author         string         `db:"author"`
	URL            string         `db:"url"`
	URLToImage     string         `db:"url_to_image"`
	PublishedAtUTC *time.Time     `db:"published_at_utc"`
	CollectedAtUTC time.Time      `db:"collected_at_utc"`
	Description    string         `db:"description"`
	Content        string         `db:"content"`
	Language       string         `db:"language"`
	Country        string         `db:"country"`
	Raw            sql.NullString `db:"raw"`
	IngestDate     time.Time      `db:"ingest_date"`
}

func (row articleRow) article() (pulse.Article, error) {
	a := pulse.Article{
		ArticleID:      row.ArticleID,
		ContentHash:    row.ContentHash,
		SourceID:       row.SourceID,
		SourceName:     row.SourceName,
		Title:          row.Title,
		Author:         row.Author,
		URL:            row.URL,
		URLToImage:     row.URLToImage,
		CollectedAtUTC: row.CollectedAtUTC.UTC(),
		Description:    row.Description,
		Content:        row.Content,
		Language:       row.Language,
		Country:        row.Country,
		IngestDate:     row.IngestDate.UTC(),
	}
	if row.PublishedAtUTC != nil {
		t := row.PublishedAtUTC.UTC()
		a.PublishedAtUTC = &t
	}
	if row.Raw.Valid {
		if err := json.Unmarshal([]byte(row.Raw.String), &a.Raw); err != nil {
			return pulse.Article{}, fmt.Errorf("error decoding raw payload of %s: %w", row.ArticleID, err)
		}
	}

	return a, nil
}

// Content columns, the ones an update may change.
func contentValues(a pulse.Article) (map[string]any, error) {
	var raw sql.NullString
	if a.Raw != nil {
		byts, err := json.Marshal(a.Raw)
		if err != nil {
			return nil, fmt.Errorf("error encoding raw payload: %w", err)
		}
		raw = sql.NullString{String: string(byts), Valid: true}
	}
	var published *time.Time
	if a.PublishedAtUTC != nil {
		t := a.PublishedAtUTC.UTC()
		published = &t
	}

	return map[string]any{
		"source_id":        a.SourceID,
		"source_name":      a.SourceName,
		"title":            a.Title,
		"author":           a.Author,
		"url":              a.URL,
		"url_to_image":     a.URLToImage,
		"published_at_utc": published,
		"description":      a.Description,
		"content":          a.Content,
		"language":         a.Language,
		"country":          a.Country,
		"raw":              raw,
	}, nil
}

// UpsertArticle writes by content hash. The first collection time and ingest
// date of an article never change.
func (r *Repo) UpsertArticle(ctx context.Context, a pulse.Article) (pulse.Outcome, error) {
	values, err := contentValues(a)
	if err != nil {
		return "", err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var row articleRow
	err = tx.GetContext(ctx, &row, `SELECT * FROM articles WHERE content_hash = ?;`, a.ContentHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		values["id"] = uuid.NewString() + articleNamespace
		values["article_id"] = a.ArticleID
		values["content_hash"] = a.ContentHash
		values["collected_at_utc"] = a.CollectedAtUTC.UTC()
		values["ingest_date"] = a.IngestDate.UTC()

		query, args, err := sq.Insert("articles").SetMap(values).ToSql()
		if err != nil {
			return "", fmt.Errorf("error constructing sql: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return "", fmt.Errorf("error inserting article: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("error committing article: %w", err)
		}

		return pulse.OutcomeInserted, nil
	case err != nil:
		return "", fmt.Errorf("error fetching article: %w", err)
	}

	existing, err := row.article()
	if err != nil {
		return "", err
	}
	if pulse.SameContent(existing, a) {
		return pulse.OutcomeSkipped, nil
	}

	query, args, err := sq.Update("articles").
		SetMap(values).
		Where(sq.Eq{"content_hash": a.ContentHash}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("error constructing sql: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("error updating article: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("error committing article: %w", err)
	}

	return pulse.OutcomeUpdated, nil
}

// Article looks up by article id or by the row's own id.
func (r *Repo) Article(ctx context.Context, id string) (pulse.Article, error) {
	const q = `SELECT * FROM articles WHERE article_id = ? OR id = ? LIMIT 1;`

	var row articleRow
	err := r.db.GetContext(ctx, &row, q, id, id)
	if errors.Is(err, sql.ErrNoRows) {
		return pulse.Article{}, pulse.ErrNotFound
	}
	if err != nil {
		return pulse.Article{}, fmt.Errorf("error fetching article: %w", err)
	}

	return row.article()
}

func articleFilters(sourceID, language string) sq.And {
	where := sq.And{}
	if sourceID != "" {
		where = append(where, sq.Eq{"a.source_id": sourceID})
	}
	if language != "" {
		where = append(where, sq.Eq{"a.language": language})
	}

	return where
}

func (r *Repo) LatestArticles(ctx context.Context, q pulse.LatestQuery) (pulse.ArticlePage, error) {
	page, size := pulse.Bounds(q.Page, q.PageSize, pulse.MaxLatestPageSize)

	where := articleFilters(q.SourceID, q.Language)
	if q.From != nil {
		where = append(where, sq.GtOrEq{"a.published_at_utc": q.From.UTC()})
	}
	if q.To != nil {
		where = append(where, sq.LtOrEq{"a.published_at_utc": q.To.UTC()})
	}

	count := sq.Select("COUNT(*)").From("articles a").Where(where)
	list := sq.Select(listColumns...).
		From("articles a").
		Where(where).
		OrderBy("a.published_at_utc DESC", "a.collected_at_utc DESC").
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size))

	return r.page(ctx, count, list, page, size)
}

func (r *Repo) SearchArticles(ctx context.Context, q pulse.SearchQuery) (pulse.ArticlePage, error) {
	page, size := pulse.Bounds(q.Page, q.PageSize, pulse.MaxSearchPageSize)

	match := matchExpr(q.Q)
	if match == "" {
		return pulse.ArticlePage{Page: page, PageSize: size, Items: []pulse.Article{}}, nil
	}

	where := append(sq.And{sq.Expr("articles_fts MATCH ?", match)}, articleFilters(q.SourceID, q.Language)...)

	count := sq.Select("COUNT(*)").
		From("articles_fts").
		Join("articles a ON a.rowid = articles_fts.rowid").
		Where(where)
	list := sq.Select(listColumns...).
		From("articles_fts").
		Join("articles a ON a.rowid = articles_fts.rowid").
		Where(where).
		OrderBy("bm25(articles_fts) ASC", "a.published_at_utc DESC").
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size))

	return r.page(ctx, count, list, page, size)
}

// matchExpr turns free text into an FTS5 query matching any of its terms.
// Every term is quoted so user input can't inject query syntax.
func matchExpr(text string) string {
	terms := strings.Fields(text)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}

	return strings.Join(quoted, " OR ")
}

func (r *Repo) page(ctx context.Context, count, list sq.SelectBuilder, page, size int) (pulse.ArticlePage, error) {
	countQuery, countArgs, err := count.ToSql()
	if err != nil {
		return pulse.ArticlePage{}, fmt.Errorf("error constructing sql: %w", err)
	}
	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return pulse.ArticlePage{}, fmt.Errorf("error counting articles: %w", err)
	}

	listQuery, listArgs, err := list.ToSql()
	if err != nil {
		return pulse.ArticlePage{}, fmt.Errorf("error constructing sql: %w", err)
	}
	var rows []articleRow
	if err := r.db.SelectContext(ctx, &rows, listQuery, listArgs...); err != nil {
		return pulse.ArticlePage{}, fmt.Errorf("error listing articles: %w", err)
	}

	items := make([]pulse.Article, 0, len(rows))
	for _, row := range rows {
		a, err := row.article()
		if err != nil {
			return pulse.ArticlePage{}, err
		}
		items = append(items, a)
	}

	return pulse.ArticlePage{
		Page:     page,
		PageSize: size,
		Total:    total,
		Items:    items,
	}, nil
}
