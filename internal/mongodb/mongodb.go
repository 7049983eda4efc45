// Package mongodb is the production [pulse.Store], backed by a MongoDB database
// with a sources and an articles collection.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jdholdren/pulse/internal/pulse"
)

const (
	SourcesCollection  = "sources"
	ArticlesCollection = "articles"
)

// Store implements [pulse.Store] on top of a database handle.
type Store struct {
	db       *mongo.Database
	sources  *mongo.Collection
	articles *mongo.Collection
}

var _ pulse.Store = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{
		db:       db,
		sources:  db.Collection(SourcesCollection),
		articles: db.Collection(ArticlesCollection),
	}
}

// Connect dials uri and waits for the deployment to answer a ping.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetAppName("pulse").
		// Nested documents, like the raw payload, come back as maps
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true}),
	)
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongodb: %w", err)
	}

	if err := retry.Do(ctx, retry.WithMaxRetries(4, retry.NewFibonacci(500*time.Millisecond)), func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			slog.WarnContext(ctx, "mongodb not ready", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging mongodb: %w", err)
	}

	return New(client.Database(database)), nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// EnsureIndexes creates the unique keys the upserts rely on and the indexes
// the read API sorts and searches with. It's safe to run repeatedly.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.sources.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("error creating source indexes: %w", err)
	}

	if _, err := s.articles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "contentHash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "articleId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "publishedAtUtc", Value: -1}}},
		{Keys: bson.D{{Key: "_ingestDate", Value: -1}}},
		{
			Keys: bson.D{
				{Key: "title", Value: "text"},
				{Key: "description", Value: "text"},
				{Key: "content", Value: "text"},
			},
			Options: options.Index().SetDefaultLanguage("english"),
		},
	}); err != nil {
		return fmt.Errorf("error creating article indexes: %w", err)
	}

	return nil
}

func (s *Store) ActiveSources(ctx context.Context) ([]pulse.Source, error) {
	cur, err := s.sources.Find(ctx,
		bson.M{"active": true},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("error querying sources: %w", err)
	}

	sources := []pulse.Source{}
	if err := cur.All(ctx, &sources); err != nil {
		return nil, fmt.Errorf("error decoding sources: %w", err)
	}
	for i := range sources {
		sources[i] = sources[i].WithDefaults()
	}

	return sources, nil
}

// sourceUpdate sets the required fields and only the optional fields the
// incoming record carries. Defaults land on insert.
func sourceUpdate(src pulse.Source) bson.M {
	var (
		set = bson.M{
			"id":          src.ID,
			"name":        src.Name,
			"apiEndpoint": src.APIEndpoint,
			"active":      src.Active,
		}
		onInsert = bson.M{}
	)
	if src.Description != nil {
		set["description"] = *src.Description
	}
	if src.Headers != nil {
		set["headers"] = src.Headers
	}
	if src.LastFetchedAt != nil {
		set["lastFetchedAt"] = src.LastFetchedAt.UTC()
	}

	defaults := src.WithDefaults()
	for _, f := range []struct {
		key     string
		present bool
		value   any
	}{
		{"rateLimitPerMin", src.RateLimitPerMin > 0, defaults.RateLimitPerMin},
		{"timeoutMs", src.TimeoutMs > 0, defaults.TimeoutMs},
		{"tags", src.Tags != nil, defaults.Tags},
	} {
		if f.present {
			set[f.key] = f.value
		} else {
			onInsert[f.key] = f.value
		}
	}

	update := bson.M{"$set": set}
	if len(onInsert) > 0 {
		update["$setOnInsert"] = onInsert
	}

	return update
}

func (s *Store) UpsertSources(ctx context.Context, sources []pulse.Source) (pulse.UpsertCounts, error) {
	var models []mongo.WriteModel
	for _, src := range sources {
		if src.ID == "" {
			continue
		}

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"id": src.ID}).
			SetUpdate(sourceUpdate(src)).
			SetUpsert(true),
		)
	}
	if len(models) == 0 {
		return pulse.UpsertCounts{}, nil
	}

	res, err := s.sources.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	var counts pulse.UpsertCounts
	if res != nil {
		counts = pulse.UpsertCounts{
			Matched:  int(res.MatchedCount),
			Upserted: int(res.UpsertedCount),
			Modified: int(res.ModifiedCount),
		}
	}
	if err != nil {
		return counts, fmt.Errorf("error bulk writing sources: %w", err)
	}

	return counts, nil
}

func (s *Store) MarkFetched(ctx context.Context, id string, at time.Time) error {
	if _, err := s.sources.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{"lastFetchedAt": at.UTC()}},
	); err != nil {
		return fmt.Errorf("error marking source %s fetched: %w", id, err)
	}

	return nil
}

// articleUpdate keeps the first collection time and ingest date of an article
// and replaces the content fields, unsetting the ones that came back empty.
// Unchanged content leaves the document untouched.
func articleUpdate(a pulse.Article) bson.M {
	set := bson.D{
		{Key: "articleId", Value: a.ArticleID},
		{Key: "contentHash", Value: a.ContentHash},
		{Key: "sourceId", Value: a.SourceID},
	}
	unset := bson.D{}
	for _, f := range []struct{ key, value string }{
		{"sourceName", a.SourceName},
		{"title", a.Title},
		{"author", a.Author},
		{"url", a.URL},
		{"urlToImage", a.URLToImage},
		{"description", a.Description},
		{"content", a.Content},
		{"language", a.Language},
		{"country", a.Country},
	} {
		if f.value != "" {
			set = append(set, bson.E{Key: f.key, Value: f.value})
		} else {
			unset = append(unset, bson.E{Key: f.key, Value: ""})
		}
	}
	if a.PublishedAtUTC != nil {
		set = append(set, bson.E{Key: "publishedAtUtc", Value: a.PublishedAtUTC.UTC()})
	} else {
		unset = append(unset, bson.E{Key: "publishedAtUtc", Value: ""})
	}
	if a.Raw != nil {
		set = append(set, bson.E{Key: "raw", Value: orderedDoc(a.Raw)})
	}

	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.D{
			{Key: "collectedAtUtc", Value: a.CollectedAtUTC.UTC()},
			{Key: "_ingestDate", Value: a.IngestDate.UTC()},
		},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	return update
}

func (s *Store) UpsertArticle(ctx context.Context, a pulse.Article) (pulse.Outcome, error) {
	var (
		filter = bson.M{"contentHash": a.ContentHash}
		update = articleUpdate(a)
		opts   = options.Update().SetUpsert(true)
	)

	res, err := s.articles.UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Lost an insert race with another worker, the retry matches its document
		res, err = s.articles.UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		return "", fmt.Errorf("error upserting article %s: %w", a.ContentHash, err)
	}

	switch {
	case res.UpsertedCount > 0:
		return pulse.OutcomeInserted, nil
	case res.ModifiedCount > 0:
		return pulse.OutcomeUpdated, nil
	}

	return pulse.OutcomeSkipped, nil
}

func (s *Store) Article(ctx context.Context, id string) (pulse.Article, error) {
	var a pulse.Article
	err := s.articles.FindOne(ctx, articleFilter(id)).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return pulse.Article{}, pulse.ErrNotFound
	}
	if err != nil {
		return pulse.Article{}, fmt.Errorf("error finding article %s: %w", id, err)
	}

	return a, nil
}

func (s *Store) LatestArticles(ctx context.Context, q pulse.LatestQuery) (pulse.ArticlePage, error) {
	page, size := pulse.Bounds(q.Page, q.PageSize, pulse.MaxLatestPageSize)
	filter := latestFilter(q)

	opts := options.Find().
		SetSort(bson.D{
			{Key: "publishedAtUtc", Value: -1},
			{Key: "collectedAtUtc", Value: -1},
		}).
		SetProjection(bson.M{"raw": 0}).
		SetSkip(int64((page - 1) * size)).
		SetLimit(int64(size))

	return s.findPage(ctx, filter, opts, page, size)
}

func (s *Store) SearchArticles(ctx context.Context, q pulse.SearchQuery) (pulse.ArticlePage, error) {
	page, size := pulse.Bounds(q.Page, q.PageSize, pulse.MaxSearchPageSize)
	filter := searchFilter(q)

	score := bson.M{"$meta": "textScore"}
	opts := options.Find().
		SetSort(bson.D{
			{Key: "score", Value: score},
			{Key: "publishedAtUtc", Value: -1},
		}).
		SetProjection(bson.M{"score": score, "raw": 0}).
		SetSkip(int64((page - 1) * size)).
		SetLimit(int64(size))

	return s.findPage(ctx, filter, opts, page, size)
}

func (s *Store) findPage(ctx context.Context, filter bson.M, opts *options.FindOptions, page, size int) (pulse.ArticlePage, error) {
	total, err := s.articles.CountDocuments(ctx, filter)
	if err != nil {
		return pulse.ArticlePage{}, fmt.Errorf("error counting articles: %w", err)
	}

	cur, err := s.articles.Find(ctx, filter, opts)
	if err != nil {
		return pulse.ArticlePage{}, fmt.Errorf("error querying articles: %w", err)
	}

	items := []pulse.Article{}
	if err := cur.All(ctx, &items); err != nil {
		return pulse.ArticlePage{}, fmt.Errorf("error decoding articles: %w", err)
	}

	return pulse.ArticlePage{
		Page:     page,
		PageSize: size,
		Total:    total,
		Items:    items,
	}, nil
}
