package mongodb

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jdholdren/pulse/internal/pulse"
)

func latestFilter(q pulse.LatestQuery) bson.M {
	filter := bson.M{}
	if q.SourceID != "" {
		filter["sourceId"] = q.SourceID
	}
	if q.Language != "" {
		filter["language"] = q.Language
	}

	published := bson.M{}
	if q.From != nil {
		published["$gte"] = q.From.UTC()
	}
	if q.To != nil {
		published["$lte"] = q.To.UTC()
	}
	if len(published) > 0 {
		filter["publishedAtUtc"] = published
	}

	return filter
}

func searchFilter(q pulse.SearchQuery) bson.M {
	filter := bson.M{"$text": bson.M{"$search": q.Q}}
	if q.SourceID != "" {
		filter["sourceId"] = q.SourceID
	}
	if q.Language != "" {
		filter["language"] = q.Language
	}

	return filter
}

// articleFilter matches the article id, or the document's own _id when id is
// an object id.
func articleFilter(id string) bson.M {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return bson.M{"articleId": id}
	}

	return bson.M{"$or": bson.A{
		bson.M{"_id": oid},
		bson.M{"articleId": id},
	}}
}

// orderedDoc converts m into a document with its keys sorted, recursively, so
// that writing the same payload twice produces the same bytes.
func orderedDoc(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: orderedValue(m[k])})
	}

	return doc
}

func orderedValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return orderedDoc(v)
	case []any:
		arr := make(bson.A, 0, len(v))
		for _, item := range v {
			arr = append(arr, orderedValue(item))
		}
		return arr
	}

	return v
}
