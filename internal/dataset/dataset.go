// Package dataset is the read boundary to the purchase order collection.
//
// The core only issues three query shapes against the collection: a filtered
// find with projection, sort and limit, an aggregation pipeline, and a
// filtered count. Writes are limited to the CSV importer.
package dataset

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// FindOptions mirrors the subset of find options the executor uses. Sort and
// Projection are passed to the driver as-is, so callers should use ordered
// documents (bson.D) where key order matters.
type FindOptions struct {
	Projection any
	Sort       any
	Limit      int64
}

// Collection is the read surface of the dataset.
type Collection interface {
	Find(ctx context.Context, filter any, opts FindOptions) ([]bson.M, error)
	Aggregate(ctx context.Context, pipeline any) ([]bson.M, error)
	CountDocuments(ctx context.Context, filter any) (int64, error)
}

// Writer is implemented by collections that accept imports.
type Writer interface {
	InsertMany(ctx context.Context, docs []any) (int, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Pinger is implemented by collections that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
