package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultConnectTimeout = 10 * time.Second

type MongoConfig struct {
	Logger         *slog.Logger
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	MaxPingTries   uint
}

func (c *MongoConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.URI == "" {
		return fmt.Errorf("uri is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.MaxPingTries == 0 {
		c.MaxPingTries = 5
	}
	return nil
}

// Mongo is a Collection backed by a MongoDB collection.
type Mongo struct {
	log    *slog.Logger
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect opens a client and pings the primary, retrying with exponential
// backoff until MaxPingTries is reached.
func Connect(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	attempt := 1
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if attempt > 1 {
			cfg.Logger.Warn("dataset: mongo ping failed, retrying", "attempt", attempt)
		}
		attempt++
		return struct{}{}, client.Ping(ctx, readpref.Primary())
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(cfg.MaxPingTries))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	cfg.Logger.Info("dataset: connected", "database", cfg.Database, "collection", cfg.Collection)

	return &Mongo{
		log:    cfg.Logger,
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Ping checks that the primary is reachable.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) Find(ctx context.Context, filter any, opts FindOptions) ([]bson.M, error) {
	if filter == nil {
		filter = bson.D{}
	}
	findOpts := options.Find()
	if opts.Projection != nil {
		findOpts.SetProjection(opts.Projection)
	}
	if opts.Sort != nil {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cursor, err := m.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (m *Mongo) Aggregate(ctx context.Context, pipeline any) ([]bson.M, error) {
	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (m *Mongo) CountDocuments(ctx context.Context, filter any) (int64, error) {
	if filter == nil {
		filter = bson.D{}
	}
	return m.coll.CountDocuments(ctx, filter)
}

func (m *Mongo) InsertMany(ctx context.Context, docs []any) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	res, err := m.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		return insertedCount(len(docs), err), fmt.Errorf("failed to insert documents: %w", err)
	}
	return len(res.InsertedIDs), nil
}

// insertedCount is the number of documents an unordered insert wrote before
// failing. Only a bulk write exception tells which documents were rejected.
func insertedCount(attempted int, err error) int {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return 0
	}
	return max(attempted-len(bwe.WriteErrors), 0)
}

func (m *Mongo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := m.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to clear collection: %w", err)
	}
	return res.DeletedCount, nil
}
