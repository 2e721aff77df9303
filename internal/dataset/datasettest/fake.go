// Package datasettest provides an in-memory dataset.Collection that records
// every call, for use as a spy in tests.
package datasettest

import (
	"context"
	"sync"

	"github.com/malbeclabs/procurement-agent/internal/dataset"
	"go.mongodb.org/mongo-driver/bson"
)

type FindCall struct {
	Filter any
	Opts   dataset.FindOptions
}

// Collection is a dataset.Collection whose behavior is set per operation.
// Unset funcs return empty results.
type Collection struct {
	FindFunc      func(ctx context.Context, filter any, opts dataset.FindOptions) ([]bson.M, error)
	AggregateFunc func(ctx context.Context, pipeline any) ([]bson.M, error)
	CountFunc     func(ctx context.Context, filter any) (int64, error)

	mu             sync.Mutex
	FindCalls      []FindCall
	AggregateCalls []any
	CountCalls     []any
}

var _ dataset.Collection = (*Collection)(nil)

func (c *Collection) Find(ctx context.Context, filter any, opts dataset.FindOptions) ([]bson.M, error) {
	c.mu.Lock()
	c.FindCalls = append(c.FindCalls, FindCall{Filter: filter, Opts: opts})
	c.mu.Unlock()
	if c.FindFunc == nil {
		return nil, nil
	}
	return c.FindFunc(ctx, filter, opts)
}

func (c *Collection) Aggregate(ctx context.Context, pipeline any) ([]bson.M, error) {
	c.mu.Lock()
	c.AggregateCalls = append(c.AggregateCalls, pipeline)
	c.mu.Unlock()
	if c.AggregateFunc == nil {
		return nil, nil
	}
	return c.AggregateFunc(ctx, pipeline)
}

func (c *Collection) CountDocuments(ctx context.Context, filter any) (int64, error) {
	c.mu.Lock()
	c.CountCalls = append(c.CountCalls, filter)
	c.mu.Unlock()
	if c.CountFunc == nil {
		return 0, nil
	}
	return c.CountFunc(ctx, filter)
}

// Calls is the total number of dataset operations issued.
func (c *Collection) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.FindCalls) + len(c.AggregateCalls) + len(c.CountCalls)
}
