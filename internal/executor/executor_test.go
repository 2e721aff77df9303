package executor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/malbeclabs/procurement-agent/internal/dataset"
	"github.com/malbeclabs/procurement-agent/internal/dataset/datasettest"
	"github.com/malbeclabs/procurement-agent/internal/query"
	"github.com/malbeclabs/procurement-agent/internal/schema"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mustQuery(t *testing.T, raw string) *query.StructuredQuery {
	t.Helper()
	q, err := query.ParseStructuredQuery([]byte(raw))
	require.NoError(t, err)
	return q.Normalized(testLogger())
}

func newExecutor(t *testing.T, coll dataset.Collection, summary, export int) *Executor {
	t.Helper()
	e, err := New(Config{Logger: testLogger(), Collection: coll, SummaryLimit: summary, ExportLimit: export})
	require.NoError(t, err)
	return e
}

func docs(n int64) []bson.M {
	out := make([]bson.M, n)
	for i := range out {
		out[i] = bson.M{"_id": primitive.NewObjectID(), "n": int32(i)}
	}
	return out
}

// seededCollection behaves like a collection of size documents: finds and
// limited pipelines return min(limit, size) rows and count stages report size.
func seededCollection(size int64) *datasettest.Collection {
	return &datasettest.Collection{
		FindFunc: func(ctx context.Context, filter any, opts dataset.FindOptions) ([]bson.M, error) {
			return docs(min(opts.Limit, size)), nil
		},
		CountFunc: func(ctx context.Context, filter any) (int64, error) {
			return size, nil
		},
		AggregateFunc: func(ctx context.Context, pipeline any) ([]bson.M, error) {
			stages := pipeline.(bson.A)
			last := stages[len(stages)-1].(bson.D)[0]
			switch last.Key {
			case "$limit":
				return docs(min(last.Value.(int64), size)), nil
			case "$count":
				if size == 0 {
					return nil, nil
				}
				return []bson.M{{last.Value.(string): int32(size)}}, nil
			}
			return docs(size), nil
		},
	}
}

func TestProcurement_Executor_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{name: "missing pipeline", raw: `{"operation":"aggregate"}`, reason: ReasonEmptyPipeline},
		{name: "empty pipeline", raw: `{"operation":"aggregate","pipeline":[]}`, reason: ReasonEmptyPipeline},
		{name: "pipeline not array", raw: `{"operation":"aggregate","pipeline":{"$match":{}}}`, reason: ReasonEmptyPipeline},
		{name: "stage is string", raw: `{"operation":"aggregate","pipeline":[{"$match":{}},"$count"]}`, reason: ReasonStageNotObject},
		{name: "stage is array", raw: `{"operation":"aggregate","pipeline":[[{"$match":{}}]]}`, reason: ReasonStageNotObject},
		{name: "stage is null", raw: `{"operation":"aggregate","pipeline":[null]}`, reason: ReasonStageNotObject},
		{name: "stage without keys", raw: `{"operation":"aggregate","pipeline":[{"$match":{}},{}]}`, reason: ReasonStageKeyCount},
		{name: "stage with two keys", raw: `{"operation":"aggregate","pipeline":[{"$match":{"a":1},"$sort":{"a":1}}]}`, reason: ReasonStageKeyCount},
		{name: "out stage", raw: `{"operation":"aggregate","pipeline":[{"$match":{}},{"$out":"stolen"}]}`, reason: ReasonWriteStage},
		{name: "merge stage", raw: `{"operation":"aggregate","pipeline":[{"$merge":{"into":"stolen"}},{"$limit":5}]}`, reason: ReasonWriteStage},
		{name: "unsupported operation", raw: `{"operation":"deleteMany","filter":{}}`, reason: ReasonUnsupportedOperation},
		{name: "filter not object", raw: `{"operation":"count","filter":[1,2]}`, reason: ReasonInvalidArgument},
		{name: "sort not object", raw: `{"operation":"find","sort":"total_price"}`, reason: ReasonInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			coll := seededCollection(10)
			e := newExecutor(t, coll, 100, 10_000)

			res, err := e.Execute(context.Background(), mustQuery(t, tt.raw))
			require.Nil(t, res)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			require.Equal(t, tt.reason, verr.Reason)
			require.Zero(t, coll.Calls(), "no dataset call may be made for an invalid query")
		})
	}
}

func TestProcurement_Executor_Find(t *testing.T) {
	t.Parallel()

	t.Run("tiers are capped and total is independent", func(t *testing.T) {
		t.Parallel()

		coll := seededCollection(250)
		e := newExecutor(t, coll, 100, 200)

		res, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"find","filter":{"cal_card":"YES"},"sort":{"total_price":-1}}`))
		require.NoError(t, err)
		require.Equal(t, 100, res.Count)
		require.Len(t, res.Rows, 100)
		require.Len(t, res.CompleteRows, 200)
		require.Equal(t, int64(250), res.TotalCount)
		require.LessOrEqual(t, res.Count, 100)
		require.Less(t, int64(100), res.TotalCount)

		require.Len(t, coll.FindCalls, 2)
		require.Equal(t, int64(100), coll.FindCalls[0].Opts.Limit)
		require.Equal(t, int64(200), coll.FindCalls[1].Opts.Limit)
		require.Equal(t, bson.D{{Key: "total_price", Value: int64(-1)}}, coll.FindCalls[0].Opts.Sort)
		require.Len(t, coll.CountCalls, 1)
		require.Equal(t, bson.D{{Key: "cal_card", Value: "YES"}}, coll.CountCalls[0])
	})

	t.Run("user limit lowers both tiers", func(t *testing.T) {
		t.Parallel()

		coll := seededCollection(250)
		e := newExecutor(t, coll, 100, 10_000)

		res, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"find","limit":5}`))
		require.NoError(t, err)
		require.Equal(t, 5, res.Count)
		require.Len(t, res.CompleteRows, 5)
		require.Equal(t, int64(250), res.TotalCount)
	})

	t.Run("missing filter matches all", func(t *testing.T) {
		t.Parallel()

		coll := seededCollection(3)
		e := newExecutor(t, coll, 100, 10_000)

		_, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"find"}`))
		require.NoError(t, err)
		require.Equal(t, bson.D{}, coll.FindCalls[0].Filter)
	})

	t.Run("date placeholders reach the dataset as native dates", func(t *testing.T) {
		t.Parallel()

		coll := seededCollection(3)
		e := newExecutor(t, coll, 100, 10_000)

		_, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"find","filter":{"creation_date":{"$gte":{"__datetime__":"2014-01-01"}}}}`))
		require.NoError(t, err)
		want := bson.D{{Key: "creation_date", Value: bson.D{{Key: "$gte", Value: time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)}}}}
		require.Equal(t, want, coll.FindCalls[0].Filter)
	})

	t.Run("ids and dates are converted to primitives", func(t *testing.T) {
		t.Parallel()

		id := primitive.NewObjectID()
		coll := &datasettest.Collection{
			FindFunc: func(ctx context.Context, filter any, opts dataset.FindOptions) ([]bson.M, error) {
				return []bson.M{{
					"_id":           id,
					"creation_date": primitive.NewDateTimeFromTime(time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC)),
					"quantity":      int32(4),
				}}, nil
			},
			CountFunc: func(ctx context.Context, filter any) (int64, error) { return 1, nil },
		}
		e := newExecutor(t, coll, 100, 10_000)

		res, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"find"}`))
		require.NoError(t, err)
		require.Equal(t, Row{"_id": id.Hex(), "creation_date": "2014-03-01T00:00:00Z", "quantity": int64(4)}, res.Rows[0])
	})
}

func TestProcurement_Executor_Count(t *testing.T) {
	t.Parallel()

	coll := seededCollection(42)
	e := newExecutor(t, coll, 100, 10_000)

	res, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"count","filter":{"department_name":"Health"}}`))
	require.NoError(t, err)
	require.Equal(t, int64(42), res.TotalCount)
	require.Equal(t, int64(res.Count), res.TotalCount)
	require.Empty(t, res.CompleteRows)
	require.Empty(t, coll.FindCalls)
	require.Empty(t, coll.AggregateCalls)
}

func TestProcurement_Executor_Aggregate(t *testing.T) {
	t.Parallel()

	t.Run("three derived pipelines share the prefix", func(t *testing.T) {
		t.Parallel()

		coll := seededCollection(250)
		e := newExecutor(t, coll, 100, 10_000)

		res, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"aggregate","pipeline":[{"$match":{"cal_card":"YES"}},{"$group":{"_id":"$supplier_name"}}]}`))
		require.NoError(t, err)
		require.Equal(t, 100, res.Count)
		require.Len(t, res.CompleteRows, 250)
		require.Equal(t, int64(250), res.TotalCount)

		require.Len(t, coll.AggregateCalls, 3)
		for i, wantLast := range []bson.D{
			{{Key: "$limit", Value: int64(100)}},
			{{Key: "$limit", Value: int64(10_000)}},
			{{Key: "$count", Value: "total"}},
		} {
			stages := coll.AggregateCalls[i].(bson.A)
			require.Len(t, stages, 3)
			require.Equal(t, bson.D{{Key: "$match", Value: bson.D{{Key: "cal_card", Value: "YES"}}}}, stages[0])
			require.Equal(t, wantLast, stages[2])
		}
	})

	t.Run("trailing user limit is stripped and bounds the tiers", func(t *testing.T) {
		t.Parallel()

		coll := seededCollection(250)
		e := newExecutor(t, coll, 100, 10_000)

		res, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"aggregate","pipeline":[{"$group":{"_id":"$supplier_name"}},{"$sort":{"n":-1}},{"$limit":1}]}`))
		require.NoError(t, err)
		require.Equal(t, 1, res.Count)
		require.Len(t, res.CompleteRows, 1)
		require.Equal(t, int64(250), res.TotalCount)

		stages := coll.AggregateCalls[0].(bson.A)
		require.Len(t, stages, 3)
		require.Equal(t, bson.D{{Key: "$limit", Value: int64(1)}}, stages[2])
	})

	t.Run("terminal count stage is the total", func(t *testing.T) {
		t.Parallel()

		coll := &datasettest.Collection{
			AggregateFunc: func(ctx context.Context, pipeline any) ([]bson.M, error) {
				return []bson.M{{"unique_orders": int32(3)}}, nil
			},
		}
		e := newExecutor(t, coll, 100, 10_000)

		res, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"aggregate","pipeline":[
			{"$match":{"supplier_name":"Acme"}},
			{"$group":{"_id":"$purchase_order_number"}},
			{"$count":"unique_orders"}
		]}`))
		require.NoError(t, err)
		require.Equal(t, int64(3), res.TotalCount)
		require.Equal(t, []Row{{"unique_orders": int64(3)}}, res.Rows)
		require.Len(t, coll.AggregateCalls, 2)
	})

	t.Run("empty count falls back to export rows", func(t *testing.T) {
		t.Parallel()

		coll := seededCollection(0)
		e := newExecutor(t, coll, 100, 10_000)

		res, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"aggregate","pipeline":[{"$match":{"x":1}}]}`))
		require.NoError(t, err)
		require.Zero(t, res.TotalCount)
		require.Empty(t, res.Rows)
	})

	t.Run("summary never exceeds cap even when export is larger", func(t *testing.T) {
		t.Parallel()

		coll := seededCollection(20_000)
		e := newExecutor(t, coll, 100, 10_000)

		res, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"aggregate","pipeline":[{"$match":{}}]}`))
		require.NoError(t, err)
		require.Equal(t, 100, res.Count)
		require.Len(t, res.CompleteRows, 10_000)
		require.Equal(t, int64(20_000), res.TotalCount)
	})
}

func TestProcurement_Executor_Failures(t *testing.T) {
	t.Parallel()

	t.Run("dataset error", func(t *testing.T) {
		t.Parallel()

		coll := &datasettest.Collection{
			AggregateFunc: func(ctx context.Context, pipeline any) ([]bson.M, error) {
				return nil, errors.New("unknown operator: $grup")
			},
		}
		e := newExecutor(t, coll, 100, 10_000)

		_, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"aggregate","pipeline":[{"$grup":{}}]}`))
		require.ErrorContains(t, err, "unknown operator: $grup")
		var verr *ValidationError
		require.False(t, errors.As(err, &verr))
	})

	t.Run("panic is recovered", func(t *testing.T) {
		t.Parallel()

		coll := &datasettest.Collection{
			CountFunc: func(ctx context.Context, filter any) (int64, error) {
				panic("driver bug")
			},
		}
		e := newExecutor(t, coll, 100, 10_000)

		res, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"count"}`))
		require.Nil(t, res)
		require.ErrorContains(t, err, "driver bug")
	})

	t.Run("malformed date placeholder surfaces as dataset error", func(t *testing.T) {
		t.Parallel()

		coll := &datasettest.Collection{
			CountFunc: func(ctx context.Context, filter any) (int64, error) {
				return 0, errors.New("unknown operator: __datetime__")
			},
		}
		e := newExecutor(t, coll, 100, 10_000)

		_, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"count","filter":{"creation_date":{"$gte":{"__datetime__":"someday"}}}}`))
		require.ErrorContains(t, err, "__datetime__")
	})
}

func TestProcurement_Executor_AdvisoryChecksDoNotBlock(t *testing.T) {
	t.Parallel()

	coll := seededCollection(2)
	e, err := New(Config{
		Logger:     testLogger(),
		Collection: coll,
		Schema:     schema.Descriptor{"department_name": {Type: "string"}},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), mustQuery(t, `{"operation":"count","filter":{"dept":"Health","creation_date":{"$gte":"2014-01-01"}}}`))
	require.NoError(t, err)
	require.Equal(t, int64(2), res.TotalCount)
}

func TestProcurement_Executor_ConfigValidate(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Logger: testLogger(), Collection: &datasettest.Collection{}, SummaryLimit: 500, ExportLimit: 100})
	require.Error(t, err)

	e, err := New(Config{Logger: testLogger(), Collection: &datasettest.Collection{}})
	require.NoError(t, err)
	require.Equal(t, DefaultSummaryLimit, e.cfg.SummaryLimit)
	require.Equal(t, DefaultExportLimit, e.cfg.ExportLimit)
}
