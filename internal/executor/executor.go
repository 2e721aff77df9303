// Package executor validates structured queries and runs them against the
// dataset, materializing a bounded summary tier, a larger export tier and the
// true total count.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/malbeclabs/procurement-agent/internal/dataset"
	"github.com/malbeclabs/procurement-agent/internal/metrics"
	"github.com/malbeclabs/procurement-agent/internal/query"
	"github.com/malbeclabs/procurement-agent/internal/schema"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	DefaultSummaryLimit = 100
	DefaultExportLimit  = 10_000

	totalCountField = "total"
)

type Config struct {
	Logger     *slog.Logger
	Collection dataset.Collection

	SummaryLimit int
	ExportLimit  int

	// Schema enables the advisory check of filter fields. Unknown fields are
	// logged and counted, never rejected.
	Schema schema.Descriptor
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Collection == nil {
		return fmt.Errorf("collection is required")
	}
	if c.SummaryLimit == 0 {
		c.SummaryLimit = DefaultSummaryLimit
	}
	if c.ExportLimit == 0 {
		c.ExportLimit = DefaultExportLimit
	}
	if c.SummaryLimit < 0 || c.ExportLimit < c.SummaryLimit {
		return fmt.Errorf("invalid limits: summary %d, export %d", c.SummaryLimit, c.ExportLimit)
	}
	return nil
}

// Result is the outcome of a successful execution.
type Result struct {
	Operation query.Operation
	// Rows is the summary tier, at most SummaryLimit rows.
	Rows []Row
	// CompleteRows is the export tier, at most ExportLimit rows.
	CompleteRows []Row
	// Count is len(Rows).
	Count int
	// TotalCount is the size of the full match, independent of both limits.
	TotalCount int64
}

// Executor runs structured queries against one collection.
type Executor struct {
	log *slog.Logger
	cfg Config
}

// New validates cfg, applying default limits, and returns an Executor.
func New(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Executor{log: cfg.Logger, cfg: cfg}, nil
}

// Execute runs a normalized structured query. Contract violations are
// returned as *ValidationError without touching the dataset; dataset errors
// and panics are returned as plain errors.
func (e *Executor) Execute(ctx context.Context, q *query.StructuredQuery) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("executor: recovered panic", "operation", q.Operation, "panic", r)
			res, err = nil, fmt.Errorf("query execution panicked: %v", r)
		}
	}()

	if q == nil {
		return nil, e.reject(validationErrorf(ReasonInvalidArgument, "no query to execute"))
	}

	e.advise(q)

	switch q.Operation {
	case query.OperationFind:
		res, err = e.find(ctx, q)
	case query.OperationCount:
		res, err = e.count(ctx, q)
	case query.OperationAggregate:
		res, err = e.aggregate(ctx, q)
	default:
		return nil, e.reject(validationErrorf(ReasonUnsupportedOperation, "Unsupported operation: %q", q.Operation))
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("executor: query executed",
		"operation", res.Operation,
		"rows", res.Count,
		"completeRows", len(res.CompleteRows),
		"total", res.TotalCount)
	return res, nil
}

func (e *Executor) reject(v *ValidationError) error {
	metrics.ValidationFailuresTotal.WithLabelValues(v.Reason).Inc()
	e.log.Info("executor: query rejected", "reason", v.Reason, "error", v.Message)
	return v
}

// limits returns the summary and export caps, lowered by a positive user
// supplied limit.
func (e *Executor) limits(user int64, ok bool) (int64, int64) {
	summary, export := int64(e.cfg.SummaryLimit), int64(e.cfg.ExportLimit)
	if ok {
		summary = min(summary, user)
		export = min(export, user)
	}
	return summary, export
}

func objectArg(name string, n *query.Node) (any, *ValidationError) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != query.KindObject {
		return nil, validationErrorf(ReasonInvalidArgument, "%s must be an object, got %s", name, n.Kind)
	}
	return n.ToBSON(), nil
}

func (e *Executor) filter(q *query.StructuredQuery) (any, *ValidationError) {
	f, verr := objectArg("filter", q.Filter)
	if verr != nil {
		return nil, verr
	}
	if f == nil {
		return bson.D{}, nil
	}
	return f, nil
}

func (e *Executor) find(ctx context.Context, q *query.StructuredQuery) (*Result, error) {
	filter, verr := e.filter(q)
	if verr != nil {
		return nil, e.reject(verr)
	}
	projection, verr := objectArg("projection", q.Projection)
	if verr != nil {
		return nil, e.reject(verr)
	}
	sort, verr := objectArg("sort", q.Sort)
	if verr != nil {
		return nil, e.reject(verr)
	}

	summaryLimit, exportLimit := e.limits(q.LimitValue())

	summary, err := e.findRows(ctx, filter, dataset.FindOptions{Projection: projection, Sort: sort, Limit: summaryLimit})
	if err != nil {
		return nil, err
	}
	export, err := e.findRows(ctx, filter, dataset.FindOptions{Projection: projection, Sort: sort, Limit: exportLimit})
	if err != nil {
		return nil, err
	}
	total, err := e.countDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	rows := toRows(summary)
	return &Result{
		Operation:    query.OperationFind,
		Rows:         rows,
		CompleteRows: toRows(export),
		Count:        len(rows),
		TotalCount:   total,
	}, nil
}

func (e *Executor) count(ctx context.Context, q *query.StructuredQuery) (*Result, error) {
	filter, verr := e.filter(q)
	if verr != nil {
		return nil, e.reject(verr)
	}
	total, err := e.countDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Result{
		Operation:    query.OperationCount,
		Rows:         []Row{},
		CompleteRows: []Row{},
		Count:        int(total),
		TotalCount:   total,
	}, nil
}

func (e *Executor) findRows(ctx context.Context, filter any, opts dataset.FindOptions) ([]bson.M, error) {
	e.log.Debug("executor: running find", "limit", opts.Limit)
	docs, err := e.cfg.Collection.Find(ctx, filter, opts)
	recordOp("find", err)
	if err != nil {
		return nil, fmt.Errorf("find failed: %w", err)
	}
	return docs, nil
}

func (e *Executor) countDocuments(ctx context.Context, filter any) (int64, error) {
	n, err := e.cfg.Collection.CountDocuments(ctx, filter)
	recordOp("count", err)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

func (e *Executor) runPipeline(ctx context.Context, stages []any) ([]bson.M, error) {
	pipeline := bson.A(stages)
	e.log.Debug("executor: running pipeline", "stages", len(stages))
	docs, err := e.cfg.Collection.Aggregate(ctx, pipeline)
	recordOp("aggregate", err)
	if err != nil {
		return nil, fmt.Errorf("aggregate failed: %w", err)
	}
	return docs, nil
}

func recordOp(op string, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.DatasetOpsTotal.WithLabelValues(op, status).Inc()
}

var dateLike = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ].*)?$`)

var comparisonOps = map[string]struct{}{
	"$eq": {}, "$ne": {}, "$gt": {}, "$gte": {}, "$lt": {}, "$lte": {},
}

// advise logs problems that do not block execution: date-like strings used
// as comparison operands without a placeholder, and filter fields that are
// absent from the profiled schema.
func (e *Executor) advise(q *query.StructuredQuery) {
	for _, n := range []*query.Node{q.Filter, q.Pipeline} {
		n.Walk(func(node *query.Node) {
			if node.Kind != query.KindObject {
				return
			}
			for _, f := range node.Fields {
				if _, ok := comparisonOps[f.Key]; !ok {
					continue
				}
				if s, ok := f.Value.AsString(); ok && dateLike.MatchString(s) {
					metrics.UntaggedDatesTotal.Inc()
					e.log.Warn("executor: date string compared without placeholder", "operator", f.Key, "value", s)
				}
			}
		})
	}

	if e.cfg.Schema.Empty() {
		return
	}
	for _, field := range query.ReferencedFields(q) {
		if !e.cfg.Schema.Has(field) {
			metrics.UnknownFieldsTotal.Inc()
			e.log.Warn("executor: filter references field missing from schema", "field", field)
		}
	}
}
