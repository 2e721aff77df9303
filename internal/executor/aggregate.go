package executor

import (
	"context"
	"sort"

	"github.com/malbeclabs/procurement-agent/internal/query"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson"
)

// writeStages are aggregation stages that modify the dataset.
var writeStages = map[string]struct{}{
	"$out":   {},
	"$merge": {},
}

// ValidatePipeline checks that the pipeline is a non-empty array of objects
// with exactly one key each, none of them a write stage.
func ValidatePipeline(pipeline *query.Node) *ValidationError {
	if pipeline == nil || pipeline.Kind != query.KindArray || len(pipeline.Items) == 0 {
		return validationErrorf(ReasonEmptyPipeline, "Aggregation pipeline must be a non-empty array")
	}
	for i, stage := range pipeline.Items {
		if stage == nil || stage.Kind != query.KindObject {
			kind := "null"
			if stage != nil {
				kind = stage.Kind.String()
			}
			return validationErrorf(ReasonStageNotObject, "Pipeline stage %d must be an object, got %s", i, kind)
		}
		if len(stage.Fields) != 1 {
			keys := stage.Keys()
			sort.Strings(keys)
			return validationErrorf(ReasonStageKeyCount, "Pipeline stage %d must have exactly one field, got %d fields: %v", i, len(stage.Fields), keys)
		}
		if op := stageOperator(stage); isWriteStage(op) {
			return validationErrorf(ReasonWriteStage, "Pipeline stage %d uses %s, which writes to the dataset; only read-only stages are allowed", i, op)
		}
	}
	return nil
}

func stageOperator(stage *query.Node) string {
	return stage.Fields[0].Key
}

func isWriteStage(op string) bool {
	_, ok := writeStages[op]
	return ok
}

// splitTrailingLimit removes a final $limit stage and returns its value when
// it is a positive integer.
func splitTrailingLimit(stages []*query.Node) ([]*query.Node, int64, bool) {
	if len(stages) == 0 || stageOperator(stages[len(stages)-1]) != "$limit" {
		return stages, 0, false
	}
	last := stages[len(stages)-1].Fields[0].Value
	prefix := stages[:len(stages)-1]
	if last == nil || last.Kind != query.KindScalar {
		return prefix, 0, false
	}
	n, err := cast.ToInt64E(last.ToBSON())
	if err != nil || n <= 0 {
		return prefix, 0, false
	}
	return prefix, n, true
}

func (e *Executor) aggregate(ctx context.Context, q *query.StructuredQuery) (*Result, error) {
	if verr := ValidatePipeline(q.Pipeline); verr != nil {
		return nil, e.reject(verr)
	}

	prefix, userLimit, hasLimit := splitTrailingLimit(q.Pipeline.Items)
	summaryLimit, exportLimit := e.limits(userLimit, hasLimit)

	base := make([]any, 0, len(prefix)+1)
	for _, stage := range prefix {
		base = append(base, stage.ToBSON())
	}
	withStage := func(stage bson.D) []any {
		out := make([]any, len(base), len(base)+1)
		copy(out, base)
		return append(out, stage)
	}

	summary, err := e.runPipeline(ctx, withStage(bson.D{{Key: "$limit", Value: summaryLimit}}))
	if err != nil {
		return nil, err
	}
	export, err := e.runPipeline(ctx, withStage(bson.D{{Key: "$limit", Value: exportLimit}}))
	if err != nil {
		return nil, err
	}

	var total int64
	if field, ok := terminalCountField(prefix); ok {
		// The pipeline already counts; its single row carries the total.
		total = countValue(export, field)
	} else {
		counted, err := e.runPipeline(ctx, withStage(bson.D{{Key: "$count", Value: totalCountField}}))
		if err != nil {
			return nil, err
		}
		if len(counted) > 0 {
			total = countValue(counted, totalCountField)
		} else {
			total = int64(len(export))
		}
	}

	rows := toRows(summary)
	return &Result{
		Operation:    query.OperationAggregate,
		Rows:         rows,
		CompleteRows: toRows(export),
		Count:        len(rows),
		TotalCount:   total,
	}, nil
}

// terminalCountField returns the output field of a final $count stage.
func terminalCountField(stages []*query.Node) (string, bool) {
	if len(stages) == 0 {
		return "", false
	}
	last := stages[len(stages)-1]
	if stageOperator(last) != "$count" {
		return "", false
	}
	return last.Fields[0].Value.AsString()
}

func countValue(rows []bson.M, field string) int64 {
	if len(rows) == 0 {
		return 0
	}
	n, err := cast.ToInt64E(rows[0][field])
	if err != nil {
		return int64(len(rows))
	}
	return n
}
