// Package query defines the structured query a model emits, the ordered tree
// it is decoded into, date placeholder normalization and the tool contract
// and system prompt that constrain generation.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/spf13/cast"
)

// Operation is one of the three read operations the dataset accepts.
type Operation string

const (
	OperationFind      Operation = "find"
	OperationAggregate Operation = "aggregate"
	OperationCount     Operation = "count"
)

// Operations lists every supported operation.
var Operations = []Operation{OperationFind, OperationAggregate, OperationCount}

// Valid reports whether o is a supported operation.
func (o Operation) Valid() bool {
	for _, op := range Operations {
		if o == op {
			return true
		}
	}
	return false
}

// ErrMalformedArguments is returned when tool arguments cannot be decoded
// into a StructuredQuery, even after repair.
var ErrMalformedArguments = errors.New("malformed query arguments")

// StructuredQuery is the model's query candidate. Dates inside Filter and
// Pipeline are placeholders until Normalized is called.
type StructuredQuery struct {
	Operation  Operation `json:"operation"`
	Filter     *Node     `json:"filter,omitempty"`
	Projection *Node     `json:"projection,omitempty"`
	Sort       *Node     `json:"sort,omitempty"`
	Limit      *Node     `json:"limit,omitempty"`
	Pipeline   *Node     `json:"pipeline,omitempty"`
}

// ParseStructuredQuery decodes tool call arguments. Invalid JSON gets one
// repair attempt before the arguments are rejected.
func ParseStructuredQuery(raw []byte) (*StructuredQuery, error) {
	var q StructuredQuery
	if err := json.Unmarshal(raw, &q); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(raw))
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedArguments, err)
		}
		q = StructuredQuery{}
		if err := json.Unmarshal([]byte(repaired), &q); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedArguments, err)
		}
	}
	if q.Operation == "" {
		return nil, fmt.Errorf("%w: missing operation", ErrMalformedArguments)
	}
	return &q, nil
}

// LimitValue returns the user supplied limit when it is a positive integer.
func (q *StructuredQuery) LimitValue() (int64, bool) {
	if q.Limit == nil || q.Limit.Kind != KindScalar || q.Limit.Value == nil {
		return 0, false
	}
	v, err := cast.ToInt64E(scalarForCast(q.Limit.Value))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func scalarForCast(v any) any {
	if num, ok := v.(json.Number); ok {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}
	return v
}

// Normalized returns a copy with date placeholders in Filter and Pipeline
// replaced by native dates.
func (q *StructuredQuery) Normalized(log *slog.Logger) *StructuredQuery {
	out := *q
	out.Filter = NormalizeDates(log, q.Filter)
	out.Pipeline = NormalizeDates(log, q.Pipeline)
	return &out
}

// JSON renders the query for logs and the audit field of the envelope.
func (q *StructuredQuery) JSON() string {
	b, err := json.Marshal(q)
	if err != nil {
		return fmt.Sprintf("<unencodable query: %v>", err)
	}
	return string(b)
}

// ReferencedFields lists the top-level document fields named by the filter
// and by the $match stages that precede any reshaping stage. Operators and
// dotted sub-paths are reduced to their root field.
func ReferencedFields(q *StructuredQuery) []string {
	seen := map[string]struct{}{}
	collectPredicateFields(q.Filter, seen)
	if q.Pipeline != nil && q.Pipeline.Kind == KindArray {
	stages:
		for _, stage := range q.Pipeline.Items {
			if stage.Kind != KindObject || len(stage.Fields) != 1 {
				break
			}
			switch stage.Fields[0].Key {
			case "$match":
				collectPredicateFields(stage.Fields[0].Value, seen)
			case "$sort", "$limit", "$skip":
			default:
				break stages
			}
		}
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func collectPredicateFields(n *Node, seen map[string]struct{}) {
	if n == nil || n.Kind != KindObject {
		return
	}
	for _, f := range n.Fields {
		switch {
		case f.Key == "$and" || f.Key == "$or" || f.Key == "$nor":
			if f.Value.Kind == KindArray {
				for _, item := range f.Value.Items {
					collectPredicateFields(item, seen)
				}
			}
		case strings.HasPrefix(f.Key, "$"):
		default:
			root, _, _ := strings.Cut(f.Key, ".")
			seen[root] = struct{}{}
		}
	}
}
