package executor

import (
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Row is one result document reduced to JSON-friendly primitives.
type Row map[string]any

func toRows(docs []bson.M) []Row {
	rows := make([]Row, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, toRow(doc))
	}
	return rows
}

func toRow(doc bson.M) Row {
	row := make(Row, len(doc))
	for k, v := range doc {
		row[k] = ToPrimitive(v)
	}
	return row
}

// ToPrimitive converts driver values to strings, numbers, bools, nil, maps and
// slices. Object ids become hex strings and dates ISO-8601 strings.
func ToPrimitive(v any) any {
	switch val := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return nil
	case string, bool, int64, float64:
		return val
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case float32:
		return float64(val)
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return formatTime(val.Time())
	case time.Time:
		return formatTime(val)
	case primitive.Timestamp:
		return formatTime(time.Unix(int64(val.T), 0))
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(val.String(), 64); err == nil {
			return f
		}
		return val.String()
	case bson.M:
		return map[string]any(toRow(val))
	case map[string]any:
		return map[string]any(toRow(val))
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = ToPrimitive(e.Value)
		}
		return m
	case bson.A:
		return toSlice(val)
	case []any:
		return toSlice(val)
	case primitive.Binary:
		return fmt.Sprintf("%x", val.Data)
	}
	return fmt.Sprint(v)
}

func toSlice(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = ToPrimitive(item)
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
