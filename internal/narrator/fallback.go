package narrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/malbeclabs/procurement-agent/internal/executor"
	"github.com/malbeclabs/procurement-agent/internal/query"
	"github.com/spf13/cast"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const fieldSeparator = " | "

// Fallback renders results without a model call. It never returns an empty
// string.
type Fallback struct {
	printer *message.Printer
}

func NewFallback() *Fallback {
	return &Fallback{printer: message.NewPrinter(language.English)}
}

func (f *Fallback) Narrate(_ context.Context, _ string, res *executor.Result) (string, error) {
	return f.Format(res), nil
}

func (f *Fallback) Format(res *executor.Result) string {
	if res == nil {
		return "No results found."
	}
	switch res.Operation {
	case query.OperationCount:
		return "Total: " + f.printer.Sprintf("%d", res.TotalCount)
	case query.OperationAggregate:
		switch {
		case len(res.Rows) == 1:
			if s := f.row(res.Rows[0]); s != "" {
				return s
			}
			return "Found 1 result"
		case len(res.Rows) > 1:
			return f.printer.Sprintf("Found %d results", max(res.TotalCount, int64(len(res.Rows))))
		}
		return "No results found."
	case query.OperationFind:
		if len(res.Rows) == 0 {
			return "No matching records found."
		}
		return f.printer.Sprintf("Found %d records.", max(res.TotalCount, int64(len(res.Rows))))
	}
	return "Query completed."
}

// row renders the grouping key first, then the remaining fields sorted by
// name as "key: value".
func (f *Fallback) row(row executor.Row) string {
	var parts []string
	if id, ok := row["_id"]; ok && id != nil {
		parts = append(parts, f.key(id))
	}
	keys := make([]string, 0, len(row))
	for k := range row {
		if k != "_id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+": "+f.value(row[k]))
	}
	return strings.Join(parts, fieldSeparator)
}

// key renders a grouping key. Numbers in keys are years or codes, so they
// are printed plainly, without grouping or fixed decimals.
func (f *Fallback) key(v any) string {
	switch val := v.(type) {
	case int, int32, int64:
		return fmt.Sprint(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+f.key(val[k]))
		}
		return strings.Join(parts, ", ")
	}
	return f.value(v)
}

func (f *Fallback) value(v any) string {
	switch val := v.(type) {
	case nil:
		return "n/a"
	case float64:
		return f.printer.Sprintf("%.2f", val)
	case float32:
		return f.printer.Sprintf("%.2f", val)
	case int, int32, int64:
		return f.printer.Sprintf("%d", cast.ToInt64(val))
	case string:
		return val
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+f.value(val[k]))
		}
		return strings.Join(parts, ", ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, f.value(item))
		}
		return strings.Join(parts, ", ")
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}
