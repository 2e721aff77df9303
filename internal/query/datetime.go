package query

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// DatetimeTag marks a placeholder date object: {"__datetime__": "2014-01-01"}.
	DatetimeTag = "__datetime__"

	legacyDateTag  = "$date"
	datetimePrefix = DatetimeTag + ":"
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDate parses a date-only "YYYY-MM-DD" value or an ISO-8601 timestamp
// with an optional trailing zone marker. Values without a zone are UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "T") {
		return time.Parse(time.DateOnly, s)
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized ISO date %q", s)
}

// NormalizeDates replaces every date placeholder in n with a native time
// value and returns the new tree. Placeholders that fail to parse are logged
// and left in place, so the dataset rejects them instead of this function.
func NormalizeDates(log *slog.Logger, n *Node) *Node {
	return n.Transform(func(node *Node) *Node {
		switch node.Kind {
		case KindObject:
			raw, ok := placeholderValue(node)
			if !ok {
				return node
			}
			t, err := ParseDate(raw)
			if err != nil {
				if log != nil {
					log.Warn("normalizer: failed to parse date placeholder", "value", raw, "error", err)
				}
				return node
			}
			return Scalar(t)
		case KindScalar:
			s, ok := node.Value.(string)
			if !ok || !strings.HasPrefix(s, datetimePrefix) {
				return node
			}
			raw := strings.TrimPrefix(s, datetimePrefix)
			t, err := ParseDate(raw)
			if err != nil {
				if log != nil {
					log.Warn("normalizer: failed to parse prefixed date", "value", s, "error", err)
				}
				return node
			}
			return Scalar(t)
		}
		return node
	})
}

// placeholderValue returns the date string of an object that is exactly
// {"__datetime__": "..."} or the legacy {"$date": "..."}.
func placeholderValue(n *Node) (string, bool) {
	if n.Kind != KindObject || len(n.Fields) != 1 {
		return "", false
	}
	f := n.Fields[0]
	if f.Key != DatetimeTag && f.Key != legacyDateTag {
		return "", false
	}
	return f.Value.AsString()
}

// HasPlaceholders reports whether any date placeholder remains in n.
func HasPlaceholders(n *Node) bool {
	found := false
	n.Walk(func(node *Node) {
		if _, ok := placeholderValue(node); ok {
			found = true
			return
		}
		if s, ok := node.AsString(); ok && strings.HasPrefix(s, datetimePrefix) {
			found = true
		}
	})
	return found
}
