package importer

import (
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/procurement-agent/internal/schema"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson"
)

// DateLayout is the source file's date format.
const DateLayout = "01/02/2006"

// rowStats tallies what a single row converted.
type rowStats struct {
	date  bool
	price bool
}

// convertRow turns one CSV record into a document, in glossary order. Empty
// cells become null. Cells that fail to convert also become null, with the
// original text kept in the display copy where the column has one.
func convertRow(cols []schema.Column, index map[string]int, record []string) (bson.D, rowStats) {
	var st rowStats
	doc := make(bson.D, 0, len(cols)+4)
	for _, c := range cols {
		raw := ""
		if i, ok := index[c.Name]; ok && i < len(record) {
			raw = record[i]
		}
		value := convertCell(c.Kind, raw)
		doc = append(doc, bson.E{Key: c.Field, Value: value})
		if c.HasDisplayCopy() {
			doc = append(doc, bson.E{Key: c.Field + schema.DisplaySuffix, Value: cleanString(raw)})
		}

		switch {
		case c.Field == "creation_date" && value != nil:
			st.date = true
		case c.Field == "total_price" && value != nil:
			st.price = true
		}
	}
	return doc, st
}

func convertCell(kind schema.ColumnKind, raw string) any {
	switch kind {
	case schema.KindDate:
		return parseDate(raw)
	case schema.KindCurrency:
		return parseCurrency(raw)
	case schema.KindNumber:
		return parseNumber(raw)
	}
	return cleanString(raw)
}

func cleanString(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func parseDate(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return nil
	}
	return t
}

// parseCurrency converts "$1,234.56" to 1234.56.
func parseCurrency(s string) any {
	cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
	if cleaned == "" {
		return nil
	}
	f, err := cast.ToFloat64E(cleaned)
	if err != nil {
		return nil
	}
	return f
}

// parseNumber keeps whole numbers as integers.
func parseNumber(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if !strings.Contains(s, ".") {
		// Base 10: codes with leading zeros are not octal.
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	f, err := cast.ToFloat64E(s)
	if err != nil {
		return nil
	}
	return f
}
