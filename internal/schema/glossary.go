package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// ColumnKind tells the importer how to convert a CSV cell.
type ColumnKind string

const (
	KindString   ColumnKind = "string"
	KindDate     ColumnKind = "date"
	KindCurrency ColumnKind = "currency"
	KindNumber   ColumnKind = "number"
)

// DisplaySuffix names the raw string copy kept next to converted fields.
const DisplaySuffix = "_str"

// Column maps a source CSV column to its stored document field.
type Column struct {
	Name        string     `yaml:"column"`
	Field       string     `yaml:"field"`
	Kind        ColumnKind `yaml:"kind"`
	Description string     `yaml:"description"`
	Usage       string     `yaml:"usage"`
}

// HasDisplayCopy reports whether the importer stores a raw string copy of the
// column under Field+DisplaySuffix.
func (c Column) HasDisplayCopy() bool {
	return c.Kind == KindDate || c.Kind == KindCurrency
}

//go:embed glossary.yaml
var glossaryYAML []byte

type glossaryFile struct {
	Columns []Column `yaml:"columns"`
}

var loadColumns = sync.OnceValues(func() ([]Column, error) {
	var g glossaryFile
	if err := yaml.Unmarshal(glossaryYAML, &g); err != nil {
		return nil, fmt.Errorf("failed to parse glossary: %w", err)
	}
	for i, c := range g.Columns {
		if c.Name == "" || c.Field == "" {
			return nil, fmt.Errorf("glossary entry %d is missing column or field", i)
		}
		if c.Kind == "" {
			g.Columns[i].Kind = KindString
		}
	}
	return g.Columns, nil
})

// Columns returns the source column mapping in CSV order.
func Columns() []Column {
	cols, err := loadColumns()
	if err != nil {
		panic(err)
	}
	return cols
}

// glossaryEntry is the business context attached to a stored field.
type glossaryEntry struct {
	column      string
	description string
	usage       string
}

// buildGlossary indexes the column mapping by stored field, display copies
// included.
func buildGlossary(cols []Column) map[string]glossaryEntry {
	byField := make(map[string]glossaryEntry, len(cols)*2)
	for _, c := range cols {
		byField[c.Field] = glossaryEntry{column: c.Name, description: c.Description, usage: c.Usage}
		if c.HasDisplayCopy() {
			byField[c.Field+DisplaySuffix] = glossaryEntry{
				column:      c.Name,
				description: c.Description + " Original text as it appeared in the source file.",
				usage:       fmt.Sprintf("Display-only. Use %s for comparisons, sorting and aggregation.", c.Field),
			}
		}
	}
	return byField
}
