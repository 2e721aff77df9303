// Package schema profiles the purchase order collection into a Descriptor
// that grounds query generation.
package schema

import "sort"

const (
	TypeNull     = "null"
	maxExamples  = 5
	maxExampleSz = 100
)

// FieldInfo describes one document field as observed in a sample.
type FieldInfo struct {
	Type           string   `json:"type"`
	Nullable       bool     `json:"nullable"`
	NullPercentage float64  `json:"null_percentage"`
	Examples       []string `json:"examples"`
	SourceColumn   string   `json:"source_column,omitempty"`
	Description    string   `json:"description,omitempty"`
	UsageNote      string   `json:"usage_note,omitempty"`
}

// Descriptor maps field names to their profile. It is built once and must
// not be modified afterwards.
type Descriptor map[string]FieldInfo

func (d Descriptor) Empty() bool { return len(d) == 0 }

func (d Descriptor) Has(field string) bool {
	_, ok := d[field]
	return ok
}

// Fields returns the field names in sorted order.
func (d Descriptor) Fields() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
