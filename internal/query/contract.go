package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/malbeclabs/procurement-agent/internal/llm"
	"github.com/malbeclabs/procurement-agent/internal/prompts"
	"github.com/malbeclabs/procurement-agent/internal/schema"
)

const (
	// ToolName is the function the model is forced to call.
	ToolName = "execute_mongodb_query"

	schemaPlaceholder  = "{{SCHEMA_CONTEXT}}"
	schemaNotAvailable = "[Schema not available]"
)

// Contract returns the only tool the model may call when generating a query.
func Contract() llm.Tool {
	one := 1
	return llm.Tool{
		Name:        ToolName,
		Description: "Execute a read-only MongoDB query on the procurement purchase_orders collection.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"operation"},
			Properties: map[string]*jsonschema.Schema{
				"operation": {
					Type:        "string",
					Enum:        []any{string(OperationFind), string(OperationAggregate), string(OperationCount)},
					Description: "MongoDB operation type.",
				},
				"filter": {
					Type:        "object",
					Description: `Filter document for find and count. Dates must be placeholders: {"purchase_date": {"$gte": {"__datetime__": "2014-01-01"}}}.`,
				},
				"projection": {
					Type:        "object",
					Description: "Fields to include or exclude (find only).",
				},
				"sort": {
					Type:        "object",
					Description: "Sort specification, keys in priority order (find only).",
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum number of documents to return (find only).",
				},
				"pipeline": {
					Type:        "array",
					Description: "Aggregation stages in order. Each stage is an object with exactly one operator key.",
					Items: &jsonschema.Schema{
						Type:          "object",
						MinProperties: &one,
						MaxProperties: &one,
					},
				},
			},
			AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
		},
	}
}

// BuildSystemMessage renders the generation prompt with the descriptor
// embedded as indented JSON.
func BuildSystemMessage(d schema.Descriptor) string {
	return strings.Replace(prompts.MustLoad(prompts.Generate), schemaPlaceholder, schemaContext(d), 1)
}

func schemaContext(d schema.Descriptor) string {
	if d.Empty() {
		return schemaNotAvailable
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s (%v)", schemaNotAvailable, err)
	}
	return string(b)
}
