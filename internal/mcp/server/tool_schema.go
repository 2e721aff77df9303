package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/malbeclabs/procurement-agent/internal/mcp/server/metrics"
	"github.com/malbeclabs/procurement-agent/internal/schema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const schemaToolName = "procurement_schema"

type SchemaInput struct{}

type SchemaField struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Nullable       bool     `json:"nullable"`
	NullPercentage float64  `json:"null_percentage"`
	Examples       []string `json:"examples"`
	SourceColumn   string   `json:"source_column,omitempty"`
	Description    string   `json:"description,omitempty"`
	UsageNote      string   `json:"usage_note,omitempty"`
}

type SchemaOutput struct {
	Fields []SchemaField `json:"fields"`
}

func RegisterSchemaTool(log *slog.Logger, server *mcp.Server, asker Asker) error {
	req, err := jsonschema.For[SchemaInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create schema input schema: %w", err)
	}

	res, err := jsonschema.For[SchemaOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create schema output schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:         schemaToolName,
		Description:  "Profiled fields of the purchase order collection: type, null rate, example values and business meaning.",
		InputSchema:  req,
		OutputSchema: res,
	}

	handler := func(ctx context.Context, _ *mcp.CallToolRequest, req SchemaInput) (*mcp.CallToolResult, SchemaOutput, error) {
		startTime := time.Now()
		log.Debug("mcp/tool: handling schema")

		out := handleSchema(asker.Schema())

		metrics.Observe(schemaToolName, "success", time.Since(startTime).Seconds())
		return nil, out, nil
	}

	mcp.AddTool(server, tool, handler)

	return nil
}

func handleSchema(d schema.Descriptor) SchemaOutput {
	fields := make([]SchemaField, 0, len(d))
	for _, name := range d.Fields() {
		info := d[name]
		examples := info.Examples
		if examples == nil {
			examples = []string{}
		}
		fields = append(fields, SchemaField{
			Name:           name,
			Type:           info.Type,
			Nullable:       info.Nullable,
			NullPercentage: info.NullPercentage,
			Examples:       examples,
			SourceColumn:   info.SourceColumn,
			Description:    info.Description,
			UsageNote:      info.UsageNote,
		})
	}
	return SchemaOutput{Fields: fields}
}
