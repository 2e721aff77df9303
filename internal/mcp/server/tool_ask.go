package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/malbeclabs/procurement-agent/internal/agent"
	"github.com/malbeclabs/procurement-agent/internal/mcp/server/metrics"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const askToolName = "ask_procurement_data"

type AskInput struct {
	Question string `json:"question" jsonschema:"natural language question about California state purchase orders"`
	// The export tier can hold thousands of rows; it is only returned on request.
	IncludeCompleteResults bool `json:"include_complete_results,omitempty" jsonschema:"also return the export tier of up to the export limit rows"`
}

type AskOutput struct {
	Success         bool             `json:"success"`
	Response        string           `json:"response"`
	Data            []map[string]any `json:"data"`
	CompleteResults []map[string]any `json:"complete_results,omitempty"`
	Count           int              `json:"count"`
	TotalCount      int64            `json:"total_count"`
	Query           map[string]any   `json:"query,omitempty"`
	Error           string           `json:"error,omitempty"`
	Stage           string           `json:"stage"`
	RequestID       string           `json:"request_id"`
	DurationMS      int64            `json:"duration_ms"`
}

func RegisterAskTool(log *slog.Logger, server *mcp.Server, asker Asker) error {
	req, err := jsonschema.For[AskInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create ask input schema: %w", err)
	}

	res, err := jsonschema.For[AskOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create ask output schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: askToolName,
		Description: `
			PURPOSE:
			Answer a question about California state purchase orders (fiscal years 2012-2015) by querying the procurement database.

			USAGE RULES:
			- Ask one question per call, in plain language. The tool writes and runs the query.
			- Each document is a purchase order line item; ask about "orders" to count distinct purchase orders.
			- "data" holds at most the summary limit of rows; "total_count" is the size of the full match.
			- When "success" is false, "response" explains the failure and "error" holds the cause.
		`,
		InputSchema:  req,
		OutputSchema: res,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req AskInput) (*mcp.CallToolResult, AskOutput, error) {
		startTime := time.Now()
		log.Debug("mcp/tool: handling ask", "question", req.Question)

		out := handleAsk(ctx, asker, req)

		status := "success"
		if !out.Success {
			status = "error"
		}
		metrics.Observe(askToolName, status, time.Since(startTime).Seconds())
		return nil, out, nil
	})
	return nil
}

// handleAsk never fails the tool call; a failed question is reported in the
// output so the caller still gets the explanation.
func handleAsk(ctx context.Context, asker Asker, req AskInput) AskOutput {
	env := asker.Ask(ctx, req.Question)

	out := AskOutput{
		Success:    env.Success,
		Response:   env.Response,
		Data:       rows(env.Data),
		Count:      env.Count,
		TotalCount: env.TotalCount,
		Error:      env.Error,
		Stage:      string(env.Stage),
		RequestID:  env.RequestID,
		DurationMS: env.DurationMS,
	}
	if req.IncludeCompleteResults {
		out.CompleteResults = rows(env.CompleteResults)
	}
	if env.Query != nil {
		var q map[string]any
		if err := json.Unmarshal([]byte(env.Query.JSON()), &q); err == nil {
			out.Query = q
		}
	}
	return out
}

func rows[R ~map[string]any](in []R) []map[string]any {
	out := make([]map[string]any, 0, len(in))
	for _, r := range in {
		out = append(out, map[string]any(r))
	}
	return out
}

var _ Asker = (*agent.Agent)(nil)
