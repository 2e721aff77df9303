// Package llm is the model invocation boundary.
package llm

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrNoToolCall is returned when a forced tool call response carries no call
// to the requested tool.
var ErrNoToolCall = errors.New("model returned no tool call")

// ErrEmptyResponse is returned when a completion has no text.
var ErrEmptyResponse = errors.New("model returned no text")

// Tool is a function definition offered to the model.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Client calls a language model.
type Client interface {
	// CallTool forces the model to call tool and returns the raw JSON
	// arguments of that call.
	CallTool(ctx context.Context, systemPrompt, userPrompt string, tool Tool) ([]byte, error)
	// Complete returns the text of a plain completion.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
