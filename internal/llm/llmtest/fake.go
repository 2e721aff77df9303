// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/malbeclabs/procurement-agent/internal/llm"
)

type ToolCall struct {
	SystemPrompt string
	UserPrompt   string
	Tool         llm.Tool
}

type CompleteCall struct {
	SystemPrompt string
	UserPrompt   string
}

// Client records calls and answers from the configured funcs. Unset funcs
// return llm.ErrNoToolCall and llm.ErrEmptyResponse respectively.
type Client struct {
	ToolFunc     func(ctx context.Context, systemPrompt, userPrompt string, tool llm.Tool) ([]byte, error)
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	mu            sync.Mutex
	ToolCalls     []ToolCall
	CompleteCalls []CompleteCall
}

var _ llm.Client = (*Client)(nil)

// ReturningArgs answers every tool call with args.
func ReturningArgs(args string) *Client {
	return &Client{
		ToolFunc: func(context.Context, string, string, llm.Tool) ([]byte, error) {
			return []byte(args), nil
		},
	}
}

func (c *Client) CallTool(ctx context.Context, systemPrompt, userPrompt string, tool llm.Tool) ([]byte, error) {
	c.mu.Lock()
	c.ToolCalls = append(c.ToolCalls, ToolCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt, Tool: tool})
	c.mu.Unlock()
	if c.ToolFunc == nil {
		return nil, llm.ErrNoToolCall
	}
	return c.ToolFunc(ctx, systemPrompt, userPrompt, tool)
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.mu.Lock()
	c.CompleteCalls = append(c.CompleteCalls, CompleteCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	c.mu.Unlock()
	if c.CompleteFunc == nil {
		return "", llm.ErrEmptyResponse
	}
	return c.CompleteFunc(ctx, systemPrompt, userPrompt)
}

func (c *Client) Calls() (tool, complete int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ToolCalls), len(c.CompleteCalls)
}
