package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v5"
	"github.com/malbeclabs/procurement-agent/internal/metrics"
)

const (
	defaultMaxTokens  = 2048
	defaultMaxRetries = 3
)

type AnthropicConfig struct {
	Logger     *slog.Logger
	APIKey     string
	Model      string
	MaxTokens  int64
	MaxRetries uint
	// RequestOptions are appended to the client options, mainly for tests.
	RequestOptions []option.RequestOption
}

func (c *AnthropicConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("anthropic api key is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	return nil
}

// Anthropic implements Client using the Anthropic Messages API.
type Anthropic struct {
	log        *slog.Logger
	client     anthropic.Client
	model      anthropic.Model
	maxTokens  int64
	maxRetries uint
}

var _ Client = (*Anthropic)(nil)

func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Retries are handled here with backoff, not by the SDK.
	opts := append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}, cfg.RequestOptions...)

	return &Anthropic{
		log:        cfg.Logger,
		client:     anthropic.NewClient(opts...),
		model:      anthropic.Model(cfg.Model),
		maxTokens:  cfg.MaxTokens,
		maxRetries: cfg.MaxRetries,
	}, nil
}

func (a *Anthropic) CallTool(ctx context.Context, systemPrompt, userPrompt string, tool Tool) ([]byte, error) {
	toolParam := anthropic.ToolParam{
		Name:        tool.Name,
		Description: anthropic.Opt(tool.Description),
	}
	if tool.InputSchema != nil {
		toolParam.InputSchema = anthropic.ToolInputSchemaParam{
			Properties: tool.InputSchema.Properties,
			Required:   tool.InputSchema.Required,
		}
		// A closed schema marshals as "additionalProperties": false.
		if ap := tool.InputSchema.AdditionalProperties; ap != nil {
			toolParam.InputSchema.ExtraFields = map[string]any{"additionalProperties": ap}
		}
	}

	msg, err := a.send(ctx, "tool", anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		Tools: []anthropic.ToolUnionParam{{OfTool: &toolParam}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: tool.Name},
		},
	})
	if err != nil {
		return nil, err
	}

	for _, block := range msg.Content {
		if block.Type != "tool_use" {
			continue
		}
		tu := block.AsToolUse()
		if tu.Name == tool.Name {
			return []byte(tu.Input), nil
		}
	}
	return nil, ErrNoToolCall
}

func (a *Anthropic) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	msg, err := a.send(ctx, "complete", anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// send issues the request, retrying rate limits, overload and server errors
// with exponential backoff.
func (a *Anthropic) send(ctx context.Context, kind string, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	start := time.Now()
	attempt := 1
	msg, err := backoff.Retry(ctx, func() (*anthropic.Message, error) {
		if attempt > 1 {
			a.log.Warn("llm: anthropic call failed, retrying", "kind", kind, "attempt", attempt)
		}
		attempt++
		msg, err := a.client.Messages.New(ctx, params)
		if err != nil {
			if !retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return msg, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(a.maxRetries))

	duration := time.Since(start)
	metrics.LLMCallDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues(kind, metrics.StatusError).Inc()
		a.log.Error("llm: anthropic call failed", "kind", kind, "duration", duration, "error", err)
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}
	metrics.LLMCallsTotal.WithLabelValues(kind, metrics.StatusSuccess).Inc()
	a.log.Debug("llm: anthropic call completed",
		"kind", kind,
		"model", a.model,
		"duration", duration,
		"stopReason", msg.StopReason,
		"inputTokens", msg.Usage.InputTokens,
		"outputTokens", msg.Usage.OutputTokens)
	return msg, nil
}

func retryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode >= http.StatusInternalServerError:
			return true
		}
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
