package narrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/malbeclabs/procurement-agent/internal/executor"
	"github.com/malbeclabs/procurement-agent/internal/llm"
	"github.com/malbeclabs/procurement-agent/internal/prompts"
)

// Sample tiers: every row up to smallResult, mediumSample rows up to
// mediumResult, largeSample rows beyond.
const (
	smallResult  = 5
	mediumResult = 20
	mediumSample = 10
	largeSample  = 15
)

// LLMNarrator asks the model to explain a sample of the results.
type LLMNarrator struct {
	client       llm.Client
	systemPrompt string
}

func NewLLM(client llm.Client) (*LLMNarrator, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	system, err := prompts.Load(prompts.Narrate)
	if err != nil {
		return nil, err
	}
	return &LLMNarrator{client: client, systemPrompt: system}, nil
}

func (n *LLMNarrator) Narrate(ctx context.Context, question string, res *executor.Result) (string, error) {
	userPrompt, err := BuildPrompt(question, res)
	if err != nil {
		return "", err
	}
	text, err := n.client.Complete(ctx, n.systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

// SampleSize picks how many rows to show the model for a result of total
// rows.
func SampleSize(total int64) int {
	switch {
	case total <= smallResult:
		return int(max(total, 0))
	case total <= mediumResult:
		return mediumSample
	}
	return largeSample
}

// BuildPrompt renders the question and a tiered sample of the summary rows.
func BuildPrompt(question string, res *executor.Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("no result to narrate")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", question)
	fmt.Fprintf(&sb, "Operation: %s\n", res.Operation)
	fmt.Fprintf(&sb, "Total matching results: %d\n", res.TotalCount)

	if len(res.Rows) == 0 {
		if res.TotalCount == 0 {
			sb.WriteString("No rows matched.\n")
		}
		return sb.String(), nil
	}

	size := min(SampleSize(res.TotalCount), len(res.Rows))
	if size == 0 {
		size = min(largeSample, len(res.Rows))
	}
	sample := make([]executor.Row, size)
	for i := range sample {
		sample[i] = roundRow(res.Rows[i])
	}

	if int64(size) < res.TotalCount {
		fmt.Fprintf(&sb, "Results (partial: showing the first %d of %d; the rest are omitted):\n", size, res.TotalCount)
	} else {
		fmt.Fprintf(&sb, "Results (complete, %d rows):\n", size)
	}
	b, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode sample: %w", err)
	}
	sb.Write(b)
	sb.WriteByte('\n')
	return sb.String(), nil
}

// roundRow rounds floats to 2 decimal places so long fractions do not
// distract the model.
func roundRow(row executor.Row) executor.Row {
	out := make(executor.Row, len(row))
	for k, v := range row {
		out[k] = roundValue(v)
	}
	return out
}

func roundValue(v any) any {
	switch val := v.(type) {
	case float64:
		return math.Round(val*100) / 100
	case map[string]any:
		return map[string]any(roundRow(val))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = roundValue(item)
		}
		return out
	}
	return v
}
