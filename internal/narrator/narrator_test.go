package narrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/malbeclabs/procurement-agent/internal/executor"
	"github.com/malbeclabs/procurement-agent/internal/llm/llmtest"
	"github.com/malbeclabs/procurement-agent/internal/query"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func rows(n int) []executor.Row {
	out := make([]executor.Row, n)
	for i := range out {
		out[i] = executor.Row{"_id": fmt.Sprintf("dept-%d", i), "total": float64(i) + 0.3333333}
	}
	return out
}

func TestProcurement_Narrator_Fallback(t *testing.T) {
	t.Parallel()

	f := NewFallback()

	tests := []struct {
		name string
		res  *executor.Result
		want string
	}{
		{
			name: "count",
			res:  &executor.Result{Operation: query.OperationCount, Count: 1234, TotalCount: 1234},
			want: "Total: 1,234",
		},
		{
			name: "single aggregate row",
			res:  &executor.Result{Operation: query.OperationAggregate, Rows: []executor.Row{{"_id": "X", "total": 1234.5}}, Count: 1, TotalCount: 1},
			want: "X | total: 1,234.50",
		},
		{
			name: "single aggregate row with compound key and ints",
			res: &executor.Result{Operation: query.OperationAggregate, Rows: []executor.Row{
				{"_id": map[string]any{"year": int64(2014), "quarter": int64(2)}, "spend": 98765.4321, "orders": int64(1200)},
			}, Count: 1, TotalCount: 1},
			want: "quarter: 2, year: 2014 | orders: 1,200 | spend: 98,765.43",
		},
		{
			name: "single aggregate row with whole float key",
			res:  &executor.Result{Operation: query.OperationAggregate, Rows: []executor.Row{{"_id": 2014.0, "spend": 10.0}}, Count: 1, TotalCount: 1},
			want: "2014 | spend: 10.00",
		},
		{
			name: "single aggregate row with float keys in compound key",
			res: &executor.Result{Operation: query.OperationAggregate, Rows: []executor.Row{
				{"_id": map[string]any{"year": 2014.0, "rate": 2.5}, "orders": int64(3)},
			}, Count: 1, TotalCount: 1},
			want: "rate: 2.5, year: 2014 | orders: 3",
		},
		{
			name: "single aggregate row with null key",
			res:  &executor.Result{Operation: query.OperationAggregate, Rows: []executor.Row{{"_id": nil, "avg_price": 10.0}}, Count: 1, TotalCount: 1},
			want: "avg_price: 10.00",
		},
		{
			name: "many aggregate rows",
			res:  &executor.Result{Operation: query.OperationAggregate, Rows: rows(100), Count: 100, TotalCount: 2500},
			want: "Found 2,500 results",
		},
		{
			name: "empty aggregate",
			res:  &executor.Result{Operation: query.OperationAggregate},
			want: "No results found.",
		},
		{
			name: "find",
			res:  &executor.Result{Operation: query.OperationFind, Rows: rows(3), Count: 3, TotalCount: 3},
			want: "Found 3 records.",
		},
		{
			name: "empty find",
			res:  &executor.Result{Operation: query.OperationFind},
			want: "No matching records found.",
		},
		{
			name: "nil result",
			res:  nil,
			want: "No results found.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := f.Format(tt.res)
			require.Equal(t, tt.want, got)
			require.NotEmpty(t, got)
		})
	}
}

func TestProcurement_Narrator_SampleSize(t *testing.T) {
	t.Parallel()

	for total, want := range map[int64]int{0: 0, 1: 1, 5: 5, 6: 10, 20: 10, 21: 15, 10_000: 15} {
		require.Equal(t, want, SampleSize(total), "total %d", total)
	}
}

func TestProcurement_Narrator_BuildPrompt(t *testing.T) {
	t.Parallel()

	t.Run("partial sample is flagged", func(t *testing.T) {
		t.Parallel()

		p, err := BuildPrompt("Top departments by spend?", &executor.Result{Operation: query.OperationAggregate, Rows: rows(100), Count: 100, TotalCount: 240})
		require.NoError(t, err)
		require.Contains(t, p, "Question: Top departments by spend?")
		require.Contains(t, p, "showing the first 15 of 240")
		require.Contains(t, p, `"dept-14"`)
		require.NotContains(t, p, `"dept-15"`)
		require.Contains(t, p, "0.33")
		require.NotContains(t, p, "0.3333333")
	})

	t.Run("complete sample", func(t *testing.T) {
		t.Parallel()

		p, err := BuildPrompt("q", &executor.Result{Operation: query.OperationAggregate, Rows: rows(4), Count: 4, TotalCount: 4})
		require.NoError(t, err)
		require.Contains(t, p, "complete, 4 rows")
	})

	t.Run("medium result", func(t *testing.T) {
		t.Parallel()

		p, err := BuildPrompt("q", &executor.Result{Operation: query.OperationFind, Rows: rows(18), Count: 18, TotalCount: 18})
		require.NoError(t, err)
		require.Contains(t, p, "showing the first 10 of 18")
	})

	t.Run("count has no rows", func(t *testing.T) {
		t.Parallel()

		p, err := BuildPrompt("q", &executor.Result{Operation: query.OperationCount, Count: 7, TotalCount: 7})
		require.NoError(t, err)
		require.Contains(t, p, "Total matching results: 7")
		require.NotContains(t, p, "Results (")
	})
}

func TestProcurement_Narrator_Chain(t *testing.T) {
	t.Parallel()

	res := &executor.Result{Operation: query.OperationAggregate, Rows: []executor.Row{{"_id": "X", "total": 1234.5}}, Count: 1, TotalCount: 1}

	t.Run("primary answer", func(t *testing.T) {
		t.Parallel()

		client := &llmtest.Client{CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			require.Contains(t, system, "non-technical user")
			return "X spent $1,234.50.", nil
		}}
		primary, err := NewLLM(client)
		require.NoError(t, err)

		text, fellBack := WithFallback(testLogger(), primary, nil).Narrate(context.Background(), "How much did X spend?", res)
		require.False(t, fellBack)
		require.Equal(t, "X spent $1,234.50.", text)
	})

	t.Run("model failure falls back", func(t *testing.T) {
		t.Parallel()

		client := &llmtest.Client{CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			return "", errors.New("rate limited")
		}}
		primary, err := NewLLM(client)
		require.NoError(t, err)

		text, fellBack := WithFallback(testLogger(), primary, nil).Narrate(context.Background(), "How much did X spend?", res)
		require.True(t, fellBack)
		require.True(t, strings.Contains(text, "X"))
		require.True(t, strings.Contains(text, "1,234.50"))
	})

	t.Run("blank answer falls back", func(t *testing.T) {
		t.Parallel()

		client := &llmtest.Client{CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			return "   ", nil
		}}
		primary, err := NewLLM(client)
		require.NoError(t, err)

		text, fellBack := WithFallback(testLogger(), primary, nil).Narrate(context.Background(), "q", res)
		require.True(t, fellBack)
		require.Equal(t, "X | total: 1,234.50", text)
	})

	t.Run("panic falls back", func(t *testing.T) {
		t.Parallel()

		client := &llmtest.Client{CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			panic("boom")
		}}
		primary, err := NewLLM(client)
		require.NoError(t, err)

		text, fellBack := WithFallback(testLogger(), primary, nil).Narrate(context.Background(), "q", res)
		require.True(t, fellBack)
		require.NotEmpty(t, text)
	})

	t.Run("no primary", func(t *testing.T) {
		t.Parallel()

		text, fellBack := WithFallback(testLogger(), nil, nil).Narrate(context.Background(), "q", &executor.Result{Operation: query.OperationCount, TotalCount: 3})
		require.True(t, fellBack)
		require.Equal(t, "Total: 3", text)
	})
}
