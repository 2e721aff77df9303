package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/malbeclabs/procurement-agent/internal/agent"
	"github.com/malbeclabs/procurement-agent/internal/executor"
	"github.com/malbeclabs/procurement-agent/internal/llm"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

type AskCmd struct{}

func NewAskCmd() *AskCmd {
	return &AskCmd{}
}

func (c *AskCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Answer a question about the purchase order data",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return fmt.Errorf("failed to get json flag: %w", err)
			}
			showQuery, err := cmd.Flags().GetBool("show-query")
			if err != nil {
				return fmt.Errorf("failed to get show-query flag: %w", err)
			}

			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			db, err := connect(ctx, log, cfg)
			if err != nil {
				return err
			}
			defer closeDataset(log, db)

			client, err := llm.NewAnthropic(llm.AnthropicConfig{
				Logger:     log,
				APIKey:     cfg.AnthropicAPIKey,
				Model:      cfg.Model,
				MaxTokens:  cfg.MaxTokens,
				MaxRetries: cfg.LLMMaxRetries,
			})
			if err != nil {
				return fmt.Errorf("failed to create llm client: %w", err)
			}

			a, err := agent.New(ctx, agent.Config{
				Logger:             log,
				LLM:                client,
				Collection:         db,
				SchemaSampleSize:   cfg.SchemaSampleSize,
				SchemaSnapshotPath: cfg.SchemaSnapshotPath,
				SummaryLimit:       cfg.SummaryLimit,
				ExportLimit:        cfg.ExportLimit,
			})
			if err != nil {
				return fmt.Errorf("failed to create agent: %w", err)
			}

			env := a.Ask(ctx, strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(env)
			}
			printEnvelope(out, env, showQuery)
			if !env.Success {
				return fmt.Errorf("question failed at stage %s: %s", env.Stage, env.Error)
			}
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "print the full result envelope as JSON")
	cmd.Flags().Bool("show-query", false, "print the generated query")

	return cmd
}

func printEnvelope(w io.Writer, env *agent.Envelope, showQuery bool) {
	fmt.Fprintln(w, env.Response)
	if showQuery && env.Query != nil {
		fmt.Fprintf(w, "\nQuery: %s\n", env.Query.JSON())
	}
	if len(env.Data) == 0 {
		return
	}
	fmt.Fprintln(w)
	printRows(w, env.Data)
	if env.TotalCount > int64(env.Count) {
		fmt.Fprintf(w, "Showing %d of %d results.\n", env.Count, env.TotalCount)
	}
}

// printRows renders rows as a table with the grouping key first and the
// remaining columns sorted.
func printRows(w io.Writer, rows []executor.Row) {
	seen := map[string]struct{}{}
	var columns []string
	for _, row := range rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}
	sort.Slice(columns, func(i, j int) bool {
		if (columns[i] == "_id") != (columns[j] == "_id") {
			return columns[i] == "_id"
		}
		return columns[i] < columns[j]
	})

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(true)
	table.SetHeader(columns)
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = formatCell(row[col])
		}
		table.Append(cells)
	}
	table.Render()
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%.2f", val)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
	return cast.ToString(v)
}
