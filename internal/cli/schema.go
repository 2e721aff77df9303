package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/malbeclabs/procurement-agent/internal/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type SchemaCmd struct{}

func NewSchemaCmd() *SchemaCmd {
	return &SchemaCmd{}
}

func (c *SchemaCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Profile the collection and print the field descriptor",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return fmt.Errorf("failed to get json flag: %w", err)
			}
			sampleSize, err := cmd.Flags().GetInt("sample-size")
			if err != nil {
				return fmt.Errorf("failed to get sample-size flag: %w", err)
			}

			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if sampleSize <= 0 {
				sampleSize = cfg.SchemaSampleSize
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			db, err := connect(ctx, log, cfg)
			if err != nil {
				return err
			}
			defer closeDataset(log, db)

			profiler, err := schema.NewProfiler(schema.ProfilerConfig{
				Logger:       log,
				Collection:   db,
				SampleSize:   sampleSize,
				SnapshotPath: cfg.SchemaSnapshotPath,
			})
			if err != nil {
				return fmt.Errorf("failed to create profiler: %w", err)
			}
			desc, err := profiler.Profile(ctx)
			if err != nil {
				return fmt.Errorf("failed to profile collection: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(desc)
			}
			printDescriptor(out, desc)
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "print the descriptor as JSON")
	cmd.Flags().Int("sample-size", 0, "documents to sample (defaults to SCHEMA_SAMPLE_SIZE)")

	return cmd
}

func printDescriptor(w io.Writer, desc schema.Descriptor) {
	if desc.Empty() {
		fmt.Fprintln(w, "No fields found; the collection is empty.")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"Field", "Type", "Null\n(%)", "Examples", "Source Column"})
	for _, name := range desc.Fields() {
		info := desc[name]
		examples := strings.Join(info.Examples, ", ")
		if len(examples) > 60 {
			examples = examples[:57] + "..."
		}
		table.Append([]string{
			name,
			info.Type,
			fmt.Sprintf("%.1f", info.NullPercentage),
			examples,
			info.SourceColumn,
		})
	}
	table.Render()
}
