package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/malbeclabs/procurement-agent/internal/importer"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type ImportCmd struct{}

func NewImportCmd() *ImportCmd {
	return &ImportCmd{}
}

func (c *ImportCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import CSV_FILE",
		Short: "Import the purchase order CSV export into the collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchSize, err := cmd.Flags().GetInt("batch-size")
			if err != nil {
				return fmt.Errorf("failed to get batch-size flag: %w", err)
			}
			concurrency, err := cmd.Flags().GetInt("concurrency")
			if err != nil {
				return fmt.Errorf("failed to get concurrency flag: %w", err)
			}
			noClear, err := cmd.Flags().GetBool("no-clear")
			if err != nil {
				return fmt.Errorf("failed to get no-clear flag: %w", err)
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

			im, err := importer.New(importer.Config{
				Logger:      log,
				Writer:      db,
				BatchSize:   batchSize,
				Concurrency: concurrency,
				Clear:       !noClear,
			})
			if err != nil {
				return fmt.Errorf("failed to create importer: %w", err)
			}

			stats, err := im.ImportFile(ctx, args[0])
			if stats != nil {
				printImportStats(cmd.OutOrStdout(), stats)
			}
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			total, err := db.CountDocuments(ctx, nil)
			if err != nil {
				return fmt.Errorf("failed to count documents: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Collection %q now has %d documents.\n", cfg.MongoCollection, total)
			return nil
		},
	}

	cmd.Flags().Int("batch-size", importer.DefaultBatchSize, "documents per insert")
	cmd.Flags().Int("concurrency", importer.DefaultConcurrency, "concurrent insert batches")
	cmd.Flags().Bool("no-clear", false, "append to existing documents instead of replacing them")

	return cmd
}

func printImportStats(w io.Writer, stats *importer.Stats) {
	table := tablewriter.NewWriter(w)
	table.SetBorder(true)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Rows processed", fmt.Sprint(stats.Rows)})
	table.Append([]string{"Documents inserted", fmt.Sprint(stats.Inserted)})
	table.Append([]string{"Documents cleared", fmt.Sprint(stats.Cleared)})
	table.Append([]string{"Dates converted", fmt.Sprint(stats.DatesConverted)})
	table.Append([]string{"Prices converted", fmt.Sprint(stats.PricesConverted)})
	table.Append([]string{"Errors", fmt.Sprint(stats.Errors)})
	table.Render()
}
