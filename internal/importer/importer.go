// Package importer loads the purchase order CSV export into the dataset with
// typed columns converted to native values.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"github.com/malbeclabs/procurement-agent/internal/dataset"
	"github.com/malbeclabs/procurement-agent/internal/metrics"
	"github.com/malbeclabs/procurement-agent/internal/schema"
)

const (
	DefaultBatchSize   = 1000
	DefaultConcurrency = 4
)

type Config struct {
	Logger *slog.Logger
	Writer dataset.Writer

	// Columns defaults to the embedded glossary mapping.
	Columns     []schema.Column
	BatchSize   int
	Concurrency int
	// Clear deletes existing documents before importing.
	Clear bool
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Writer == nil {
		return fmt.Errorf("writer is required")
	}
	if c.Columns == nil {
		c.Columns = schema.Columns()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return nil
}

// Stats summarizes an import.
type Stats struct {
	Rows            int      `json:"rows"`
	Inserted        int      `json:"inserted"`
	Cleared         int64    `json:"cleared"`
	DatesConverted  int      `json:"dates_converted"`
	PricesConverted int      `json:"prices_converted"`
	Errors          int      `json:"errors"`
	MissingColumns  []string `json:"missing_columns,omitempty"`
}

type Importer struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Importer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Importer{log: cfg.Logger, cfg: cfg}, nil
}

func (im *Importer) ImportFile(ctx context.Context, path string) (*Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// Import reads a CSV with a header row and inserts the converted documents in
// batches. Rows the CSV reader cannot parse, stray quotes included, are
// counted and skipped. The first failed batch stops the import; documents
// already written stay written.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Stats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		index[strings.TrimSpace(name)] = i
	}

	stats := &Stats{}
	for _, c := range im.cfg.Columns {
		if _, ok := index[c.Name]; !ok {
			stats.MissingColumns = append(stats.MissingColumns, c.Name)
		}
	}
	if len(stats.MissingColumns) == len(im.cfg.Columns) {
		return nil, fmt.Errorf("csv header has none of the expected columns")
	}
	if len(stats.MissingColumns) > 0 {
		im.log.Warn("importer: csv is missing columns, storing them as null", "columns", stats.MissingColumns)
	}

	if im.cfg.Clear {
		n, err := im.cfg.Writer.DeleteAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to clear collection: %w", err)
		}
		stats.Cleared = n
		im.log.Info("importer: cleared collection", "deleted", n)
	}

	pool := pond.NewPool(im.cfg.Concurrency)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	// Cancelled by the caller or by the first failed batch.
	groupCtx := group.Context()

	var inserted atomic.Int64
	submit := func(batch []any) {
		group.SubmitErr(func() error {
			n, err := im.cfg.Writer.InsertMany(groupCtx, batch)
			inserted.Add(int64(n))
			metrics.ImportedDocumentsTotal.WithLabelValues(metrics.StatusSuccess).Add(float64(n))
			if err != nil {
				metrics.ImportedDocumentsTotal.WithLabelValues(metrics.StatusError).Add(float64(len(batch) - n))
				return fmt.Errorf("failed to insert batch: %w", err)
			}
			return nil
		})
	}

	batch := make([]any, 0, im.cfg.BatchSize)
	for groupCtx.Err() == nil {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Errors++
				im.log.Warn("importer: skipping unreadable row", "line", perr.StartLine, "error", err)
				continue
			}
			_ = group.Wait()
			return stats, fmt.Errorf("failed to read csv: %w", err)
		}

		doc, st := convertRow(im.cfg.Columns, index, record)
		stats.Rows++
		if st.date {
			stats.DatesConverted++
		}
		if st.price {
			stats.PricesConverted++
		}

		batch = append(batch, doc)
		if len(batch) == im.cfg.BatchSize {
			submit(batch)
			batch = make([]any, 0, im.cfg.BatchSize)
			im.log.Debug("importer: batch submitted", "rows", stats.Rows)
		}
	}
	if len(batch) > 0 && groupCtx.Err() == nil {
		submit(batch)
	}

	err = group.Wait()
	stats.Inserted = int(inserted.Load())
	if err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	im.log.Info("importer: import complete",
		"rows", stats.Rows,
		"inserted", stats.Inserted,
		"datesConverted", stats.DatesConverted,
		"pricesConverted", stats.PricesConverted,
		"errors", stats.Errors)
	return stats, nil
}
