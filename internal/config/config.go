// Package config loads procurement agent settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DefaultSummaryLimit     = 100
	DefaultExportLimit      = 10_000
	DefaultSchemaSampleSize = 100
)

type Config struct {
	MongoURI        string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017/"`
	MongoDatabase   string        `env:"MONGO_DATABASE" envDefault:"procurement_db"`
	MongoCollection string        `env:"MONGO_COLLECTION" envDefault:"purchase_orders"`
	MongoTimeout    time.Duration `env:"MONGO_TIMEOUT" envDefault:"10s"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	Model           string `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-5"`
	MaxTokens       int64  `env:"ANTHROPIC_MAX_TOKENS" envDefault:"2048"`
	LLMMaxRetries   uint   `env:"ANTHROPIC_MAX_RETRIES" envDefault:"3"`

	SummaryLimit       int    `env:"QUERY_SUMMARY_LIMIT" envDefault:"100"`
	ExportLimit        int    `env:"QUERY_EXPORT_LIMIT" envDefault:"10000"`
	SchemaSampleSize   int    `env:"SCHEMA_SAMPLE_SIZE" envDefault:"100"`
	SchemaSnapshotPath string `env:"SCHEMA_SNAPSHOT_PATH" envDefault:"schema_snapshot.json"`

	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":2112"`
	Verbose     bool   `env:"VERBOSE" envDefault:"false"`
}

// Load reads an optional dotenv file, then parses the process environment.
// A missing dotenv file is not an error.
func Load(dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", dotenvPath, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("mongo uri is required")
	}
	if c.MongoDatabase == "" || c.MongoCollection == "" {
		return fmt.Errorf("mongo database and collection are required")
	}
	if c.SummaryLimit <= 0 {
		return fmt.Errorf("summary limit must be positive, got %d", c.SummaryLimit)
	}
	if c.ExportLimit < c.SummaryLimit {
		return fmt.Errorf("export limit (%d) must be at least the summary limit (%d)", c.ExportLimit, c.SummaryLimit)
	}
	if c.SchemaSampleSize <= 0 {
		return fmt.Errorf("schema sample size must be positive, got %d", c.SchemaSampleSize)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}
