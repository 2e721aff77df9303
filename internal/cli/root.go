// Package cli implements the procurement-cli commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/procurement-agent/internal/config"
	"github.com/malbeclabs/procurement-agent/internal/dataset"
	"github.com/malbeclabs/procurement-agent/internal/logger"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func Run() ExitCode {
	if err := NewRootCmd().Execute(); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "procurement-cli",
		Short: "Ask questions about California state purchase orders.",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "set debug logging level")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().String("mongo-uri", "", "MongoDB connection URI (overrides MONGO_URI)")
	rootCmd.PersistentFlags().String("database", "", "database name (overrides MONGO_DATABASE)")
	rootCmd.PersistentFlags().String("collection", "", "collection name (overrides MONGO_COLLECTION)")

	rootCmd.AddCommand(
		NewAskCmd().Command(),
		NewSchemaCmd().Command(),
		NewImportCmd().Command(),
	)
	return rootCmd
}

// loadConfig reads the environment and applies the root flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	flags := cmd.Root().PersistentFlags()
	envFile, err := flags.GetString("env-file")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get env-file flag: %w", err)
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}

	overrides := map[string]*string{
		"mongo-uri":  &cfg.MongoURI,
		"database":   &cfg.MongoDatabase,
		"collection": &cfg.MongoCollection,
	}
	for name, target := range overrides {
		v, err := flags.GetString(name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		if v != "" {
			*target = v
		}
	}

	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	// Commands print results to stdout; logs go to stderr.
	log := logger.NewWithWriter(cmd.ErrOrStderr(), verbose || cfg.Verbose)
	return cfg, log, nil
}

func connect(ctx context.Context, log *slog.Logger, cfg *config.Config) (*dataset.Mongo, error) {
	return dataset.Connect(ctx, dataset.MongoConfig{
		Logger:         log,
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDatabase,
		Collection:     cfg.MongoCollection,
		ConnectTimeout: cfg.MongoTimeout,
	})
}

func closeDataset(log *slog.Logger, db *dataset.Mongo) {
	if err := db.Close(context.Background()); err != nil {
		log.Warn("failed to close mongo client", "error", err)
	}
}
