package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/procurement-agent/internal/agent"
	"github.com/malbeclabs/procurement-agent/internal/config"
	"github.com/malbeclabs/procurement-agent/internal/dataset"
	"github.com/malbeclabs/procurement-agent/internal/llm"
	"github.com/malbeclabs/procurement-agent/internal/logger"
	"github.com/malbeclabs/procurement-agent/internal/mcp/server"
	"github.com/malbeclabs/procurement-agent/internal/metrics"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFileFlag := flag.String("env-file", ".env", "dotenv file to load before reading the environment")
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", "", "HTTP server listen address (overrides LISTEN_ADDR)")
	metricsAddrFlag := flag.String("metrics-addr", "", "Address to listen on for prometheus metrics (overrides METRICS_ADDR)")
	flag.Parse()

	cfg, err := config.Load(*envFileFlag)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *listenAddrFlag != "" {
		cfg.ListenAddr = *listenAddrFlag
	}
	if *metricsAddrFlag != "" {
		cfg.MetricsAddr = *metricsAddrFlag
	}

	log := logger.New(*verboseFlag || cfg.Verbose)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigCh
		log.Info("server: received signal", "signal", sig.String())
		cancel()
	}()

	var metricsServerErrCh = make(chan error, 1)
	if cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
				return
			}
		}()
	}

	// Auth can be explicitly disabled with MCP_AUTH_DISABLED=true
	var allowedTokens []string
	if os.Getenv("MCP_AUTH_DISABLED") == "true" {
		log.Info("mcp server: authentication explicitly disabled")
	} else if tokensEnv := os.Getenv("MCP_ALLOWED_TOKENS"); tokensEnv != "" {
		for token := range strings.SplitSeq(tokensEnv, ",") {
			token = strings.TrimSpace(token)
			if token != "" {
				allowedTokens = append(allowedTokens, token)
			}
		}
		log.Info("mcp server: token authentication enabled", "token_count", len(allowedTokens))
	} else {
		log.Info("mcp server: authentication disabled (no tokens configured)")
	}

	db, err := dataset.Connect(ctx, dataset.MongoConfig{
		Logger:         log,
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDatabase,
		Collection:     cfg.MongoCollection,
		ConnectTimeout: cfg.MongoTimeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(context.Background()); err != nil {
			log.Error("failed to close mongo client", "error", err)
		}
	}()

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
	log.Info("agent: ready", "fields", len(a.Schema()), "model", cfg.Model)

	srv, err := server.New(ctx, server.Config{
		Logger:        log,
		Agent:         a,
		Pinger:        db,
		Version:       version,
		ListenAddr:    cfg.ListenAddr,
		AllowedTokens: allowedTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.Run(ctx); err != nil {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("server: shutting down", "reason", ctx.Err())
		return nil
	case err := <-serverErrCh:
		log.Error("server: server error causing shutdown", "error", err)
		return err
	case err := <-metricsServerErrCh:
		log.Error("server: metrics server error causing shutdown", "error", err)
		return err
	}
}
