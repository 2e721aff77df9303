package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/procurement-agent/internal/agent"
	"github.com/malbeclabs/procurement-agent/internal/dataset"
	"github.com/malbeclabs/procurement-agent/internal/schema"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

// Asker is the question answering surface the tools expose.
type Asker interface {
	Ask(ctx context.Context, question string) *agent.Envelope
	Schema() schema.Descriptor
}

type Config struct {
	Logger *slog.Logger
	Agent  Asker
	// Pinger backs /readyz. Without one the server is always ready.
	Pinger dataset.Pinger

	Version           string
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	AllowedTokens     []string // Bearer tokens allowed for MCP endpoint authentication
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Agent == nil {
		return fmt.Errorf("agent is required")
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
