// Package narrator turns execution results into a natural language answer,
// with a deterministic formatter behind the model call.
package narrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/procurement-agent/internal/executor"
	"github.com/malbeclabs/procurement-agent/internal/metrics"
)

// Narrator explains a result set in answer to a question.
type Narrator interface {
	Narrate(ctx context.Context, question string, res *executor.Result) (string, error)
}

// Chain tries the primary narrator and falls back to the deterministic
// formatter on any error, panic or empty answer.
type Chain struct {
	log      *slog.Logger
	primary  Narrator
	fallback *Fallback
}

func WithFallback(log *slog.Logger, primary Narrator, fallback *Fallback) *Chain {
	if fallback == nil {
		fallback = NewFallback()
	}
	return &Chain{log: log, primary: primary, fallback: fallback}
}

// Narrate always returns a non-empty answer. fellBack reports whether the
// deterministic formatter produced it.
func (c *Chain) Narrate(ctx context.Context, question string, res *executor.Result) (text string, fellBack bool) {
	if c.primary != nil {
		text, err := c.tryPrimary(ctx, question, res)
		if err == nil && text != "" {
			return text, false
		}
		if err == nil {
			err = fmt.Errorf("empty narration")
		}
		c.log.Warn("narrator: primary narration failed, using fallback", "error", err)
	}
	metrics.NarrationFallbacksTotal.Inc()
	return c.fallback.Format(res), true
}

func (c *Chain) tryPrimary(ctx context.Context, question string, res *executor.Result) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("narrator panicked: %v", r)
		}
	}()
	return c.primary.Narrate(ctx, question, res)
}
