// Package agent answers natural language questions about the procurement
// dataset: prompt, forced tool call, parse, normalize, execute, narrate.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/procurement-agent/internal/dataset"
	"github.com/malbeclabs/procurement-agent/internal/executor"
	"github.com/malbeclabs/procurement-agent/internal/llm"
	"github.com/malbeclabs/procurement-agent/internal/metrics"
	"github.com/malbeclabs/procurement-agent/internal/narrator"
	"github.com/malbeclabs/procurement-agent/internal/prompts"
	"github.com/malbeclabs/procurement-agent/internal/query"
	"github.com/malbeclabs/procurement-agent/internal/schema"
)

const (
	msgEmptyQuestion  = "Please ask a question about the procurement data."
	msgNoQuery        = "I couldn't turn that question into a database query. Please try rephrasing it."
	msgInvalidQuery   = "The query generated for that question was not valid, so it was not run. Please try rephrasing it."
	msgExecutionError = "Something went wrong while querying the procurement data. Please try rephrasing your question or narrowing it down."
	msgInternalError  = "Something unexpected went wrong while answering that question."
)

var errEmptyQuestion = errors.New("question is empty")

type Config struct {
	Logger     *slog.Logger
	LLM        llm.Client
	Collection dataset.Collection
	Clock      clockwork.Clock

	// Schema skips profiling when set.
	Schema             schema.Descriptor
	SchemaSampleSize   int
	SchemaSnapshotPath string

	SummaryLimit int
	ExportLimit  int

	// Narrator replaces the model narrator. The deterministic fallback is
	// always kept behind it.
	Narrator narrator.Narrator
	// DisableFailureExplanation skips the model call that explains execution
	// failures and uses a fixed message.
	DisableFailureExplanation bool
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.LLM == nil {
		return fmt.Errorf("llm client is required")
	}
	if c.Collection == nil {
		return fmt.Errorf("collection is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Agent is safe for concurrent use; the schema and system prompt are fixed at
// construction.
type Agent struct {
	log   *slog.Logger
	cfg   Config
	clock clockwork.Clock

	schema        schema.Descriptor
	systemPrompt  string
	explainPrompt string
	executor      *executor.Executor
	narration     *narrator.Chain
}

// New profiles the collection once, unless a schema is supplied, and builds
// the system prompt from it. A profiling failure leaves the agent running
// with an empty schema.
func New(ctx context.Context, cfg Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	desc := cfg.Schema
	if desc == nil {
		profiler, err := schema.NewProfiler(schema.ProfilerConfig{
			Logger:       cfg.Logger,
			Collection:   cfg.Collection,
			Clock:        cfg.Clock,
			SampleSize:   cfg.SchemaSampleSize,
			SnapshotPath: cfg.SchemaSnapshotPath,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create profiler: %w", err)
		}
		desc, err = profiler.Profile(ctx)
		if err != nil {
			cfg.Logger.Error("agent: schema profiling failed, continuing without schema", "error", err)
			desc = schema.Descriptor{}
		}
	}

	exec, err := executor.New(executor.Config{
		Logger:       cfg.Logger,
		Collection:   cfg.Collection,
		SummaryLimit: cfg.SummaryLimit,
		ExportLimit:  cfg.ExportLimit,
		Schema:       desc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	primary := cfg.Narrator
	if primary == nil {
		primary, err = narrator.NewLLM(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to create narrator: %w", err)
		}
	}

	explainPrompt, err := prompts.Load(prompts.Explain)
	if err != nil {
		return nil, err
	}

	return &Agent{
		log:           cfg.Logger,
		cfg:           cfg,
		clock:         cfg.Clock,
		schema:        desc,
		systemPrompt:  query.BuildSystemMessage(desc),
		explainPrompt: explainPrompt,
		executor:      exec,
		narration:     narrator.WithFallback(cfg.Logger, primary, narrator.NewFallback()),
	}, nil
}

func (a *Agent) Schema() schema.Descriptor {
	return a.schema
}

// Ask answers one question. It never returns nil and never panics; failures
// are reported through Envelope.Success and Envelope.Error.
func (a *Agent) Ask(ctx context.Context, question string) (env *Envelope) {
	start := a.clock.Now()
	env = &Envelope{
		RequestID:       uuid.NewString(),
		Data:            []executor.Row{},
		CompleteResults: []executor.Row{},
		Stage:           StageBuilt,
	}
	log := a.log.With("requestID", env.RequestID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("agent: recovered panic", "stage", env.Stage, "panic", r)
			a.fail(env, env.Stage, msgInternalError, fmt.Errorf("internal error: %v", r))
		}
		duration := a.clock.Since(start)
		env.DurationMS = duration.Milliseconds()

		status := metrics.StatusSuccess
		if !env.Success {
			status = metrics.StatusError
		}
		metrics.AsksTotal.WithLabelValues(string(env.Stage), status).Inc()
		metrics.AskDuration.Observe(duration.Seconds())
		log.Info("agent: question answered",
			"success", env.Success,
			"stage", env.Stage,
			"count", env.Count,
			"total", env.TotalCount,
			"duration", duration,
			"error", env.Error)
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return a.fail(env, StageBuilt, msgEmptyQuestion, errEmptyQuestion)
	}

	env.Stage = StagePrompting
	log.Debug("agent: generating query", "question", question)
	raw, err := a.cfg.LLM.CallTool(ctx, a.systemPrompt, question, query.Contract())
	if err != nil {
		return a.fail(env, StagePrompting, msgNoQuery, err)
	}
	q, err := query.ParseStructuredQuery(raw)
	if err != nil {
		log.Info("agent: malformed tool arguments", "arguments", string(raw))
		return a.fail(env, StagePrompting, msgNoQuery, err)
	}

	env.Stage = StageParsed
	env.Query = q
	log.Debug("agent: query generated", "query", q.JSON())

	normalized := q.Normalized(log)
	env.Stage = StageNormalized

	res, err := a.executor.Execute(ctx, normalized)
	if err != nil {
		var verr *executor.ValidationError
		if errors.As(err, &verr) {
			return a.fail(env, StageExecuted, msgInvalidQuery, err)
		}
		return a.fail(env, StageExecuted, a.explain(ctx, question, q, err), err)
	}

	env.Stage = StageExecuted
	env.Data = res.Rows
	env.CompleteResults = res.CompleteRows
	env.Count = res.Count
	env.TotalCount = res.TotalCount

	env.Response, env.NarrationFallback = a.narration.Narrate(ctx, question, res)
	env.Stage = StageNarrated

	env.Success = true
	env.Stage = StageDone
	return env
}

func (a *Agent) fail(env *Envelope, stage Stage, response string, err error) *Envelope {
	env.Success = false
	env.Stage = stage
	env.Response = response
	env.Error = err.Error()
	return env
}

// explain asks the model for a short user-facing explanation of an execution
// failure, falling back to a fixed message.
func (a *Agent) explain(ctx context.Context, question string, q *query.StructuredQuery, cause error) (msg string) {
	if a.cfg.DisableFailureExplanation {
		return msgExecutionError
	}
	defer func() {
		if r := recover(); r != nil {
			a.log.Warn("agent: failure explanation panicked", "panic", r)
			msg = msgExecutionError
		}
	}()

	userPrompt := fmt.Sprintf("Question: %s\nQuery: %s\nError: %s", question, q.JSON(), cause)
	text, err := a.cfg.LLM.Complete(ctx, a.explainPrompt, userPrompt)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			a.log.Warn("agent: failed to explain execution error", "error", err)
		}
		return msgExecutionError
	}
	return strings.TrimSpace(text)
}
