package agent

import (
	"github.com/malbeclabs/procurement-agent/internal/executor"
	"github.com/malbeclabs/procurement-agent/internal/query"
)

// Stage is a step of the question pipeline. An Envelope records the last
// stage reached, which for failures is the stage that failed.
type Stage string

const (
	StageBuilt      Stage = "built"
	StagePrompting  Stage = "prompting"
	StageParsed     Stage = "parsed"
	StageNormalized Stage = "normalized"
	StageExecuted   Stage = "executed"
	StageNarrated   Stage = "narrated"
	StageDone       Stage = "done"
)

// Envelope is the result of one question. Response is never empty.
type Envelope struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	// Data is the summary tier, CompleteResults the export tier.
	Data            []executor.Row `json:"data"`
	CompleteResults []executor.Row `json:"complete_results"`
	Count           int            `json:"count"`
	TotalCount      int64          `json:"total_count"`
	// Query is the structured query as generated, before date normalization.
	Query *query.StructuredQuery `json:"query,omitempty"`
	Error string                 `json:"error,omitempty"`

	Stage             Stage  `json:"stage"`
	NarrationFallback bool   `json:"narration_fallback,omitempty"`
	RequestID         string `json:"request_id"`
	DurationMS        int64  `json:"duration_ms"`
}
