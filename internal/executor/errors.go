package executor

import "fmt"

// Validation failure reasons, used as metric labels.
const (
	ReasonUnsupportedOperation = "unsupported_operation"
	ReasonEmptyPipeline        = "empty_pipeline"
	ReasonStageNotObject       = "stage_not_object"
	ReasonStageKeyCount        = "stage_key_count"
	ReasonWriteStage           = "write_stage"
	ReasonInvalidArgument      = "invalid_argument"
)

// ValidationError reports a structured query that was rejected before any
// dataset call was made.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
