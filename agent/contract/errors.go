package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	// ErrBackendUnavailable means neither the configured backend nor the
	// fallback backend could be constructed. It aborts the run.
	ErrBackendUnavailable = errors.New("model backend unavailable")
	ErrToolCall           = errors.New("tool call failed")
	ErrMemoryStore        = errors.New("memory store unavailable")

	// ErrStepLimit means the pipeline exceeded its configured step ceiling.
	// It aborts the run.
	ErrStepLimit = errors.New("pipeline step limit exceeded")
)

// IsFatal reports whether err must abort a pipeline run instead of being
// absorbed into an agent's result slot.
func IsFatal(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrStepLimit)
}
