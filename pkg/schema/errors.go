package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeGraph             = "GRAPH_ERROR"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeStageFailed       = "STAGE_FAILED"
	ErrCodeStageTimeout      = "STAGE_TIMEOUT"
	ErrCodeWorkflowTimeout   = "WORKFLOW_TIMEOUT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeDeadlock          = "DEADLOCK"
	ErrCodeInference         = "INFERENCE_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeCancelled         = "CANCELLED"
)

// Error is the structured error type for all maestro operations.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Stage   string         `json:"stage,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] stage %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStage attaches a stage name to the error.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}
