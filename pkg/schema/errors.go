package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeRunawayGraph    = "RUNAWAY_GRAPH"
	ErrCodeDeadlock        = "DEADLOCK"
	ErrCodeHandlerFault    = "HANDLER_FAULT"
	ErrCodeUnknownType     = "UNKNOWN_TYPE"
	ErrCodeExpression      = "EXPRESSION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeCancelled       = "CANCELLED"
	ErrCodeStore           = "STORE_ERROR"
	ErrCodeSchedulerClosed = "SCHEDULER_CLOSED"
)

// ScriptError is the structured error type for all action script operations.
type ScriptError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	ActionID uint32         `json:"action_id,omitempty"`
	Cause    error          `json:"-"`
}

func (e *ScriptError) Error() string {
	if e.ActionID != 0 {
		return fmt.Sprintf("[%s] action %d: %s", e.Code, e.ActionID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ScriptError.
func NewError(code, message string) *ScriptError {
	return &ScriptError{Code: code, Message: message}
}

// NewErrorf creates a new ScriptError with a formatted message.
func NewErrorf(code, format string, args ...any) *ScriptError {
	return &ScriptError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithAction attaches an action node ID to the error.
func (e *ScriptError) WithAction(id uint32) *ScriptError {
	e.ActionID = id
	return e
}

// WithCause attaches an underlying cause.
func (e *ScriptError) WithCause(err error) *ScriptError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ScriptError) WithDetails(details map[string]any) *ScriptError {
	e.Details = details
	return e
}

// IsCode reports whether err wraps a *ScriptError carrying the given code.
func IsCode(err error, code string) bool {
	var se *ScriptError
	return errors.As(err, &se) && se.Code == code
}
