package action

import (
	"errors"
	"fmt"
)

// Code classifies a dispatch failure.
type Code string

const (
	CodeSystemNotFound  Code = "SYSTEM_NOT_FOUND"
	CodeActionNotFound  Code = "ACTION_NOT_FOUND"
	CodeInputValidation Code = "INPUT_VALIDATION"
	CodeActionExecution Code = "ACTION_EXECUTION"
	CodeConfiguration   Code = "CONFIGURATION"
)

// Error is a classified dispatch or registration error.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// SystemNotFoundError reports a system with no registered actions.
func SystemNotFoundError(system string) *Error {
	return &Error{Code: CodeSystemNotFound, Message: fmt.Sprintf("System '%s' not found", system)}
}

// ActionNotFoundError reports an unknown action within a known system.
func ActionNotFoundError(system, name string) *Error {
	return &Error{
		Code:    CodeActionNotFound,
		Message: fmt.Sprintf("Action '%s' not found for system '%s'", name, system),
	}
}

// ConfigurationError reports a registration-time problem. Fatal at startup.
func ConfigurationError(format string, args ...any) *Error {
	return &Error{Code: CodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// InputValidationError wraps a contract validation failure.
func InputValidationError(err error, details any) *Error {
	return &Error{Code: CodeInputValidation, Message: err.Error(), Details: details, Err: err}
}

// ExecutionError wraps an error raised by a handler or formatter, keeping its message.
func ExecutionError(err error) *Error {
	return &Error{Code: CodeActionExecution, Message: err.Error(), Err: err}
}

// CodeOf returns the classification of err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is classified as code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound reports whether err is a system or action lookup miss.
func IsNotFound(err error) bool {
	code := CodeOf(err)
	return code == CodeSystemNotFound || code == CodeActionNotFound
}
