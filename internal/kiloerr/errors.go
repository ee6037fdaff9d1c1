// Package kiloerr defines the runtime's error model: every error carries a
// stable machine code and a human message, and maps to an HTTP status at the
// API boundary.
package kiloerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error category.
type Code string

const (
	CodeDatabase           Code = "database"
	CodeSchemaCreation     Code = "schema_creation"
	CodeSkillValidation    Code = "skill_validation"
	CodeSkillNotFound      Code = "skill_not_found"
	CodeSkillLimitExceeded Code = "skill_limit_exceeded"
	CodeLLM                Code = "llm"
	CodeLLMTimeout         Code = "llm_timeout"
	CodeLLMAllFailed       Code = "llm_all_providers_failed"
	CodeBotNotFound        Code = "bot_not_found"
	CodeAuthRequired       Code = "auth_required"
	CodeNotAuthorized      Code = "not_authorized"
	CodeUsageTracking      Code = "usage_tracking"
	CodeCache              Code = "cache"
	CodeCredential         Code = "credential"
	CodeToolExecution      Code = "tool_execution"
	CodeToolNotFound       Code = "tool_not_found"
	CodeWebResearch        Code = "web_research"
	CodeInternal           Code = "internal_error"
)

// Error is the single error type crossing package boundaries in Kilo.
type Error struct {
	Code    Code
	Message string
	// Detail carries structured context (validation issues, failing stage,
	// provider name). It is serialized to API clients as-is.
	Detail map[string]any
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates cause with a code and message. A nil cause returns nil.
func Wrap(cause error, code Code, message string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetail attaches a structured detail field and returns the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// CodeOf extracts the machine code from any error chain. Unknown errors
// report CodeInternal.
func CodeOf(err error) Code {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error chain to the status the API layer must return.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeBotNotFound, CodeSkillNotFound, CodeToolNotFound:
		return http.StatusNotFound
	case CodeSkillValidation:
		return http.StatusUnprocessableEntity
	case CodeSkillLimitExceeded:
		return http.StatusForbidden
	case CodeAuthRequired:
		return http.StatusUnauthorized
	case CodeNotAuthorized:
		return http.StatusForbidden
	case CodeLLMTimeout:
		return http.StatusGatewayTimeout
	case CodeLLM, CodeLLMAllFailed:
		return http.StatusBadGateway
	case CodeCredential:
		return http.StatusBadRequest
	case CodeWebResearch, CodeToolExecution:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether the error chain carries the given code.
func Is(err error, code Code) bool {
	var ke *Error
	return errors.As(err, &ke) && ke.Code == code
}
