// Package errors provides the unified error type and factory functions for
// TaxFlow. Every layer (domain, application, infrastructure, interfaces) uses
// AppError as the single carrier for structured error information so that HTTP
// responses, audit entries and metrics agree on the failure category.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// AppError
// ─────────────────────────────────────────────────────────────────────────────

// AppError is the single structured error type used throughout TaxFlow. It
// supports errors.Is / errors.As through Unwrap.
//
//	return errors.New(errors.ErrCodeInvalidTransition, "SUBMITTED -> DRAFT not allowed")
//	return errors.Wrap(err, errors.CodeDatabaseError, "failed to load submission")
type AppError struct {
	Code    ErrorCode
	Message string

	// Detail carries supplementary context (entity ids, offending values).
	Detail string

	Cause error

	// Stack is captured by the factories and never rendered by Error().
	Stack string
}

// Error renders "[<code>] <message>: <detail>"; the detail segment is omitted
// when empty.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Kind returns the caller-facing category of the error.
func (e *AppError) Kind() Kind {
	return KindOfCode(e.Code)
}

// WithDetail returns a shallow copy of the receiver with Detail set.
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of the receiver with Cause set.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// ─────────────────────────────────────────────────────────────────────────────
// Factories
// ─────────────────────────────────────────────────────────────────────────────

// New constructs a fresh AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Stack: captureStack(1)}
}

// Newf is New with a format string.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Stack: captureStack(1)}
}

// Wrap constructs an AppError around err. It returns nil when err is nil so it
// can be used inline. With CodeUnknown the code of a wrapped AppError is kept.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == CodeUnknown {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		} else {
			code = CodeInternal
		}
	}
	return &AppError{Code: code, Message: message, Cause: err, Stack: captureStack(1)}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error-chain inspection
// ─────────────────────────────────────────────────────────────────────────────

// IsCode reports whether any error in err's chain is an *AppError with code.
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsKind reports whether any AppError in err's chain belongs to kind.
func IsKind(err error, kind Kind) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && ae.Kind() == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsNotFound reports whether err's chain carries a NotFound-kind AppError.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsConflict reports whether err's chain carries a Conflict-kind AppError.
func IsConflict(err error) bool { return IsKind(err, KindConflict) }

// GetCode extracts the ErrorCode from the first *AppError in err's chain.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// KindOf returns the kind of the outermost AppError in err's chain, or
// KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind()
	}
	return KindInternal
}

// Payload is the structured {kind, message} shape returned to callers.
type Payload struct {
	Kind    Kind      `json:"kind"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message"`
}

// ToPayload converts any error into a Payload. Foreign errors become Internal
// with their message preserved.
func ToPayload(err error) *Payload {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		msg := ae.Message
		if ae.Detail != "" {
			msg = msg + ": " + ae.Detail
		}
		return &Payload{Kind: ae.Kind(), Code: ae.Code, Message: msg}
	}
	return &Payload{Kind: KindInternal, Code: CodeInternal, Message: err.Error()}
}

// ─────────────────────────────────────────────────────────────────────────────
// Convenience factories
// ─────────────────────────────────────────────────────────────────────────────

func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Stack: captureStack(1)}
}

func InvalidParam(message string) *AppError {
	return &AppError{Code: CodeInvalidParam, Message: message, Stack: captureStack(1)}
}

// InvalidTransition reports a state-machine edge that does not exist.
func InvalidTransition(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidTransition, Message: message, Stack: captureStack(1)}
}

// ValidationFailed reports a blocking plausibility issue.
func ValidationFailed(message string) *AppError {
	return &AppError{Code: ErrCodeNotReadyForFiling, Message: message, Stack: captureStack(1)}
}

func Unauthorized(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message, Stack: captureStack(1)}
}

func Forbidden(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message, Stack: captureStack(1)}
}

// ExternalService reports a failing collaborator (reasoning, notification,
// object storage).
func ExternalService(message string) *AppError {
	return &AppError{Code: ErrCodeExternalService, Message: message, Stack: captureStack(1)}
}

func Internal(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Stack: captureStack(1)}
}

func Conflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message, Stack: captureStack(1)}
}
