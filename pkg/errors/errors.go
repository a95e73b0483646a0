package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Environment errors (1xxx)
	ErrCodeEnvironmentNotFound  ErrorCode = "NPE1001"
	ErrCodeDuplicateEnvironment ErrorCode = "NPE1002"
	ErrCodeDuplicateBranch      ErrorCode = "NPE1003"
	ErrCodeNoCurrentEnvironment ErrorCode = "NPE1004"

	// Promotion errors (2xxx)
	ErrCodePromotionNotFound  ErrorCode = "NPE2001"
	ErrCodeInvalidState       ErrorCode = "NPE2002"
	ErrCodePathNotAllowed     ErrorCode = "NPE2003"
	ErrCodeHierarchyViolation ErrorCode = "NPE2004"
	ErrCodePromotionFailed    ErrorCode = "NPE2005"

	// Conflict errors (3xxx)
	ErrCodeMergeConflict      ErrorCode = "NPE3001"
	ErrCodeResolutionFailed   ErrorCode = "NPE3002"
	ErrCodePolicyNotFound     ErrorCode = "NPE3003"
	ErrCodeUnsupportedPattern ErrorCode = "NPE3004"

	// Repository errors (4xxx)
	ErrCodeRepoNotFound         ErrorCode = "NPE4001"
	ErrCodeBranchNotFound       ErrorCode = "NPE4002"
	ErrCodeCheckoutFailed       ErrorCode = "NPE4003"
	ErrCodeFetchFailed          ErrorCode = "NPE4004"
	ErrCodeCommitFailed         ErrorCode = "NPE4005"
	ErrCodeProtectedBranch      ErrorCode = "NPE4006"
	ErrCodeAuthenticationFailed ErrorCode = "NPE4007"

	// File system errors (5xxx)
	ErrCodeFileNotFound   ErrorCode = "NPE5001"
	ErrCodeFilePermission ErrorCode = "NPE5002"
	ErrCodeFileOperation  ErrorCode = "NPE5003"

	// Validation errors (6xxx)
	ErrCodeValidationFailed ErrorCode = "NPE6001"
	ErrCodeInvalidInput     ErrorCode = "NPE6002"
	ErrCodeRequiredField    ErrorCode = "NPE6003"

	// Configuration errors (7xxx)
	ErrCodeConfigInvalid  ErrorCode = "NPE7001"
	ErrCodeConfigNotFound ErrorCode = "NPE7002"

	// System errors (9xxx)
	ErrCodeInternal ErrorCode = "NPE9001"
	ErrCodeStorage  ErrorCode = "NPE9002"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // System failure, requires immediate attention
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, but system continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// Carry context from a wrapped AppError
	var inner *AppError
	if errors.As(err, &inner) {
		for k, v := range inner.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// NotFound creates a not-found error for the given kind of record
func NotFound(code ErrorCode, kind, name string) *AppError {
	return New(code, fmt.Sprintf("%s '%s' not found", kind, name)).
		WithContext(kind, name)
}

// InvalidState creates an error for a refused state transition
func InvalidState(id, from, to string) *AppError {
	return New(ErrCodeInvalidState,
		fmt.Sprintf("promotion %s cannot move from %s to %s", id, from, to)).
		WithContext("promotion", id).
		WithContext("from", from).
		WithContext("to", to)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Refer to the configuration documentation",
		)
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning)
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// As is errors.As from the standard library
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is from the standard library
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// HasCode reports whether any AppError in err's chain carries code
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}
