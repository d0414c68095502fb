package errors

import (
	stderrors "errors"
	"fmt"
)

// RepairError is the structured error type for chatrepair.
// It provides rich context for error handling, logging, and user presentation.
type RepairError struct {
	// Code is the unique error code (e.g., "ERR_301_STORE_LOCKED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Store, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates the operation can succeed on a later run.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *RepairError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RepairError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RepairError.
func (e *RepairError) Is(target error) bool {
	if t, ok := target.(*RepairError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RepairError) WithDetail(key, value string) *RepairError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *RepairError) WithSuggestion(suggestion string) *RepairError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RepairError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RepairError {
	return &RepairError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RepairError from an existing error.
// The error's message becomes the RepairError message.
func Wrap(code string, err error) *RepairError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RepairError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RepairError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RepairError {
	return New(ErrCodeInternal, message, cause)
}

// ScanError reports a record directory that cannot be listed.
func ScanError(dir string, cause error) *RepairError {
	return New(ErrCodeScanFailed, fmt.Sprintf("cannot list session directory %s", dir), cause).
		WithDetail("dir", dir)
}

// ParseError reports a record file that cannot be read or parsed.
func ParseError(path string, cause error) *RepairError {
	msg := fmt.Sprintf("cannot parse session file %s", path)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return New(ErrCodeParseFailed, msg, cause).WithDetail("path", path)
}

// ConflictWarning reports several record files that map to one identity.
func ConflictWarning(id, kept string, discarded []string) *RepairError {
	e := New(ErrCodeDuplicateRecord,
		fmt.Sprintf("session %s has %d duplicate file(s); keeping newest %s", id, len(discarded), kept), nil)
	e.WithDetail("id", id).WithDetail("kept", kept)
	for i, d := range discarded {
		e.WithDetail(fmt.Sprintf("discarded_%d", i), d)
	}
	return e
}

// LockError reports a store held by another process.
func LockError(path string, cause error) *RepairError {
	return New(ErrCodeStoreLocked, fmt.Sprintf("store %s is locked by another process", path), cause).
		WithDetail("store", path).
		WithSuggestion("Close VS Code completely and run chatrepair again")
}

// BackupError reports a backup that could not be created or verified.
func BackupError(path string, cause error) *RepairError {
	msg := fmt.Sprintf("cannot back up store %s", path)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return New(ErrCodeBackupFailed, msg, cause).
		WithDetail("store", path).
		WithSuggestion("Check free disk space and write permission next to the store")
}

// WriteError reports an index transaction that could not be committed.
func WriteError(path string, cause error) *RepairError {
	msg := fmt.Sprintf("cannot write index to store %s", path)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return New(ErrCodeWriteFailed, msg, cause).WithDetail("store", path)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var re *RepairError
	if stderrors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current store's run.
func IsFatal(err error) bool {
	var re *RepairError
	if stderrors.As(err, &re) {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a RepairError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var re *RepairError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a RepairError anywhere in the chain.
func GetCategory(err error) Category {
	var re *RepairError
	if stderrors.As(err, &re) {
		return re.Category
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}
