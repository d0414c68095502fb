package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with RepairError
	repairErr := New(ErrCodeParseFailed, "cannot parse a.json", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, repairErr)
	assert.Equal(t, originalErr, errors.Unwrap(repairErr))
	assert.True(t, errors.Is(repairErr, originalErr))
}

func TestRepairError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "scan error",
			code:     ErrCodeScanFailed,
			message:  "cannot list dir",
			expected: "[ERR_201_SCAN_FAILED] cannot list dir",
		},
		{
			name:     "lock error",
			code:     ErrCodeStoreLocked,
			message:  "store is locked",
			expected: "[ERR_301_STORE_LOCKED] store is locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestRepairError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with same code
	err1 := New(ErrCodeParseFailed, "a.json", nil)
	err2 := New(ErrCodeParseFailed, "b.json", nil)

	// Then: they match by code
	assert.True(t, errors.Is(err1, err2))
}

func TestRepairError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeParseFailed, "a.json", nil)
	err2 := New(ErrCodeConfigNotFound, "config not found", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestRepairError_WithDetails_AddsContext(t *testing.T) {
	// Given: a base error
	err := New(ErrCodeParseFailed, "cannot parse", nil)

	// When: adding details
	err = err.WithDetail("path", "/ws/chatSessions/a.json")
	err = err.WithDetail("line", "3")

	// Then: details are available
	assert.Equal(t, "/ws/chatSessions/a.json", err.Details["path"])
	assert.Equal(t, "3", err.Details["line"])
}

func TestRepairError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigNotFound, CategoryConfig},
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeScanFailed, CategoryIO},
		{ErrCodeBackupFailed, CategoryIO},
		{ErrCodeStoreLocked, CategoryStore},
		{ErrCodeWriteFailed, CategoryStore},
		{ErrCodeInvalidInput, CategoryValidation},
		{ErrCodeDuplicateRecord, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeCanceled, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestRepairError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeScanFailed, SeverityFatal},
		{ErrCodeStoreLocked, SeverityFatal},
		{ErrCodeBackupFailed, SeverityFatal},
		{ErrCodeWriteFailed, SeverityFatal},
		{ErrCodeParseFailed, SeverityWarning},
		{ErrCodeDuplicateRecord, SeverityWarning},
		{ErrCodeInvalidInput, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestWrap_CreatesRepairErrorFromError(t *testing.T) {
	originalErr := errors.New("something went wrong")

	repairErr := Wrap(ErrCodeInternal, originalErr)

	require.NotNil(t, repairErr)
	assert.Equal(t, ErrCodeInternal, repairErr.Code)
	assert.Equal(t, "something went wrong", repairErr.Message)
	assert.Equal(t, originalErr, repairErr.Cause)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestConfigError_CreatesConfigCategoryError(t *testing.T) {
	err := ConfigError("invalid yaml syntax", nil)

	assert.Equal(t, CategoryConfig, err.Category)
	assert.Contains(t, err.Code, "CONFIG")
}

func TestLockError_IsRetryableWithSuggestion(t *testing.T) {
	// When: creating a lock error
	err := LockError("/ws/state.vscdb", errors.New("database is locked"))

	// Then: it is fatal, retryable, and tells the user what to do
	assert.Equal(t, ErrCodeStoreLocked, err.Code)
	assert.True(t, err.Retryable)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Suggestion, "Close VS Code")
	assert.Equal(t, "/ws/state.vscdb", err.Details["store"])
}

func TestConflictWarning_RecordsKeptAndDiscarded(t *testing.T) {
	err := ConflictWarning("abc", "/d/abc.jsonl", []string{"/d/abc.json"})

	assert.Equal(t, SeverityWarning, err.Severity)
	assert.Equal(t, "abc", err.Details["id"])
	assert.Equal(t, "/d/abc.jsonl", err.Details["kept"])
	assert.Equal(t, "/d/abc.json", err.Details["discarded_0"])
	assert.False(t, IsFatal(err))
}

func TestParseError_IncludesPathAndCause(t *testing.T) {
	err := ParseError("/d/bad.json", errors.New("unexpected EOF"))

	assert.Contains(t, err.Message, "/d/bad.json")
	assert.Contains(t, err.Message, "unexpected EOF")
	assert.Equal(t, ErrCodeParseFailed, GetCode(err))
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"lock error", New(ErrCodeStoreLocked, "locked", nil), true},
		{"write error", New(ErrCodeWriteFailed, "failed", nil), false},
		{"wrapped lock error", fmt.Errorf("store a: %w", LockError("a", nil)), true},
		{"standard error", errors.New("standard error"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"corrupt store", New(ErrCodeCorruptStore, "corrupt", nil), true},
		{"backup failed", BackupError("/s", nil), true},
		{"parse warning", ParseError("/a.json", nil), false},
		{"wrapped fatal", fmt.Errorf("ctx: %w", WriteError("/s", nil)), true},
		{"standard error", errors.New("standard error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err))
		})
	}
}

func TestGetCode_FindsCodeThroughWrapping(t *testing.T) {
	// Given: a RepairError wrapped by fmt.Errorf
	err := fmt.Errorf("open store: %w", New(ErrCodeStoreNotFound, "missing", nil))

	// Then: code and category are still reachable
	assert.Equal(t, ErrCodeStoreNotFound, GetCode(err))
	assert.Equal(t, CategoryIO, GetCategory(err))
	assert.True(t, HasCode(err, ErrCodeStoreNotFound))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}
