// Package errors provides structured error handling for chatrepair.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (session files, store file, backups)
//   - 3XX: Store access errors (locks, transactions)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryStore indicates store locking and transaction errors.
	CategoryStore Category = "STORE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the store's run must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeScanFailed    = "ERR_201_SCAN_FAILED"
	ErrCodeParseFailed   = "ERR_202_PARSE_FAILED"
	ErrCodeStoreNotFound = "ERR_203_STORE_NOT_FOUND"
	ErrCodeBackupFailed  = "ERR_204_BACKUP_FAILED"
	ErrCodeCorruptStore  = "ERR_205_CORRUPT_STORE"
	// 206 is retired.
	ErrCodeRecoverFailed = "ERR_207_RECOVER_FAILED"

	// Store errors (300-399)
	ErrCodeStoreLocked = "ERR_301_STORE_LOCKED"
	ErrCodeWriteFailed = "ERR_302_WRITE_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDuplicateRecord   = "ERR_402_DUPLICATE_RECORD"
	ErrCodeWorkspaceNotFound = "ERR_403_WORKSPACE_NOT_FOUND"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
	ErrCodeCanceled = "ERR_502_CANCELED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryStore
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeScanFailed, ErrCodeStoreNotFound, ErrCodeCorruptStore,
		ErrCodeStoreLocked, ErrCodeBackupFailed, ErrCodeWriteFailed:
		return SeverityFatal
	case ErrCodeParseFailed, ErrCodeDuplicateRecord, ErrCodeRecoverFailed:
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports whether rerunning after the user intervenes can succeed.
func isRetryableCode(code string) bool {
	return code == ErrCodeStoreLocked
}
