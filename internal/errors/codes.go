// Package errors provides structured error handling for nichicrawl.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (fatal, raised before any network call)
//   - 2XX: IO errors (output files, range memory, locks)
//   - 3XX: Network errors (recovered per item)
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
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeNoTargets     = "ERR_101_NO_TARGETS"
	ErrCodeConfigInvalid = "ERR_102_CONFIG_INVALID"
	ErrCodeInputMissing  = "ERR_103_INPUT_MISSING"

	// IO errors (200-299)
	ErrCodeWriteFailed = "ERR_201_WRITE_FAILED"
	ErrCodeReadFailed  = "ERR_202_READ_FAILED"
	ErrCodeLockFailed  = "ERR_203_LOCK_FAILED"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeHTTPStatus         = "ERR_303_HTTP_STATUS"

	// Validation errors (400-499)
	ErrCodeInvalidIdentifier = "ERR_401_INVALID_IDENTIFIER"
	ErrCodeInvalidRange      = "ERR_402_INVALID_RANGE"
	ErrCodeUnexpectedContent = "ERR_403_UNEXPECTED_CONTENT"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "101" from "ERR_101_NO_TARGETS"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
// Config and write failures abort the run; everything else is per item.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig:
		return SeverityFatal
	case CategoryNetwork:
		return SeverityWarning
	}
	switch code {
	case ErrCodeWriteFailed, ErrCodeLockFailed:
		return SeverityFatal
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// A non-2xx status is not retried: the archive answers misses with 200.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable:
		return true
	default:
		return false
	}
}
