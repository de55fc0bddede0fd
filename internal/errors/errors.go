package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
)

// CrawlError is the structured error type for nichicrawl.
// It provides rich context for error handling, logging, and user presentation.
type CrawlError struct {
	// Code is the unique error code (e.g., "ERR_301_NETWORK_TIMEOUT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *CrawlError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CrawlError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *CrawlError) Is(target error) bool {
	if t, ok := target.(*CrawlError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *CrawlError) WithDetail(key, value string) *CrawlError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *CrawlError) WithSuggestion(suggestion string) *CrawlError {
	e.Suggestion = suggestion
	return e
}

// New creates a new CrawlError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CrawlError {
	return &CrawlError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CrawlError from an existing error.
func Wrap(code string, err error) *CrawlError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *CrawlError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// WriteError creates an output persistence error.
func WriteError(message string, cause error) *CrawlError {
	return New(ErrCodeWriteFailed, message, cause)
}

// NetworkError classifies a transport failure. Timeouts (including context
// deadlines) map to ERR_301, everything else to ERR_302.
func NetworkError(message string, cause error) *CrawlError {
	var ne net.Error
	if stderrors.Is(cause, context.DeadlineExceeded) || (stderrors.As(cause, &ne) && ne.Timeout()) {
		return New(ErrCodeNetworkTimeout, message, cause)
	}
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// StatusError records a non-2xx answer from the remote archive.
func StatusError(url string, status int) *CrawlError {
	return New(ErrCodeHTTPStatus, fmt.Sprintf("unexpected status %d", status), nil).
		WithDetail("url", url).
		WithDetail("status", fmt.Sprint(status))
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *CrawlError {
	return New(ErrCodeInvalidIdentifier, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ce *CrawlError
	if stderrors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ce *CrawlError
	if stderrors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a CrawlError.
// Returns empty string if not a CrawlError.
func GetCode(err error) string {
	var ce *CrawlError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a CrawlError.
func GetCategory(err error) Category {
	var ce *CrawlError
	if stderrors.As(err, &ce) {
		return ce.Category
	}
	return ""
}
