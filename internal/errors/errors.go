package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound      ErrCode = "NOT_FOUND"
	ErrCodeUnauthorized  ErrCode = "UNAUTHORIZED"
	ErrCodeQuotaExceeded ErrCode = "QUOTA_EXCEEDED"
	ErrCodeFatal         ErrCode = "FATAL"
	ErrCodeExhausted     ErrCode = "EXHAUSTED"
	ErrCodeInternal      ErrCode = "INTERNAL_ERROR"
	ErrCodeBadRequest    ErrCode = "BAD_REQUEST"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// QuotaExceededError reports that the hourly request budget is spent. It
// carries the server-reported state and the resolved wait until reset so
// callers can either pause or surface an actionable message.
type QuotaExceededError struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Wait      time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("GitHub API rate limit exceeded (%d/%d remaining), resets at %s (wait %s)",
		e.Remaining, e.Limit, e.ResetAt.Format("2006-01-02 15:04:05"), e.Wait.Round(time.Second))
}

// FatalError is a non-retryable API failure such as a plain 403 or 404.
type FatalError struct {
	StatusCode int
	Message    string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("API request failed: %d - %s", e.StatusCode, e.Message)
}

// ExhaustedError means a call failed with transient errors on every attempt.
// It preserves the last underlying cause for diagnostics.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsQuotaExceeded checks if the error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// IsFatal checks if the error is a non-retryable API failure
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsExhausted checks if the error is a retry exhaustion
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == ErrCodeNotFound
	}
	var fe *FatalError
	return errors.As(err, &fe) && fe.StatusCode == 404
}

// AsQuotaExceeded extracts a QuotaExceededError from the chain, if any.
func AsQuotaExceeded(err error) (*QuotaExceededError, bool) {
	var qe *QuotaExceededError
	ok := errors.As(err, &qe)
	return qe, ok
}
