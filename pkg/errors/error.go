// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Invalid configuration and parameter overrides
//   - Data errors (200-299): Missing market data, query failures
//   - Strategy errors (400-499): Strategy lookup, initialization, and runtime errors
//   - Backtest errors (600-699): Simulation engine and run state errors
//   - Callback errors (800-899): Callback execution failures
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidParameter, "invalid parameter value")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeUnknownParameter, "parameter %q is not declared", name)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeStrategyExecution, "strategy raised during HandleData", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeNoData) { ... }
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// NoDataError represents an error when the data source returned no bars for
// the requested symbol, timeframe and date range. It is fatal to the run that
// requested the data and must not affect sibling runs.
type NoDataError struct {
	Symbol    string
	Timeframe string
	Start     time.Time
	End       time.Time
}

// NewNoDataError creates a new NoDataError for the given request.
func NewNoDataError(symbol, timeframe string, start, end time.Time) *NoDataError {
	return &NoDataError{
		Symbol:    symbol,
		Timeframe: timeframe,
		Start:     start,
		End:       end,
	}
}

// Error implements the error interface.
func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data for %s %s between %s and %s",
		e.Symbol, e.Timeframe, e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"))
}

// IsNoDataError checks if an error is a NoDataError.
// It uses errors.As to check the error chain.
func IsNoDataError(err error) bool {
	var noDataErr *NoDataError

	return errors.As(err, &noDataErr)
}
