package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeUnknownParameter     ErrorCode = 102
	ErrCodeMissingParameter     ErrorCode = 103
	ErrCodeInvalidRange         ErrorCode = 104
	ErrCodeInvalidTimeframe     ErrorCode = 105

	// Data errors (200-299)
	ErrCodeNoData                ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeQueryFailed           ErrorCode = 202

	// Strategy errors (400-499)
	ErrCodeStrategyNotFound       ErrorCode = 400
	ErrCodeStrategyInitialization ErrorCode = 401
	ErrCodeStrategyExecution      ErrorCode = 402
	ErrCodeStrategyAlreadyExists  ErrorCode = 403

	// Backtest errors (600-699)
	ErrCodeRunFailed        ErrorCode = 600
	ErrCodeRunCancelled     ErrorCode = 601
	ErrCodeRunAlreadyActive ErrorCode = 602
	ErrCodeStateClosed      ErrorCode = 603
	ErrCodeEmptyEquityCurve ErrorCode = 604

	// Callback errors (800-899)
	ErrCodeCallbackFailed ErrorCode = 800
)
