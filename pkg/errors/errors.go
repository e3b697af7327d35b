package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryTask           ErrorCategory = "task"
	CategoryNetwork        ErrorCategory = "network"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound     ErrorCode = "file_not_found"
	CodeFilePermission   ErrorCode = "file_permission"
	CodeFileUnclassified ErrorCode = "file_unclassified"
	CodeUnsupportedType  ErrorCode = "unsupported_type"
	CodeDecodeFailed     ErrorCode = "decode_failed"
	CodeDirectoryError   ErrorCode = "directory_error"

	// Parse errors
	CodeReadFailed    ErrorCode = "read_failed"
	CodeEmptyFile     ErrorCode = "empty_file"
	CodeEncodingError ErrorCode = "encoding_error"
	CodeInvalidFormat ErrorCode = "invalid_format"

	// Validation errors
	CodeSchemaInvalid     ErrorCode = "schema_invalid"
	CodeKeyRoleUnresolved ErrorCode = "key_role_unresolved"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Reconciliation errors
	CodeCleaningWarning ErrorCode = "cleaning_warning"
	CodeDuplicateKey    ErrorCode = "duplicate_key"
	CodePredicateError  ErrorCode = "predicate_error"
	CodeProcessingError ErrorCode = "processing_error"

	// Task errors
	CodeTaskNotFound   ErrorCode = "task_not_found"
	CodeTaskIncomplete ErrorCode = "task_incomplete"
	CodeTaskTimeout    ErrorCode = "task_timeout"
	CodeTaskQueueFull  ErrorCode = "task_queue_full"

	// Network errors
	CodeCallbackFailed   ErrorCode = "callback_failed"
	CodeConnectionFailed ErrorCode = "connection_failed"
	CodeTimeout          ErrorCode = "timeout"

	// Internal errors
	CodeUnexpectedError   ErrorCode = "unexpected_error"
	CodeResourceExhausted ErrorCode = "resource_exhausted"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryTask, CategoryInternal:
		return 5
	case CategoryNetwork:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileUnclassified:
		message = fmt.Sprintf("file matches no side's file patterns: %s", path)
		suggestion = "check the schema's file_pattern lists against the uploaded file names"
	case CodeUnsupportedType:
		message = fmt.Sprintf("unsupported file type: %s", path)
		suggestion = "upload one of the allowed extensions (.csv, .xlsx, .xls by default)"
	case CodeDecodeFailed:
		message = fmt.Sprintf("failed to decode file payload: %s", path)
		suggestion = "ensure the payload is valid base64 or plain text"
	case CodeDirectoryError:
		message = fmt.Sprintf("directory error: %s", path)
		suggestion = "ensure the directory exists and is accessible"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates a file-reading error
func ParseError(code ErrorCode, path string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeReadFailed:
		message = fmt.Sprintf("failed to read file: %s", path)
		suggestion = "verify the file is a readable CSV/TSV/TXT or XLSX document"
	case CodeEmptyFile:
		message = fmt.Sprintf("file has no data rows: %s", path)
		suggestion = "provide a file with a header row and at least one data row"
	case CodeEncodingError:
		message = fmt.Sprintf("could not detect a supported text encoding for file: %s", path)
		suggestion = "save the file as UTF-8, GB18030, GBK, GB2312 or Latin-1"
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format in file: %s", path)
		suggestion = "check the delimiter and quoting of the file"
	default:
		message = fmt.Sprintf("parse error in file: %s", path)
		suggestion = "check the file format and data integrity"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// SchemaError creates a schema-validation error
func SchemaError(detail string, err error) *ReconcilerError {
	message := fmt.Sprintf("invalid reconciliation schema: %s", detail)

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryValidation, CodeSchemaInvalid, message)
	} else {
		result = New(CategoryValidation, CodeSchemaInvalid, message)
	}

	return result.WithSuggestion("fix the schema and submit the task again")
}

// KeyRoleError creates an error for an unresolvable key role on a side
func KeyRoleError(side, keyRole string, headers []string) *ReconcilerError {
	message := fmt.Sprintf("key role %q cannot be resolved on side %q", keyRole, side)
	return New(CategoryValidation, CodeKeyRoleUnresolved, message).
		WithSuggestion("add an alias for the key role that matches one of the file's headers").
		WithContext("side", side).
		WithContext("key_role", keyRole).
		WithContext("headers", headers)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// ReconciliationError creates a reconciliation-related error
func ReconciliationError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeCleaningWarning:
		message = fmt.Sprintf("cleaning produced a degraded value during %s", operation)
		suggestion = "check the cleaning rules against the source data"
	case CodeDuplicateKey:
		message = fmt.Sprintf("duplicate key detected during %s", operation)
		suggestion = "add an aggregate_duplicates rule for this side"
	case CodePredicateError:
		message = fmt.Sprintf("validation rule failed to evaluate during %s", operation)
		suggestion = "check the rule's condition_expr against the data"
	case CodeProcessingError:
		message = fmt.Sprintf("processing error during %s", operation)
		suggestion = "check system resources and try again"
	default:
		message = fmt.Sprintf("reconciliation error during %s", operation)
		suggestion = "review the data and configuration"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryReconciliation, code, message)
	} else {
		result = New(CategoryReconciliation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// TaskError creates a task-lifecycle error
func TaskError(code ErrorCode, taskID string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeTaskNotFound:
		message = fmt.Sprintf("task not found: %s", taskID)
		suggestion = "check the task_id returned by reconciliation_start"
	case CodeTaskIncomplete:
		message = fmt.Sprintf("task has no result yet: %s", taskID)
		suggestion = "poll reconciliation_status until the task completes"
	case CodeTaskTimeout:
		message = fmt.Sprintf("task exceeded its time budget: %s", taskID)
		suggestion = "increase task_timeout_seconds or reduce the input size"
	case CodeTaskQueueFull:
		message = "task queue is full"
		suggestion = "wait for running tasks to finish and retry"
	default:
		message = fmt.Sprintf("task error: %s", taskID)
		suggestion = "check the task state and retry"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryTask, code, message)
	} else {
		result = New(CategoryTask, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("task_id", taskID)
}

// NetworkError creates a network-related error
func NetworkError(code ErrorCode, endpoint string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeCallbackFailed:
		message = fmt.Sprintf("callback delivery failed: %s", endpoint)
		suggestion = "check that the callback endpoint is reachable and returns 2xx"
	case CodeConnectionFailed:
		message = fmt.Sprintf("connection failed to %s", endpoint)
		suggestion = "check network connectivity and endpoint availability"
	case CodeTimeout:
		message = fmt.Sprintf("timeout connecting to %s", endpoint)
		suggestion = "increase timeout setting or check network speed"
	default:
		message = fmt.Sprintf("network error: %s", endpoint)
		suggestion = "check network connection and try again"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryNetwork, code, message)
	} else {
		result = New(CategoryNetwork, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("endpoint", endpoint)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeUnexpectedError:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	case CodeResourceExhausted:
		message = fmt.Sprintf("resource exhausted during %s", operation)
		suggestion = "try reducing batch size or increasing system resources"
	default:
		message = fmt.Sprintf("internal error during %s", operation)
		suggestion = "try again or contact support if the problem persists"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryInternal, code, message)
	} else {
		result = New(CategoryInternal, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// Utility functions

// IsReconcilerError checks if an error is a ReconcilerError
func IsReconcilerError(err error) bool {
	_, ok := err.(*ReconcilerError)
	return ok
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given error code anywhere in its chain
func HasCode(err error, code ErrorCode) bool {
	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr.Code == code
	}
	return false
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}
