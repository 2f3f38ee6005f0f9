// Package errors defines the error type shared across package boundaries.
// Every error has a category (which picks the process exit code), a code,
// a message and a suggestion for the operator, plus structured context.
package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory groups errors by the layer that raised them
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryNotFound       ErrorCategory = "not_found"
	CategoryStorage        ErrorCategory = "storage"
	CategoryNetwork        ErrorCategory = "network"
	CategoryInternal       ErrorCategory = "internal"
)

// exitCodes maps categories onto process exit codes; unknown categories exit 1
var exitCodes = map[ErrorCategory]int{
	CategoryFile:           2,
	CategoryParse:          3,
	CategoryValidation:     3,
	CategoryConfiguration:  4,
	CategoryReconciliation: 5,
	CategoryInternal:       5,
	CategoryNetwork:        6,
	CategoryStorage:        6,
	CategoryNotFound:       7,
}

// ErrorCode identifies a specific failure within a category
type ErrorCode string

const (
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"

	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidData   ErrorCode = "invalid_data"

	CodeInvalidAmount      ErrorCode = "invalid_amount"
	CodeInvalidDate        ErrorCode = "invalid_date"
	CodeMissingField       ErrorCode = "missing_field"
	CodeAllocationExceeded ErrorCode = "allocation_exceeded"

	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	CodeVendorMismatch   ErrorCode = "vendor_mismatch"
	CodeDataInconsistent ErrorCode = "data_inconsistent"

	CodeRecordNotFound ErrorCode = "record_not_found"

	CodeQueryFailed ErrorCode = "query_failed"
	CodeWriteFailed ErrorCode = "write_failed"

	CodeConnectionFailed ErrorCode = "connection_failed"
	CodeTimeout          ErrorCode = "timeout"

	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// template is the operator facing text of one code. Messages use indexed
// verbs so each constructor can pass its full subject and a template picks
// what it needs.
type template struct {
	message    string
	suggestion string
}

var templates = map[ErrorCode]template{
	CodeFileNotFound: {"file not found: %[1]s",
		"check the path; files are resolved against the working directory"},
	CodeFilePermission: {"permission denied on %[1]s",
		"check the file and directory permissions"},
	CodeFileCorrupted: {"file could not be decoded: %[1]s",
		"check the file is UTF-8 and matches the fixture or CSV layout"},

	CodeInvalidFormat: {"invalid format in %[1]s at line %[2]d, column %[3]q: %[4]q",
		"check the value matches the layout's format"},
	CodeMissingColumn: {"missing required column %[3]q in %[1]s",
		"check the header row or choose another layout"},
	CodeInvalidData: {"invalid data in %[1]s at line %[2]d, column %[3]q: %[4]q",
		"correct the value or remove the row"},

	CodeInvalidAmount: {"invalid amount in %[1]s: %[2]v",
		"amounts are plain decimals such as 1250.50"},
	CodeInvalidDate: {"invalid date in %[1]s: %[2]v",
		"use YYYY-MM-DD"},
	CodeMissingField: {"%[1]s is required",
		"provide a value for it"},
	CodeAllocationExceeded: {"allocation exceeds the available balance for %[1]s: %[2]v",
		"keep allocations within both the transaction amount and the invoice outstanding"},

	CodeInvalidConfig: {"invalid configuration for %[1]s: %[2]v",
		"check the allowed values in the configuration reference"},
	CodeMissingConfig: {"missing required configuration: %[1]s",
		"set it with a flag, an AUDITFLOW_ variable or the config file"},
	CodeConfigConflict: {"conflicting configuration for %[1]s: %[2]v",
		"pick one of the conflicting settings"},

	CodeVendorMismatch: {"purchase order and invoice belong to different vendors during %[1]s",
		"reconcile the invoice against a purchase order of the same vendor"},
	CodeDataInconsistent: {"inconsistent data during %[1]s",
		"check the stored records for conflicting values"},

	CodeQueryFailed: {"query failed during %[1]s",
		"check database connectivity and migrations"},
	CodeWriteFailed: {"write failed during %[1]s",
		"check database connectivity and migrations"},

	CodeConnectionFailed: {"cannot connect to %[1]s",
		"check the endpoint address and network access"},
	CodeTimeout: {"timed out calling %[1]s",
		"raise the oracle timeout or check the service latency"},

	CodeUnexpectedError: {"unexpected error during %[1]s",
		"this is likely a bug; report it with the error details"},
}

// ReconcilerError is the error type returned across package boundaries
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context carries structured key/value details about an error
type Context map[string]interface{}

func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// Is matches on category and code so callers can test against sentinel values
// built with New.
func (e *ReconcilerError) Is(target error) bool {
	t, ok := target.(*ReconcilerError)
	return ok && e.Category == t.Category && e.Code == t.Code
}

// GetExitCode maps the error category onto a process exit code
func (e *ReconcilerError) GetExitCode() int {
	if code, ok := exitCodes[e.Category]; ok {
		return code
	}
	return 1
}

// WithContext attaches a key/value pair to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion replaces the hint for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// ContextKeys returns the context keys in sorted order
func (e *ReconcilerError) ContextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates a ReconcilerError with a captured stack
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps err with category and code. A nil err yields nil.
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

// fromTemplate builds an error from the code's template. Codes without a
// template get a generic message naming the category.
func fromTemplate(category ErrorCategory, code ErrorCode, err error, subject ...interface{}) *ReconcilerError {
	t, ok := templates[code]
	if !ok {
		t = template{
			message:    fmt.Sprintf("%s error: %%[1]v", strings.ReplaceAll(string(category), "_", " ")),
			suggestion: "check the input and try again",
		}
	}
	message := fmt.Sprintf(t.message, subject...)

	var e *ReconcilerError
	if err != nil {
		e = Wrap(err, category, code, message)
	} else {
		e = New(category, code, message)
	}
	return e.WithSuggestion(t.suggestion)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	return fromTemplate(CategoryFile, code, err, path).WithContext("file_path", path)
}

// ParseError creates an import error for a single CSV cell
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *ReconcilerError {
	return fromTemplate(CategoryParse, code, err, file, line, column, value).
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column).
		WithContext("value", value)
}

// ValidationError creates a validation error for a single field
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	return fromTemplate(CategoryValidation, code, err, field, value).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration error for a setting
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	return fromTemplate(CategoryConfiguration, code, err, setting, value).
		WithContext("setting", setting).
		WithContext("value", value)
}

// ReconciliationError creates an error raised while comparing records
func ReconciliationError(code ErrorCode, operation string, err error) *ReconcilerError {
	return fromTemplate(CategoryReconciliation, code, err, operation).WithContext("operation", operation)
}

// StorageError wraps a failure from the persistence layer
func StorageError(code ErrorCode, operation string, err error) *ReconcilerError {
	return fromTemplate(CategoryStorage, code, err, operation).WithContext("operation", operation)
}

// NetworkError creates an error for a remote dependency
func NetworkError(code ErrorCode, endpoint string, err error) *ReconcilerError {
	return fromTemplate(CategoryNetwork, code, err, endpoint).WithContext("endpoint", endpoint)
}

// InternalError creates an error for conditions that indicate a bug
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	return fromTemplate(CategoryInternal, code, err, operation).WithContext("operation", operation)
}

// NotFoundError reports a record that is absent or outside the requested organization
func NotFoundError(kind, id, orgID string) *ReconcilerError {
	return New(CategoryNotFound, CodeRecordNotFound,
		fmt.Sprintf("%s %s not found in organization %s", kind, id, orgID)).
		WithSuggestion("check the record id and the organization scope").
		WithContext("kind", kind).
		WithContext("id", id).
		WithContext("org_id", orgID)
}

// ErrorSummary aggregates the errors of a bulk operation
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*ReconcilerError    `json:"errors"`
	SampleErrors []*ReconcilerError    `json:"sample_errors,omitempty"`
}

const maxSampleErrors = 5

// NewErrorSummary counts errors by category and code
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     append([]*ReconcilerError{}, errs...),
	}
	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}
	summary.SampleErrors = summary.Errors
	if len(summary.SampleErrors) > maxSampleErrors {
		summary.SampleErrors = summary.SampleErrors[:maxSampleErrors]
	}
	return summary
}

func (es *ErrorSummary) Error() string {
	switch es.Total {
	case 0:
		return "no errors"
	case 1:
		return es.Errors[0].Error()
	}

	categories := make([]string, 0, len(es.ByCategory))
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	sort.Strings(categories)
	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory reports whether any error has the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// HasCode reports whether any error has the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// GetExitCode returns the highest exit code among the errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}
	highest := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > highest {
			highest = code
		}
	}
	return highest
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a record-not-found error
func IsNotFound(err error) bool {
	re, ok := AsReconcilerError(err)
	return ok && re.Category == CategoryNotFound
}

// HasCode reports whether err carries the given code anywhere in its chain
func HasCode(err error, code ErrorCode) bool {
	re, ok := AsReconcilerError(err)
	return ok && re.Code == code
}

// WrapIfNeeded wraps err unless it already is a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}
	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return Wrap(err, category, code, message)
}
