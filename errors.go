package strata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeConfiguration marks fail-fast startup errors: bad table graphs,
	// malformed plans, missing physical names.
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeRequest marks errors caused by an unsatisfiable combination of
	// metrics, grains or field names in a request.
	ErrorTypeRequest  ErrorType = "request"
	ErrorTypeNotFound ErrorType = "not_found"
	ErrorTypeInternal ErrorType = "internal"
)

// StrataError is the unified error returned by the federation core.
type StrataError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Table   string         `json:"table,omitempty"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *StrataError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s]", e.Type, e.Code)
	if e.Table != "" {
		fmt.Fprintf(&b, " table '%s':", e.Table)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field '%s':", e.Field)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *StrataError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to a StrataError
func (e *StrataError) WithDetail(key string, value any) *StrataError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to a StrataError
func (e *StrataError) WithCause(cause error) *StrataError {
	e.Cause = cause
	return e
}

// WithTable adds table context to a StrataError
func (e *StrataError) WithTable(table string) *StrataError {
	e.Table = table
	return e
}

// WithField adds field context to a StrataError
func (e *StrataError) WithField(field string) *StrataError {
	e.Field = field
	return e
}

// Error codes
const (
	// Configuration time
	ErrCodeDuplicateField            = "DUPLICATE_FIELD"
	ErrCodeUnresolvedTableDependency = "UNRESOLVED_TABLE_DEPENDENCY"
	ErrCodeTableBuildRefused         = "TABLE_BUILD_REFUSED"
	ErrCodeTableBuildFailed          = "TABLE_BUILD_FAILED"
	ErrCodeDuplicateMetric           = "DUPLICATE_METRIC"
	ErrCodeMissingMetric             = "MISSING_METRIC"
	ErrCodeMissingPhysicalName       = "MISSING_PHYSICAL_NAME"
	ErrCodeInvalidAggregation        = "INVALID_AGGREGATION"
	ErrCodeInvalidConfig             = "INVALID_CONFIG"

	// Request time
	ErrCodeTimeGrainConflict    = "TIME_GRAIN_CONFLICT"
	ErrCodeAggregationConflict  = "AGGREGATION_CONFLICT"
	ErrCodeFieldNotFound        = "FIELD_NOT_FOUND"
	ErrCodeFieldAlreadyExists   = "FIELD_ALREADY_EXISTS"
	ErrCodeInvalidTimeGrain     = "INVALID_TIME_GRAIN"
	ErrCodeEmptyMetricSelection = "EMPTY_METRIC_SELECTION"
	ErrCodeUnknownMetric        = "UNKNOWN_METRIC"
	ErrCodeUnknownTable         = "UNKNOWN_TABLE"

	// Collaborators
	ErrCodeMetadataUnavailable = "METADATA_UNAVAILABLE"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// NewStrataError creates a new StrataError
func NewStrataError(errorType ErrorType, code, message string) *StrataError {
	return &StrataError{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// ============================================================================
// Configuration error constructors
// ============================================================================

// NewDuplicateFieldError reports field names repeated within one plan level.
func NewDuplicateFieldError(names []string) *StrataError {
	return NewStrataError(ErrorTypeConfiguration, ErrCodeDuplicateField,
		fmt.Sprintf("duplicate field names in query plan level: %s", strings.Join(names, ", "))).
		WithDetail("fields", names)
}

// NewUnresolvedDependencyError reports a table that could not be found while
// resolving dependencies, either because it is unknown or because it is part of
// a cycle. path is the chain of tables walked to reach it.
func NewUnresolvedDependencyError(table string, path []string) *StrataError {
	msg := "unable to resolve physical table dependency"
	if len(path) > 0 {
		msg = fmt.Sprintf("%s (path: %s)", msg, strings.Join(path, " -> "))
	}
	return NewStrataError(ErrorTypeConfiguration, ErrCodeUnresolvedTableDependency, msg).
		WithTable(table).
		WithDetail("path", path)
}

// NewTableBuildRefusedError reports a definition whose build produced no table.
func NewTableBuildRefusedError(table string) *StrataError {
	return NewStrataError(ErrorTypeConfiguration, ErrCodeTableBuildRefused,
		"table definition did not produce a physical table").WithTable(table)
}

// NewTableBuildError wraps a build failure with the owning table's name.
func NewTableBuildError(table string, cause error) *StrataError {
	return NewStrataError(ErrorTypeConfiguration, ErrCodeTableBuildFailed,
		"failed to build physical table").WithTable(table).WithCause(cause)
}

// NewDuplicateMetricError reports metric columns found on more than one dependent table.
func NewDuplicateMetricError(table string, metrics []string) *StrataError {
	return NewStrataError(ErrorTypeConfiguration, ErrCodeDuplicateMetric,
		fmt.Sprintf("metrics provided by more than one dependent table: %s", strings.Join(metrics, ", "))).
		WithTable(table).
		WithDetail("metrics", metrics)
}

// NewMissingMetricError reports required metrics that no dependent table provides.
func NewMissingMetricError(table string, metrics []string) *StrataError {
	return NewStrataError(ErrorTypeConfiguration, ErrCodeMissingMetric,
		fmt.Sprintf("metrics not provided by any dependent table: %s", strings.Join(metrics, ", "))).
		WithTable(table).
		WithDetail("metrics", metrics)
}

// NewMissingPhysicalNameError reports a dimension config without a physical name.
func NewMissingPhysicalNameError(table, dimension string) *StrataError {
	return NewStrataError(ErrorTypeConfiguration, ErrCodeMissingPhysicalName,
		"dimension config has no physical name").WithTable(table).WithField(dimension)
}

// NewInvalidAggregationError reports an aggregation that cannot be constructed.
func NewInvalidAggregationError(name, message string) *StrataError {
	return NewStrataError(ErrorTypeConfiguration, ErrCodeInvalidAggregation, message).WithField(name)
}

// NewInvalidConfigError reports malformed catalog configuration.
func NewInvalidConfigError(source, message string) *StrataError {
	return NewStrataError(ErrorTypeConfiguration, ErrCodeInvalidConfig, message).WithDetail("source", source)
}

// ============================================================================
// Request error constructors
// ============================================================================

// NewTimeGrainConflictError reports two plans requiring different time grains.
func NewTimeGrainConflictError(a, b TimeGrain) *StrataError {
	return NewStrataError(ErrorTypeRequest, ErrCodeTimeGrainConflict,
		fmt.Sprintf("cannot merge time grains %s and %s", a, b)).
		WithDetail("grains", []string{string(a), string(b)})
}

// NewAggregationConflictError reports two different aggregations sharing a name.
func NewAggregationConflictError(name string) *StrataError {
	return NewStrataError(ErrorTypeRequest, ErrCodeAggregationConflict,
		"conflicting aggregations share the same name").WithField(name)
}

// NewFieldNotFoundError reports a missing field in a plan level.
func NewFieldNotFoundError(name string) *StrataError {
	return NewStrataError(ErrorTypeRequest, ErrCodeFieldNotFound, "field not found").WithField(name)
}

// NewFieldAlreadyExistsError reports a rename onto a name already in use.
func NewFieldAlreadyExistsError(name string) *StrataError {
	return NewStrataError(ErrorTypeRequest, ErrCodeFieldAlreadyExists, "field name already in use").WithField(name)
}

// NewInvalidTimeGrainError reports a nested plan whose outer grain is finer than its inner grain.
func NewInvalidTimeGrainError(outer, inner TimeGrain) *StrataError {
	return NewStrataError(ErrorTypeRequest, ErrCodeInvalidTimeGrain,
		fmt.Sprintf("outer time grain %s cannot be built from inner time grain %s", outer, inner))
}

// NewEmptyMetricSelectionError reports a metric selection yielding no plans.
func NewEmptyMetricSelectionError(metrics []string) *StrataError {
	return NewStrataError(ErrorTypeRequest, ErrCodeEmptyMetricSelection,
		fmt.Sprintf("metric selection [%s] produced no aggregation plan", strings.Join(metrics, ", ")))
}

// NewUnknownMetricError reports a metric name missing from the metric dictionary.
func NewUnknownMetricError(name string) *StrataError {
	return NewStrataError(ErrorTypeNotFound, ErrCodeUnknownMetric, "unknown metric").WithField(name)
}

// NewUnknownTableError reports a table name missing from a dictionary.
func NewUnknownTableError(name string) *StrataError {
	return NewStrataError(ErrorTypeNotFound, ErrCodeUnknownTable, "unknown table").WithTable(name)
}

// NewMetadataUnavailableError wraps a failing availability lookup.
func NewMetadataUnavailableError(table string, cause error) *StrataError {
	return NewStrataError(ErrorTypeInternal, ErrCodeMetadataUnavailable,
		"availability metadata unavailable").WithTable(table).WithCause(cause)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *StrataError {
	return NewStrataError(ErrorTypeInternal, ErrCodeInternalError, message).WithCause(cause)
}

// ============================================================================
// Classification helpers
// ============================================================================

// ErrorCode returns the code of the first StrataError in err's chain, or "".
func ErrorCode(err error) string {
	var se *StrataError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HasErrorCode reports whether any StrataError in err's chain carries code.
func HasErrorCode(err error, code string) bool {
	for err != nil {
		var se *StrataError
		if !errors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Cause
	}
	return false
}

// IsConfigurationError reports whether err is a fail-fast configuration error.
func IsConfigurationError(err error) bool {
	var se *StrataError
	return errors.As(err, &se) && se.Type == ErrorTypeConfiguration
}

// IsRequestError reports whether err was caused by an invalid request combination.
func IsRequestError(err error) bool {
	var se *StrataError
	return errors.As(err, &se) && se.Type == ErrorTypeRequest
}
