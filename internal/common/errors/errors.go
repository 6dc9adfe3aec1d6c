// Package errors provides the error taxonomy shared by the resolution pipeline
// and the job workers, plus its conversion to BPMN errors for Camunda.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Template integrity: always fatal for the whole run.
	ErrCodeSchema             ErrorCode = "SCHEMA_ERROR"
	ErrCodeDuplicateSKU       ErrorCode = "DUPLICATE_SKU"
	ErrCodeInconsistentParent ErrorCode = "INCONSISTENT_PARENT"

	// AI reply handling.
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeConsensusExhausted ErrorCode = "CONSENSUS_EXHAUSTED"
	ErrCodeAINetwork          ErrorCode = "AI_NETWORK_ERROR"

	// Selectable fields: fatal for the field only.
	ErrCodeNoEquivalentValue ErrorCode = "NO_EQUIVALENT_VALUE"
	ErrCodeNoPossibleValue   ErrorCode = "NO_POSSIBLE_VALUE"

	// Infrastructure.
	ErrCodeStore            ErrorCode = "STORE_ERROR"
	ErrCodeLedgerPersist    ErrorCode = "LEDGER_PERSIST_FAILED"
	ErrCodeInvalidJobInput  ErrorCode = "INVALID_JOB_INPUT"
	ErrCodeResolverConflict ErrorCode = "RESOLVER_CONFLICT"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error. Title and Message
// form the pair surfaced verbatim to operators.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata sets one metadata entry and returns the error for chaining.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, title, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Title:     title,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewSchemaError reports a missing sheet or required column.
func NewSchemaError(title, message string) *StandardError {
	return newError(ErrCodeSchema, title, message, "", false)
}

// NewDuplicateSKUError reports a SKU appearing twice in the source template.
func NewDuplicateSKUError(sku string) *StandardError {
	return newError(ErrCodeDuplicateSKU, "Duplicate SKU",
		fmt.Sprintf("SKU %q appears more than once in the source template", sku), "", false).
		WithMetadata("sku", sku)
}

// NewInconsistentParentError reports a broken parent/child relation.
func NewInconsistentParentError(sku, parent, reason string) *StandardError {
	return newError(ErrCodeInconsistentParent, "Inconsistent parent",
		fmt.Sprintf("SKU %q references parent %q: %s", sku, parent, reason), "", false).
		WithMetadata("sku", sku).
		WithMetadata("parent", parent)
}

// NewValidationError reports a reply rejected by its validator.
func NewValidationError(step, reason string) *StandardError {
	return newError(ErrCodeValidation, "Invalid AI reply",
		fmt.Sprintf("reply for %s rejected", step), reason, true)
}

// NewConsensusExhaustedError reports a step that ran out of retries.
func NewConsensusExhaustedError(step string, attempts int, reason string) *StandardError {
	return newError(ErrCodeConsensusExhausted, "No AI consensus",
		fmt.Sprintf("step %s exhausted %d attempts", step, attempts), reason, false).
		WithMetadata("step", step).
		WithMetadata("attempts", attempts)
}

// NewAINetworkError wraps a Completion Service failure.
func NewAINetworkError(err error) *StandardError {
	e := newError(ErrCodeAINetwork, "AI service unreachable", "completion request failed", err.Error(), true)
	e.cause = err
	return e
}

// NewNoEquivalentValueError reports a selectable value with no target counterpart.
func NewNoEquivalentValueError(field, value string) *StandardError {
	return newError(ErrCodeNoEquivalentValue, "No equivalent value",
		fmt.Sprintf("no equivalent for %q in field %s", value, field), "", false).
		WithMetadata("field", field)
}

// NewNoPossibleValueError reports a selectable field without allowed values.
func NewNoPossibleValueError(field, category string) *StandardError {
	return newError(ErrCodeNoPossibleValue, "No possible value",
		fmt.Sprintf("field %s has no possible values for category %q", field, category), "", false).
		WithMetadata("field", field)
}

// NewStoreError wraps a persistence failure.
func NewStoreError(op string, err error) *StandardError {
	e := newError(ErrCodeStore, "Store failure", fmt.Sprintf("store %s failed", op), err.Error(), true)
	e.cause = err
	return e
}

// NewLedgerPersistError wraps a failure saving the run ledger.
func NewLedgerPersistError(err error) *StandardError {
	e := newError(ErrCodeLedgerPersist, "Ledger not saved", "failure ledger could not be persisted", err.Error(), true)
	e.cause = err
	return e
}

// NewInvalidJobInputError reports malformed job variables.
func NewInvalidJobInputError(details string) *StandardError {
	return newError(ErrCodeInvalidJobInput, "Invalid job input", "job variables could not be used", details, false)
}

// NewResolverConflictError reports two resolvers claiming one field.
func NewResolverConflictError(field string, names ...string) *StandardError {
	return newError(ErrCodeResolverConflict, "Resolver conflict",
		fmt.Sprintf("field %s claimed by %s", field, strings.Join(names, ", ")), "", false)
}

// NewInternalError wraps anything unexpected.
func NewInternalError(err error) *StandardError {
	e := newError(ErrCodeInternal, "Unexpected error", "unexpected error", err.Error(), false)
	e.cause = err
	return e
}

// ==========================
// 4. Classification
// ==========================

// CodeOf extracts the code of the first StandardError in err's chain.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// AsStandard returns err as a StandardError, wrapping it when necessary.
func AsStandard(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// IsFatal reports errors that abort a whole run.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case ErrCodeSchema, ErrCodeDuplicateSKU, ErrCodeInconsistentParent, ErrCodeResolverConflict:
		return true
	}
	return false
}

// IsFieldFatal reports errors that leave one field unresolved but let the run continue.
func IsFieldFatal(err error) bool {
	switch CodeOf(err) {
	case ErrCodeNoEquivalentValue, ErrCodeNoPossibleValue, ErrCodeConsensusExhausted, ErrCodeAINetwork:
		return true
	}
	return false
}

// ==========================
// 5. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the number of Camunda job retries for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeAINetwork, ErrCodeStore, ErrCodeLedgerPersist:
		return 3
	case ErrCodeConsensusExhausted:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"errorTitle": stdErr.Title,
			"timestamp":  stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// GetErrorCategory groups codes for log dashboards.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeSchema, ErrCodeDuplicateSKU, ErrCodeInconsistentParent:
		return "TEMPLATE"
	case ErrCodeValidation, ErrCodeConsensusExhausted, ErrCodeAINetwork:
		return "AI"
	case ErrCodeNoEquivalentValue, ErrCodeNoPossibleValue:
		return "SELECTABLE"
	case ErrCodeStore, ErrCodeLedgerPersist:
		return "STORAGE"
	default:
		return "OTHER"
	}
}
