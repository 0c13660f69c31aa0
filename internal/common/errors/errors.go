// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
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
	ErrCodeParameterMissing   ErrorCode = "PARAMETER_MISSING"
	ErrCodeUnsupportedIntent  ErrorCode = "UNSUPPORTED_INTENT"
	ErrCodeQueryRejected      ErrorCode = "QUERY_REJECTED"
	ErrCodeModelUnavailable   ErrorCode = "MODEL_UNAVAILABLE"
	ErrCodePlanValidation     ErrorCode = "PLAN_VALIDATION_FAILED"
	ErrCodeKnowledgeSearch    ErrorCode = "KNOWLEDGE_SEARCH_FAILED"
	ErrCodeInvalidJobInput    ErrorCode = "INVALID_JOB_INPUT"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeDataAccessFailed   ErrorCode = "DATA_ACCESS_FAILED"
	ErrCodeQueryTimeout       ErrorCode = "QUERY_TIMEOUT"
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the cause set with WithCause so callers can keep
// branching on package sentinels.
func (e *StandardError) Unwrap() error { return e.cause }

// WithCause records the error this one reports.
func (e *StandardError) WithCause(err error) *StandardError {
	e.cause = err
	return e
}

// WithMetadata returns the error with one more metadata entry.
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

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewParameterMissingError reports a template intent without a usable parameter.
func NewParameterMissingError(intent, param string) *StandardError {
	return newError(ErrCodeParameterMissing, "Required query parameter missing",
		fmt.Sprintf("intent: %s, parameter: %s", intent, param), false)
}

// NewUnsupportedIntentError reports an intent that has no template.
func NewUnsupportedIntentError(intent string) *StandardError {
	return newError(ErrCodeUnsupportedIntent, "No template for intent",
		fmt.Sprintf("intent: %s", intent), false)
}

// NewQueryRejectedError reports a generated statement refused by the guard.
func NewQueryRejectedError(reason string) *StandardError {
	return newError(ErrCodeQueryRejected, "Could not build that query", reason, false)
}

// NewModelUnavailableError reports an exhausted or failing model backend.
func NewModelUnavailableError(details string) *StandardError {
	return newError(ErrCodeModelUnavailable, "Generative model unavailable", details, true)
}

// NewPlanValidationError reports a plan document that failed its schema.
func NewPlanValidationError(details string) *StandardError {
	return newError(ErrCodePlanValidation, "Plan failed structural validation", details, false)
}

// NewKnowledgeSearchError reports a failing knowledge index.
func NewKnowledgeSearchError(err error) *StandardError {
	return newError(ErrCodeKnowledgeSearch, "Knowledge search failed", err.Error(), true)
}

// NewInvalidJobInputError reports job variables that do not match the activity schema.
func NewInvalidJobInputError(details string) *StandardError {
	return newError(ErrCodeInvalidJobInput, "Invalid job input", details, false)
}

// NewDataAccessError reports an executor failure.
func NewDataAccessError(origin string, err error) *StandardError {
	return newError(ErrCodeDataAccessFailed, "Could not fetch data",
		fmt.Sprintf("origin: %s, error: %s", origin, err.Error()), true)
}

// NewQueryTimeoutError reports an executor deadline.
func NewQueryTimeoutError(origin string) *StandardError {
	return newError(ErrCodeQueryTimeout, "Database query timeout",
		fmt.Sprintf("origin: %s", origin), true)
}

// NewDatabaseConnectionError reports a store that cannot be reached.
func NewDatabaseConnectionError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnection, "Database connection error", err.Error(), true)
}

// NewInternalError wraps anything unexpected.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDataAccessFailed,
		ErrCodeDatabaseConnection,
		ErrCodeKnowledgeSearch:
		return 3

	case ErrCodeQueryTimeout:
		return 2

	case ErrCodeModelUnavailable:
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

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"errorCategory":     GetErrorCategory(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "PARAMETER") || strings.Contains(codeStr, "INTENT"):
		return "ROUTING"
	case strings.Contains(codeStr, "REJECTED"):
		return "POLICY"
	case strings.Contains(codeStr, "DATA") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "MODEL") || strings.Contains(codeStr, "PLAN"):
		return "AI"
	case strings.Contains(codeStr, "KNOWLEDGE"):
		return "SEARCH"
	case strings.Contains(codeStr, "INPUT"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
