package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies supervisor failures so callers can decide between
// retrying, publishing a warning and halting.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeProcess      ErrorType = "process"
	ErrorTypeHealthCheck  ErrorType = "health_check"
	ErrorTypeConsistency  ErrorType = "consistency"
	ErrorTypeUnresponsive ErrorType = "unresponsive"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypePermission   ErrorType = "permission"
	ErrorTypeIO           ErrorType = "io"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeRPC          ErrorType = "rpc"
	ErrorTypeAuth         ErrorType = "auth"
	ErrorTypeParse        ErrorType = "parse"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeCancelled    ErrorType = "cancelled"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Validation errors
func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConflict, message, cause)
}

// Process errors
func NewProcessError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProcess, message, cause)
}

func NewParseError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeParse, message, cause)
}

// Health errors
func NewHealthCheckError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeHealthCheck, message, cause)
}

// NewConsistencyError reports two node reads that disagree with each other.
func NewConsistencyError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConsistency, message, cause)
}

// NewUnresponsiveError reports a node that did not answer a liveness probe.
func NewUnresponsiveError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeUnresponsive, message, cause)
}

// Remote errors
func NewRPCError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeRPC, message, cause)
}

func NewAuthError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeAuth, message, cause)
}

// System errors
func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

func NewPermissionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePermission, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewNetworkError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNetwork, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

// hasType reports whether any DomainError in err's chain has type t.
func hasType(err error, t ErrorType) bool {
	for err != nil {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			return false
		}
		if domainErr.Type == t {
			return true
		}
		err = domainErr.Cause
	}
	return false
}

// Error checking helpers
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

func IsProcessError(err error) bool {
	return hasType(err, ErrorTypeProcess)
}

func IsParseError(err error) bool {
	return hasType(err, ErrorTypeParse)
}

func IsHealthCheckError(err error) bool {
	return hasType(err, ErrorTypeHealthCheck)
}

func IsConsistencyError(err error) bool {
	return hasType(err, ErrorTypeConsistency)
}

func IsUnresponsiveError(err error) bool {
	return hasType(err, ErrorTypeUnresponsive)
}

func IsRPCError(err error) bool {
	return hasType(err, ErrorTypeRPC)
}

func IsAuthError(err error) bool {
	return hasType(err, ErrorTypeAuth)
}

func IsTimeoutError(err error) bool {
	return hasType(err, ErrorTypeTimeout)
}

func IsPermissionError(err error) bool {
	return hasType(err, ErrorTypePermission)
}

func IsIOError(err error) bool {
	return hasType(err, ErrorTypeIO)
}

func IsNetworkError(err error) bool {
	return hasType(err, ErrorTypeNetwork)
}

func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

func IsCancelledError(err error) bool {
	return hasType(err, ErrorTypeCancelled)
}

// Error aggregation for bulk operations
type ErrorCollection struct {
	Errors []error
}

func (e *ErrorCollection) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d errors occurred: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *ErrorCollection) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// Errorf formats a message into the collection.
func (e *ErrorCollection) Errorf(format string, args ...interface{}) {
	e.Errors = append(e.Errors, fmt.Errorf(format, args...))
}

func (e *ErrorCollection) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ErrorCollection) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// NewErrorCollection creates a new error collection
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors: make([]error, 0),
	}
}
