package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared across services.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("resource conflict")
	ErrValidation   = errors.New("validation error")
)

// Machine-readable error codes returned in API responses. Clients branch on
// these rather than parsing messages.
const (
	CodeValidation         = "validation_error"
	CodeNotFound           = "not_found"
	CodeInvalidTransition  = "invalid_transition"
	CodePreconditionFailed = "precondition_failed"
	CodeConflict           = "conflict"
	CodeImmutableRecord    = "immutable_record"
	CodeNoEligibleFunds    = "no_eligible_funds"
	CodeAuthorization      = "authorization_error"
	CodeInternal           = "internal_error"
)

// AppError is a typed application error carrying an HTTP status and a stable
// error code alongside the human-readable message.
type AppError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError flags malformed or out-of-range input. Nothing has been
// mutated when this is returned.
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:      http.StatusBadRequest,
		ErrorCode: CodeValidation,
		Message:   message,
		Err:       ErrValidation,
	}
}

// NewNotFoundError flags a missing booking/earning/payout.
func NewNotFoundError(message string, err error) *AppError {
	return &AppError{
		Code:      http.StatusNotFound,
		ErrorCode: CodeNotFound,
		Message:   message,
		Err:       err,
	}
}

// NewInvalidTransitionError reports an illegal state change, naming the
// current and attempted states for diagnostics.
func NewInvalidTransitionError(entity, from, to string) *AppError {
	return &AppError{
		Code:      http.StatusConflict,
		ErrorCode: CodeInvalidTransition,
		Message:   fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
	}
}

// NewPreconditionFailedError reports a legal state with a missing companion
// field (e.g. starting a trip before a driver is assigned).
func NewPreconditionFailedError(message string) *AppError {
	return &AppError{
		Code:      http.StatusPreconditionFailed,
		ErrorCode: CodePreconditionFailed,
		Message:   message,
	}
}

// NewConflictError reports a uniqueness or overlap violation.
func NewConflictError(message string) *AppError {
	return &AppError{
		Code:      http.StatusConflict,
		ErrorCode: CodeConflict,
		Message:   message,
		Err:       ErrConflict,
	}
}

// NewImmutableRecordError reports an attempted mutation of a settled record.
func NewImmutableRecordError(message string) *AppError {
	return &AppError{
		Code:      http.StatusConflict,
		ErrorCode: CodeImmutableRecord,
		Message:   message,
	}
}

// NewNoEligibleFundsError reports a payout request that selected nothing.
func NewNoEligibleFundsError(message string) *AppError {
	return &AppError{
		Code:      http.StatusUnprocessableEntity,
		ErrorCode: CodeNoEligibleFunds,
		Message:   message,
	}
}

// NewAuthorizationError reports a caller lacking the role or partner scope.
func NewAuthorizationError(message string) *AppError {
	return &AppError{
		Code:      http.StatusForbidden,
		ErrorCode: CodeAuthorization,
		Message:   message,
		Err:       ErrForbidden,
	}
}

// NewUnauthorizedError reports a missing or invalid identity.
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:      http.StatusUnauthorized,
		ErrorCode: CodeAuthorization,
		Message:   message,
		Err:       ErrUnauthorized,
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:      http.StatusInternalServerError,
		ErrorCode: CodeInternal,
		Message:   message,
		Err:       err,
	}
}
