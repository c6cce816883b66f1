package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a DomainError for callers that need to branch on it
// (HTTP status mapping, retry decisions). Code stays the fine-grained reason.
type ErrorKind string

const (
	KindValidation            ErrorKind = "VALIDATION_ERROR"
	KindNotFound              ErrorKind = "NOT_FOUND"
	KindInvalidTransition     ErrorKind = "INVALID_TRANSITION"
	KindLimitExceeded         ErrorKind = "LIMIT_EXCEEDED"
	KindCouponInvalid         ErrorKind = "COUPON_INVALID"
	KindCouponAlreadyRedeemed ErrorKind = "COUPON_ALREADY_REDEEMED"
	KindConcurrencyConflict   ErrorKind = "CONCURRENCY_CONFLICT"
	KindAtomicityFailure      ErrorKind = "ATOMICITY_FAILURE"
	KindUnauthorized          ErrorKind = "UNAUTHORIZED"
	KindForbidden             ErrorKind = "FORBIDDEN"
	KindAlreadyExists         ErrorKind = "ALREADY_EXISTS"
	KindInternal              ErrorKind = "INTERNAL_ERROR"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind      `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the wrapped cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches another DomainError by code, so sentinel comparisons keep working
// after an error has been re-created with extra details.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithDetail returns a copy of the error carrying an extra detail entry
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Wrap returns a copy of the error that wraps cause
func (e *DomainError) Wrap(cause error) *DomainError {
	cp := *e
	cp.cause = cause
	return &cp
}

// NewDomainError creates a new domain error. The kind is derived from the code
// when the code is itself a kind, otherwise it defaults to a validation error.
func NewDomainError(code, message string) *DomainError {
	kind := ErrorKind(code)
	switch kind {
	case KindValidation, KindNotFound, KindInvalidTransition, KindLimitExceeded,
		KindCouponInvalid, KindCouponAlreadyRedeemed, KindConcurrencyConflict,
		KindAtomicityFailure, KindUnauthorized, KindForbidden, KindAlreadyExists, KindInternal:
	default:
		kind = KindValidation
	}
	return &DomainError{Kind: kind, Code: code, Message: message}
}

func newKindError(kind ErrorKind, code, message string) *DomainError {
	if code == "" {
		code = string(kind)
	}
	return &DomainError{Kind: kind, Code: code, Message: message}
}

// NewValidationError reports malformed input detected before any write
func NewValidationError(code, message string) *DomainError {
	return newKindError(KindValidation, code, message)
}

// NewNotFoundError reports an absent entity
func NewNotFoundError(code, message string) *DomainError {
	return newKindError(KindNotFound, code, message)
}

// NewInvalidTransitionError reports a state machine violation
func NewInvalidTransitionError(entity, from, action string) *DomainError {
	return newKindError(KindInvalidTransition, "INVALID_TRANSITION",
		fmt.Sprintf("Cannot %s %s in status %s", action, entity, from)).
		WithDetail("status", from).
		WithDetail("action", action)
}

// NewLimitExceededError reports a hard quota stop
func NewLimitExceededError(message string) *DomainError {
	return newKindError(KindLimitExceeded, "LIMIT_EXCEEDED", message)
}

// NewCouponInvalidError reports a coupon that failed validation; code carries the reason
func NewCouponInvalidError(code, message string) *DomainError {
	return newKindError(KindCouponInvalid, code, message)
}

// NewConcurrencyConflictError reports a lost race
func NewConcurrencyConflictError(message string) *DomainError {
	return newKindError(KindConcurrencyConflict, "CONCURRENCY_CONFLICT", message)
}

// NewAtomicityFailure reports a compound operation that was rolled back
func NewAtomicityFailure(operation string, cause error) *DomainError {
	return newKindError(KindAtomicityFailure, "ATOMICITY_FAILURE",
		fmt.Sprintf("%s failed and was rolled back", operation)).Wrap(cause)
}

// KindOf returns the kind of err, or KindInternal for non-domain errors
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a DomainError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Kind == kind
}

// Common domain errors
var (
	ErrNotFound              = newKindError(KindNotFound, "NOT_FOUND", "Resource not found")
	ErrAlreadyExists         = newKindError(KindAlreadyExists, "ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput          = newKindError(KindValidation, "INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict   = newKindError(KindConcurrencyConflict, "CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrUnauthorized          = newKindError(KindUnauthorized, "UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden             = newKindError(KindForbidden, "FORBIDDEN", "Access to this resource is forbidden")
	ErrQuotaNotFound         = newKindError(KindNotFound, "QUOTA_NOT_FOUND", "No quota is provisioned for this metric")
	ErrCouponAlreadyRedeemed = newKindError(KindCouponAlreadyRedeemed, "COUPON_ALREADY_REDEEMED", "Coupon has already been redeemed by this tenant")
)
