package dto

import (
	"errors"
	"net/http"

	"github.com/subgov/backend/internal/domain/shared"
)

// Codes for failures raised by the HTTP layer itself
const (
	CodeInvalidJSON     = "INVALID_JSON"
	CodeInvalidParam    = "INVALID_PARAMETER"
	CodeValidation      = "VALIDATION_FAILED"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeTokenExpired    = "TOKEN_EXPIRED"
	CodeTokenRevoked    = "TOKEN_REVOKED"
	CodeForbidden       = "FORBIDDEN"
	CodeRateLimited     = "RATE_LIMITED"
	CodeRequestTooLarge = "REQUEST_TOO_LARGE"
	CodeInternal        = "INTERNAL_ERROR"
	CodeUnavailable     = "SERVICE_UNAVAILABLE"
)

var kindStatus = map[shared.ErrorKind]int{
	shared.KindValidation:            http.StatusUnprocessableEntity,
	shared.KindNotFound:              http.StatusNotFound,
	shared.KindInvalidTransition:     http.StatusConflict,
	shared.KindLimitExceeded:         http.StatusTooManyRequests,
	shared.KindCouponInvalid:         http.StatusUnprocessableEntity,
	shared.KindCouponAlreadyRedeemed: http.StatusConflict,
	shared.KindConcurrencyConflict:   http.StatusConflict,
	shared.KindAtomicityFailure:      http.StatusInternalServerError,
	shared.KindUnauthorized:          http.StatusUnauthorized,
	shared.KindForbidden:             http.StatusForbidden,
	shared.KindAlreadyExists:         http.StatusConflict,
	shared.KindInternal:              http.StatusInternalServerError,
}

// StatusForKind maps an error kind to its HTTP status
func StatusForKind(kind shared.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError renders err for the wire. Non-domain errors and atomicity
// failures collapse to a generic message so internals never reach clients.
func FromError(err error) (int, ErrorInfo) {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, ErrorInfo{
			Kind:    string(shared.KindInternal),
			Code:    CodeInternal,
			Message: "An unexpected error occurred",
		}
	}
	info := ErrorInfo{
		Kind:    string(de.Kind),
		Code:    de.Code,
		Message: de.Message,
		Details: de.Details,
	}
	if de.Kind == shared.KindAtomicityFailure {
		info.Message = "The operation failed and no changes were made"
		info.Details = nil
	}
	return StatusForKind(de.Kind), info
}
