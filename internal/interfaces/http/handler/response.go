package handler

import "github.com/subgov/backend/internal/interfaces/http/dto"

// APIResponse documents the success envelope with a typed data field. Lists
// carry paging in meta.
//
//	@Description	Success envelope
type APIResponse[T any] struct {
	Success bool      `json:"success" example:"true"`
	Data    T         `json:"data,omitempty"`
	Meta    *dto.Meta `json:"meta,omitempty"`
}

// ErrorResponse documents the failure envelope. kind is stable across
// releases; code narrows it down.
//
//	@Description	Failure envelope
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error"`
}

// CountData reports how many records a batch admin action touched
type CountData struct {
	Count int64 `json:"count" example:"3"`
}
