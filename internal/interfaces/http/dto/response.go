package dto

import "github.com/subgov/backend/internal/domain/shared"

// Response is the envelope every endpoint returns
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo describes a failed request. Kind is the machine-readable class,
// Code the specific reason within it.
type ErrorInfo struct {
	Kind      string             `json:"kind" example:"COUPON_INVALID"`
	Code      string             `json:"code" example:"COUPON_EXPIRED"`
	Message   string             `json:"message" example:"Coupon has expired"`
	Details   map[string]any     `json:"details,omitempty"`
	Fields    []ValidationDetail `json:"fields,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
}

// ValidationDetail is one rejected request field
type ValidationDetail struct {
	Field   string `json:"field" example:"billing_period"`
	Message string `json:"message" example:"Must be one of: monthly yearly"`
}

// Meta carries pagination for list responses
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewSuccessResponse wraps data
func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

// NewPageResponse unpacks a page into items plus meta
func NewPageResponse[T any](page *shared.Paginated[T]) Response {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	return Response{
		Success: true,
		Data:    items,
		Meta: &Meta{
			Total:      page.Total,
			Page:       page.Page,
			PageSize:   page.PageSize,
			TotalPages: page.TotalPages,
		},
	}
}

// NewErrorResponse builds a failure envelope
func NewErrorResponse(info ErrorInfo) Response {
	return Response{Success: false, Error: &info}
}
