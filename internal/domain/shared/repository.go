package shared

import "strings"

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Filter carries paging and ordering for list queries. Repositories
// whitelist OrderBy themselves.
type Filter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
}

// DefaultFilter is the first page of 20, newest first
func DefaultFilter() Filter {
	return Filter{Page: 1, PageSize: defaultPageSize, OrderBy: "created_at", OrderDir: "desc"}
}

// Normalize clamps paging into range and folds OrderDir to asc or desc
func (f Filter) Normalize() Filter {
	f.Page = max(f.Page, 1)
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	f.PageSize = min(f.PageSize, maxPageSize)
	if strings.EqualFold(strings.TrimSpace(f.OrderDir), "asc") {
		f.OrderDir = "asc"
	} else {
		f.OrderDir = "desc"
	}
	if f.OrderBy == "" {
		f.OrderBy = "created_at"
	}
	return f
}

// Offset returns the row offset of the current page
func (f Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Paginated is one page of a list result
type Paginated[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func NewPaginated[T any](items []T, total int64, page, pageSize int) Paginated[T] {
	p := Paginated[T]{Items: items, Total: total, Page: page, PageSize: pageSize}
	if pageSize > 0 {
		p.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return p
}
