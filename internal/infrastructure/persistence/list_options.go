package persistence

import (
	"strings"

	"github.com/subgov/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sortColumns whitelists the columns a list endpoint may order by. Anything
// else, including injection attempts, falls back to a fixed column.
type sortColumns struct {
	allowed  map[string]struct{}
	fallback string
}

func newSortColumns(fallback string, columns ...string) sortColumns {
	allowed := make(map[string]struct{}, len(columns)+1)
	allowed[fallback] = struct{}{}
	for _, c := range columns {
		allowed[c] = struct{}{}
	}
	return sortColumns{allowed: allowed, fallback: fallback}
}

// column returns requested when whitelisted. Matching is exact after trimming.
func (s sortColumns) column(requested string) string {
	if _, ok := s.allowed[strings.TrimSpace(requested)]; ok {
		return strings.TrimSpace(requested)
	}
	return s.fallback
}

// orderBy sorts descending unless dir is "asc"
func (s sortColumns) orderBy(field, dir string) clause.OrderByColumn {
	return clause.OrderByColumn{
		Column: clause.Column{Name: s.column(field)},
		Desc:   !strings.EqualFold(strings.TrimSpace(dir), "asc"),
	}
}

var (
	tenantSort = newSortColumns("created_at",
		"id", "updated_at", "code", "name", "status", "tier_code", "trial_ends_at", "current_period_end")
	transactionSort = newSortColumns("created_at",
		"id", "updated_at", "transaction_number", "type", "status", "amount", "paid_at")
	upgradeRequestSort = newSortColumns("created_at",
		"id", "updated_at", "request_number", "status", "amount", "expires_at")
	couponSort = newSortColumns("created_at",
		"id", "updated_at", "code", "valid_until", "redemption_count")
	usageAlertSort = newSortColumns("created_at",
		"id", "updated_at", "metric_type", "level", "percentage")
	redemptionSort = newSortColumns("redeemed_at",
		"id", "discount_amount")
)

// applyListOptions adds whitelisted ordering and paging to a list query
func applyListOptions(query *gorm.DB, filter shared.Filter, sort sortColumns) *gorm.DB {
	filter = filter.Normalize()
	return query.
		Order(sort.orderBy(filter.OrderBy, filter.OrderDir)).
		Offset(filter.Offset()).
		Limit(filter.PageSize)
}

// likePattern builds a case-insensitive substring pattern; callers compare
// against LOWER(column)
func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}
