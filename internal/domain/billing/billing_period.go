package billing

import (
	"time"

	"github.com/subgov/backend/internal/domain/shared"
)

// BillingPeriod is the length of one paid subscription cycle
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// AllBillingPeriods returns the supported billing periods
func AllBillingPeriods() []BillingPeriod {
	return []BillingPeriod{BillingPeriodMonthly, BillingPeriodYearly}
}

// IsValid returns true if the billing period is supported
func (p BillingPeriod) IsValid() bool {
	return p == BillingPeriodMonthly || p == BillingPeriodYearly
}

// String returns the string representation of BillingPeriod
func (p BillingPeriod) String() string {
	return string(p)
}

// Months returns the number of months in one cycle
func (p BillingPeriod) Months() int {
	if p == BillingPeriodYearly {
		return 12
	}
	return 1
}

// AddTo returns the end of a cycle that starts at t
func (p BillingPeriod) AddTo(t time.Time) time.Time {
	return t.AddDate(0, p.Months(), 0)
}

// ParseBillingPeriod parses a string into a BillingPeriod
func ParseBillingPeriod(s string) (BillingPeriod, error) {
	p := BillingPeriod(s)
	if !p.IsValid() {
		return "", shared.NewValidationError("INVALID_BILLING_PERIOD", "Billing period must be monthly or yearly")
	}
	return p, nil
}

// MeteringPeriodStart returns the first instant of the calendar month containing t (UTC).
// Quota periods are aligned to calendar months.
func MeteringPeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
