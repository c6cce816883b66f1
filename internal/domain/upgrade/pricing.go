package upgrade

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/shared"
)

// Direction says whether a tier change moves up or down the catalogue
type Direction string

const (
	DirectionUpgrade      Direction = "upgrade"
	DirectionDowngrade    Direction = "downgrade"
	DirectionPeriodChange Direction = "period_change"
)

// TransactionType maps the direction onto the ledger entry it produces
func (d Direction) TransactionType() ledger.TransactionType {
	switch d {
	case DirectionUpgrade:
		return ledger.TypeUpgrade
	case DirectionDowngrade:
		return ledger.TypeDowngrade
	default:
		return ledger.TypeSubscription
	}
}

// CurrentSubscription is what the tenant is paying for right now
type CurrentSubscription struct {
	Tier          *billing.Tier
	BillingPeriod billing.BillingPeriod
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
}

// Quote is the priced result of a tier change. Preview and request creation
// both go through Price so they always agree.
type Quote struct {
	CurrentTierCode string                `json:"current_tier_code"`
	TargetTierCode  string                `json:"target_tier_code"`
	BillingPeriod   billing.BillingPeriod `json:"billing_period"`
	Direction       Direction             `json:"direction"`
	ListPrice       int64                 `json:"list_price"`
	ProrationCredit int64                 `json:"proration_credit"`
	Amount          int64                 `json:"amount"`
	Currency        string                `json:"currency"`
	RemainingDays   int                   `json:"remaining_days"`
}

// Price computes the amount due to move from current to target. With prorate set,
// the unused share of the current paid period is credited, rounded down.
func Price(current CurrentSubscription, target *billing.Tier, period billing.BillingPeriod, prorate bool, now time.Time) (Quote, error) {
	if target == nil || !target.IsActive {
		return Quote{}, shared.NewValidationError("TIER_NOT_AVAILABLE", "Target tier is not available")
	}
	if !period.IsValid() {
		return Quote{}, shared.NewValidationError("INVALID_BILLING_PERIOD", "Billing period must be monthly or yearly")
	}
	if current.Tier == nil {
		return Quote{}, shared.NewValidationError("INVALID_CURRENT_TIER", "Current tier is unknown")
	}
	if current.Tier.Code == target.Code && current.BillingPeriod == period {
		return Quote{}, shared.NewValidationError("SAME_TIER", "Tenant is already on this tier and billing period")
	}

	q := Quote{
		CurrentTierCode: current.Tier.Code,
		TargetTierCode:  target.Code,
		BillingPeriod:   period,
		ListPrice:       target.Price(period),
		Currency:        target.Currency,
	}
	switch cmp := target.Compare(current.Tier); {
	case cmp > 0:
		q.Direction = DirectionUpgrade
	case cmp < 0:
		q.Direction = DirectionDowngrade
	default:
		q.Direction = DirectionPeriodChange
	}

	if prorate {
		if current.Tier.Currency != target.Currency {
			return Quote{}, shared.NewValidationError("CURRENCY_MISMATCH",
				"Cannot prorate between tiers priced in different currencies")
		}
		q.ProrationCredit, q.RemainingDays = prorationCredit(current, now)
	}
	q.Amount = max(q.ListPrice-q.ProrationCredit, 0)
	return q, nil
}

// prorationCredit credits whole unused UTC days of the current period, so a
// quote stays the same for the rest of the day it was made
func prorationCredit(current CurrentSubscription, now time.Time) (int64, int) {
	if current.PeriodStart == nil || current.PeriodEnd == nil || current.Tier.IsFree() {
		return 0, 0
	}
	start, end, today := utcDay(*current.PeriodStart), utcDay(*current.PeriodEnd), utcDay(now)
	total := daysBetween(start, end)
	if total <= 0 || !today.Before(end) {
		return 0, 0
	}
	if today.Before(start) {
		today = start
	}
	remaining := daysBetween(today, end)
	paid := decimal.NewFromInt(current.Tier.Price(current.BillingPeriod))

	credit := paid.Mul(decimal.NewFromInt(int64(remaining))).Div(decimal.NewFromInt(int64(total))).Floor().IntPart()
	return credit, remaining
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
