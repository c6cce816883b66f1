package event

import (
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/coupon"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/upgrade"
)

// RegisterAllEvents registers every domain event type with the serializer.
// The outbox processor cannot deliver an entry whose type is missing here.
func RegisterAllEvents(serializer *EventSerializer) {
	// Tenants
	serializer.Register(identity.EventTypeTenantCreated, &identity.TenantCreatedEvent{})
	serializer.Register(identity.EventTypeTenantStatusChanged, &identity.TenantStatusChangedEvent{})
	serializer.Register(identity.EventTypeTenantTierChanged, &identity.TenantTierChangedEvent{})
	serializer.Register(identity.EventTypeTenantLimitOverridden, &identity.TenantLimitOverriddenEvent{})

	// Metering
	serializer.Register(billing.EventTypeUsageAlertRaised, &billing.UsageAlertRaisedEvent{})
	serializer.Register(billing.EventTypeUsageQuotaReset, &billing.UsageQuotaResetEvent{})
	serializer.Register(billing.EventTypeUsageQuotaLimitSynced, &billing.UsageQuotaLimitSyncedEvent{})

	// Ledger
	serializer.Register(ledger.EventTypeTransactionCreated, &ledger.TransactionCreatedEvent{})
	serializer.Register(ledger.EventTypeTransactionStatusChanged, &ledger.TransactionStatusChangedEvent{})

	// Coupons
	serializer.Register(coupon.EventTypeCouponCreated, &coupon.CouponCreatedEvent{})
	serializer.Register(coupon.EventTypeCouponRedeemed, &coupon.CouponRedeemedEvent{})

	// Upgrade workflow; every transition shares one payload shape
	serializer.Register(upgrade.EventTypeRequestCreated, &upgrade.RequestCreatedEvent{})
	for _, t := range []string{
		upgrade.EventTypeProofUploaded,
		upgrade.EventTypeReviewStarted,
		upgrade.EventTypeRequestApproved,
		upgrade.EventTypeRequestRejected,
		upgrade.EventTypeRequestCancelled,
		upgrade.EventTypeRequestExpired,
	} {
		serializer.Register(t, &upgrade.RequestStatusChangedEvent{})
	}
}
