package upgrade

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/shared"
)

var now = time.Date(2026, 4, 16, 0, 0, 0, 0, time.UTC)

func catalogue() map[string]*billing.Tier {
	out := map[string]*billing.Tier{}
	for _, t := range billing.DefaultTiers() {
		out[t.Code] = t
	}
	return out
}

func newRequest(t *testing.T) *UpgradeRequest {
	t.Helper()
	tiers := catalogue()
	q, err := Price(CurrentSubscription{Tier: tiers[billing.TierBasic], BillingPeriod: billing.BillingPeriodMonthly},
		tiers[billing.TierPremium], billing.BillingPeriodMonthly, false, now)
	require.NoError(t, err)
	r, err := NewUpgradeRequest(uuid.New(), "UPG-20260416-1", q, "", nil, 72*time.Hour, now)
	require.NoError(t, err)
	return r
}

func TestPrice(t *testing.T) {
	tiers := catalogue()
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	basic := CurrentSubscription{
		Tier: tiers[billing.TierBasic], BillingPeriod: billing.BillingPeriodMonthly,
		PeriodStart: &start, PeriodEnd: &end,
	}

	t.Run("upgrade without proration", func(t *testing.T) {
		q, err := Price(basic, tiers[billing.TierPremium], billing.BillingPeriodYearly, false, now)
		require.NoError(t, err)
		assert.Equal(t, DirectionUpgrade, q.Direction)
		assert.Equal(t, ledger.TypeUpgrade, q.Direction.TransactionType())
		assert.Equal(t, int64(99_000), q.ListPrice)
		assert.Equal(t, int64(99_000), q.Amount)
		assert.Equal(t, "USD", q.Currency)
	})

	t.Run("prorates unused half month", func(t *testing.T) {
		// 15 of 30 days remain on a 2900 plan
		q, err := Price(basic, tiers[billing.TierPremium], billing.BillingPeriodMonthly, true, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1450), q.ProrationCredit)
		assert.Equal(t, int64(9900-1450), q.Amount)
		assert.Equal(t, 15, q.RemainingDays)
	})

	t.Run("credit is stable within a day", func(t *testing.T) {
		morning, err := Price(basic, tiers[billing.TierPremium], billing.BillingPeriodMonthly, true, now.Add(time.Minute))
		require.NoError(t, err)
		night, err := Price(basic, tiers[billing.TierPremium], billing.BillingPeriodMonthly, true, now.Add(23*time.Hour+59*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, morning, night)
		assert.Equal(t, int64(1450), night.ProrationCredit)

		nextDay, err := Price(basic, tiers[billing.TierPremium], billing.BillingPeriodMonthly, true, now.Add(24*time.Hour))
		require.NoError(t, err)
		// 14 of 30 days remain
		assert.Equal(t, int64(1353), nextDay.ProrationCredit)
		assert.Equal(t, 14, nextDay.RemainingDays)
	})

	t.Run("credit ends with the period", func(t *testing.T) {
		q, err := Price(basic, tiers[billing.TierPremium], billing.BillingPeriodMonthly, true, end.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, q.RemainingDays)
		q, err = Price(basic, tiers[billing.TierPremium], billing.BillingPeriodMonthly, true, end)
		require.NoError(t, err)
		assert.Zero(t, q.ProrationCredit)
	})

	t.Run("refuses proration across currencies", func(t *testing.T) {
		eur := *tiers[billing.TierPremium]
		eur.Currency = "EUR"
		_, err := Price(basic, &eur, billing.BillingPeriodMonthly, true, now)
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindValidation))

		q, err := Price(basic, &eur, billing.BillingPeriodMonthly, false, now)
		require.NoError(t, err)
		assert.Equal(t, "EUR", q.Currency)
	})

	t.Run("free tier earns no credit", func(t *testing.T) {
		free := CurrentSubscription{Tier: tiers[billing.TierFree], BillingPeriod: billing.BillingPeriodMonthly, PeriodStart: &start, PeriodEnd: &end}
		q, err := Price(free, tiers[billing.TierBasic], billing.BillingPeriodMonthly, true, now)
		require.NoError(t, err)
		assert.Zero(t, q.ProrationCredit)
		assert.Equal(t, int64(2900), q.Amount)
	})

	t.Run("downgrade never goes negative", func(t *testing.T) {
		premium := CurrentSubscription{Tier: tiers[billing.TierPremium], BillingPeriod: billing.BillingPeriodYearly, PeriodStart: &start, PeriodEnd: &end}
		q, err := Price(premium, tiers[billing.TierBasic], billing.BillingPeriodMonthly, true, now)
		require.NoError(t, err)
		assert.Equal(t, DirectionDowngrade, q.Direction)
		assert.Zero(t, q.Amount)
	})

	t.Run("period change on same tier", func(t *testing.T) {
		q, err := Price(basic, tiers[billing.TierBasic], billing.BillingPeriodYearly, false, now)
		require.NoError(t, err)
		assert.Equal(t, DirectionPeriodChange, q.Direction)
		assert.Equal(t, ledger.TypeSubscription, q.Direction.TransactionType())
	})

	t.Run("rejects same tier and period", func(t *testing.T) {
		_, err := Price(basic, tiers[billing.TierBasic], billing.BillingPeriodMonthly, false, now)
		assert.True(t, shared.IsKind(err, shared.KindValidation))
	})

	t.Run("rejects inactive tier", func(t *testing.T) {
		inactive := *tiers[billing.TierPremium]
		inactive.IsActive = false
		_, err := Price(basic, &inactive, billing.BillingPeriodMonthly, false, now)
		assert.Error(t, err)
	})

	t.Run("is deterministic", func(t *testing.T) {
		a, err := Price(basic, tiers[billing.TierEnterprise], billing.BillingPeriodMonthly, true, now)
		require.NoError(t, err)
		b, err := Price(basic, tiers[billing.TierEnterprise], billing.BillingPeriodMonthly, true, now)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestRequestWorkflow(t *testing.T) {
	admin := uuid.New()
	txID := uuid.New()

	t.Run("created pending with quote copied", func(t *testing.T) {
		r := newRequest(t)
		assert.Equal(t, StatusPending, r.Status)
		assert.Equal(t, int64(9900), r.Amount)
		assert.Equal(t, now.Add(72*time.Hour), r.ExpiresAt)
		assert.False(t, r.CanReview())
	})

	t.Run("cannot review before proof", func(t *testing.T) {
		r := newRequest(t)
		err := r.Approve(admin, "", now)
		assert.True(t, shared.IsKind(err, shared.KindInvalidTransition))
		assert.Error(t, r.BeginReview(admin, now))
		assert.Equal(t, StatusPending, r.Status)
	})

	t.Run("approve directly from payment_uploaded", func(t *testing.T) {
		r := newRequest(t)
		require.NoError(t, r.UploadProof("file-123", txID, now))
		assert.True(t, r.CanReview())
		assert.Equal(t, &txID, r.TransactionID)

		require.NoError(t, r.Approve(admin, "checked bank statement", now))
		assert.Equal(t, StatusApproved, r.Status)
		assert.Equal(t, "checked bank statement", r.ReviewNotes)
		assert.NotNil(t, r.ClosedAt)
	})

	t.Run("approve after claim", func(t *testing.T) {
		r := newRequest(t)
		require.NoError(t, r.UploadProof("file-123", txID, now))
		require.NoError(t, r.BeginReview(admin, now))
		assert.Equal(t, StatusUnderReview, r.Status)
		assert.True(t, r.CanReview())
		require.NoError(t, r.Approve(admin, "", now))
	})

	t.Run("reject keeps notes separate from reason", func(t *testing.T) {
		r := newRequest(t)
		require.NoError(t, r.UploadProof("file-123", txID, now))
		r.ClearDomainEvents()

		assert.Error(t, r.Reject(admin, "", "notes", now))
		require.NoError(t, r.Reject(admin, "proof illegible", "blurry scan, ask again", now))
		assert.Equal(t, StatusRejected, r.Status)
		assert.Equal(t, "proof illegible", r.RejectionReason)
		assert.Equal(t, "blurry scan, ask again", r.ReviewNotes)

		ev := r.GetDomainEvents()[0].(*RequestStatusChangedEvent)
		assert.Equal(t, EventTypeRequestRejected, ev.EventType())
		assert.Equal(t, "proof illegible", ev.RejectionReason)
	})

	t.Run("cancel only before review", func(t *testing.T) {
		r := newRequest(t)
		require.NoError(t, r.UploadProof("file-123", txID, now))
		require.NoError(t, r.BeginReview(admin, now))
		assert.True(t, shared.IsKind(r.Cancel("", now), shared.KindInvalidTransition))

		r2 := newRequest(t)
		require.NoError(t, r2.Cancel("changed my mind", now))
		assert.Equal(t, StatusCancelled, r2.Status)
	})

	t.Run("expire honours deadline", func(t *testing.T) {
		r := newRequest(t)
		assert.False(t, r.IsExpired(now))
		assert.Error(t, r.Expire(now))

		later := now.Add(73 * time.Hour)
		assert.True(t, r.IsExpired(later))
		require.NoError(t, r.Expire(later))
		assert.Equal(t, StatusExpired, r.Status)
		assert.False(t, r.IsExpired(later))
	})

	t.Run("under review cannot expire", func(t *testing.T) {
		r := newRequest(t)
		require.NoError(t, r.UploadProof("file-123", txID, now))
		require.NoError(t, r.BeginReview(admin, now))
		later := now.Add(100 * time.Hour)
		assert.False(t, r.IsExpired(later))
		assert.True(t, shared.IsKind(r.Expire(later), shared.KindInvalidTransition))
	})
}

func TestTransitionTable(t *testing.T) {
	for _, s := range AllRequestStatuses() {
		_, canCancel := s.Next(ActionCancel)
		assert.Equal(t, s == StatusPending || s == StatusPaymentUploaded, canCancel, s)
		_, canApprove := s.Next(ActionApprove)
		assert.Equal(t, s == StatusPaymentUploaded || s == StatusUnderReview, canApprove, s)
		if !s.IsOpen() {
			for _, a := range []Action{ActionUploadProof, ActionBeginReview, ActionApprove, ActionReject, ActionCancel, ActionExpire} {
				_, ok := s.Next(a)
				assert.False(t, ok, "%s --%s-->", s, a)
			}
		}
	}
}
