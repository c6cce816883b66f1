package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appbilling "github.com/subgov/backend/internal/application/billing"
	appcoupon "github.com/subgov/backend/internal/application/coupon"
	appidentity "github.com/subgov/backend/internal/application/identity"
	"github.com/subgov/backend/internal/application/uow"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/coupon"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/persistence"
	"github.com/subgov/backend/tests/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type seqNumbers struct{ n int }

func (s *seqNumbers) Next(prefix string, _ time.Time) string {
	s.n++
	return fmt.Sprintf("%s-%04d", prefix, s.n)
}

// failingChanger moves the tenant and then fails, so the unit of work must roll back both
type failingChanger struct {
	SubscriptionChanger
}

func (f failingChanger) ChangeTierInScope(ctx context.Context, repos uow.TransactionalRepositories, tenantID uuid.UUID, tierCode string, period billing.BillingPeriod) (*identity.Tenant, error) {
	if _, err := f.SubscriptionChanger.ChangeTierInScope(ctx, repos, tenantID, tierCode, period); err != nil {
		return nil, err
	}
	return nil, errors.New("quota store unavailable")
}

type ledgerFixture struct {
	db      *gorm.DB
	scope   *persistence.GormTransactionScope
	svc     *LedgerService
	tenants *appidentity.TenantService
	coupons *appcoupon.CouponService
	events  *testutil.RecordingRecorder
	tenant  *identity.Tenant
	admin   *uuid.UUID
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	tiers := testutil.SeedDefaultTiers(t, db)
	tenant := testutil.SeedTenant(t, db, "ACME", tiers[billing.TierBasic], testutil.Now)

	events := testutil.NewRecordingRecorder()
	scope := persistence.NewGormTransactionScope(db, events.Factory())
	clock := testutil.NewClock(testutil.Now)

	metering := appbilling.NewMeteringService(scope,
		persistence.NewGormUsageQuotaRepository(db),
		persistence.NewGormUsageAlertRepository(db),
		zap.NewNop(), appbilling.DefaultMeteringConfig())
	metering.SetClock(clock.Now)
	tenants := appidentity.NewTenantService(scope, persistence.NewGormTenantRepository(db), metering, zap.NewNop())
	tenants.SetClock(clock.Now)
	coupons := appcoupon.NewCouponService(scope,
		persistence.NewGormCouponRepository(db),
		persistence.NewGormRedemptionRepository(db),
		zap.NewNop())
	coupons.SetClock(clock.Now)

	svc := NewLedgerService(scope, persistence.NewGormTransactionRepository(db), coupons, tenants,
		&seqNumbers{}, LedgerConfig{}, zap.NewNop())
	svc.SetClock(clock.Now)

	return &ledgerFixture{
		db: db, scope: scope, svc: svc, tenants: tenants, coupons: coupons,
		events: events, tenant: tenant, admin: testutil.UserRef(testutil.TestUserID()),
	}
}

func (f *ledgerFixture) createPending(t *testing.T, typ ledger.TransactionType, amount int64, tier string) *TransactionDTO {
	t.Helper()
	input := CreateManualInput{
		TenantID:  f.tenant.ID,
		Type:      typ,
		Amount:    amount,
		CreatedBy: f.admin,
	}
	if tier != "" {
		input.TargetTierCode = tier
		input.BillingPeriod = billing.BillingPeriodMonthly
	}
	dto, err := f.svc.CreateManual(context.Background(), input)
	require.NoError(t, err)
	return dto
}

func (f *ledgerFixture) tenantNow(t *testing.T) *appidentity.TenantDTO {
	t.Helper()
	dto, err := f.tenants.GetByID(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	return dto
}

func TestLedgerService_CreateManual(t *testing.T) {
	f := newLedgerFixture(t)

	dto := f.createPending(t, ledger.TypeManual, 5_000, "")
	assert.Equal(t, "TXN-0001", dto.TransactionNumber)
	assert.Equal(t, string(ledger.StatusPending), dto.Status)
	assert.Equal(t, string(ledger.SourceManual), dto.Source)
	assert.Equal(t, "USD", dto.Currency)
	assert.Equal(t, int64(5_000), dto.NetAmount)
	assert.Equal(t, 1, f.events.Count(ledger.EventTypeTransactionCreated))

	_, err := f.svc.CreateManual(context.Background(), CreateManualInput{TenantID: uuid.New(), Type: ledger.TypeManual, Amount: 1})
	assert.True(t, shared.IsKind(err, shared.KindNotFound))

	_, err = f.svc.CreateManual(context.Background(), CreateManualInput{TenantID: f.tenant.ID, Type: ledger.TypeUpgrade, Amount: 1})
	assert.True(t, shared.IsKind(err, shared.KindValidation), "tier-changing types need a target tier")
}

func TestLedgerService_CreateManual_MarkPaidMovesTier(t *testing.T) {
	f := newLedgerFixture(t)

	dto, err := f.svc.CreateManual(context.Background(), CreateManualInput{
		TenantID:       f.tenant.ID,
		Type:           ledger.TypeUpgrade,
		Amount:         9_900,
		TargetTierCode: billing.TierPremium,
		BillingPeriod:  billing.BillingPeriodYearly,
		MarkPaid:       true,
		Note:           "paid by wire",
		CreatedBy:      f.admin,
	})
	require.NoError(t, err)
	assert.Equal(t, string(ledger.StatusPaid), dto.Status)
	assert.NotNil(t, dto.PaidAt)
	require.Len(t, dto.Notes, 1)
	assert.Equal(t, "paid by wire", dto.Notes[0].Text)

	tenant := f.tenantNow(t)
	assert.Equal(t, billing.TierPremium, tenant.TierCode)
	assert.Equal(t, string(billing.BillingPeriodYearly), tenant.BillingPeriod)

	q, err := persistence.NewGormUsageQuotaRepository(f.db).FindByTenantAndMetric(context.Background(), f.tenant.ID, billing.MetricAPICalls)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), q.LimitValue, "quotas follow the new tier")
}

func TestLedgerService_StateMachine(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	paid := f.createPending(t, ledger.TypeManual, 1_000, "")
	got, err := f.svc.Approve(ctx, paid.ID, f.admin, "")
	require.NoError(t, err)
	assert.Equal(t, string(ledger.StatusPaid), got.Status)

	_, err = f.svc.Approve(ctx, paid.ID, f.admin, "")
	assert.True(t, shared.IsKind(err, shared.KindInvalidTransition))
	_, err = f.svc.Cancel(ctx, paid.ID, f.admin, "late")
	assert.True(t, shared.IsKind(err, shared.KindInvalidTransition))

	got, err = f.svc.Refund(ctx, paid.ID, f.admin, "duplicate charge")
	require.NoError(t, err)
	assert.Equal(t, string(ledger.StatusRefunded), got.Status)
	assert.NotNil(t, got.RefundedAt)
	_, err = f.svc.Refund(ctx, paid.ID, f.admin, "again")
	assert.True(t, shared.IsKind(err, shared.KindInvalidTransition))

	pending := f.createPending(t, ledger.TypeManual, 1_000, "")
	_, err = f.svc.Refund(ctx, pending.ID, f.admin, "not paid")
	assert.True(t, shared.IsKind(err, shared.KindInvalidTransition))

	_, err = f.svc.Reject(ctx, pending.ID, f.admin, "  ", "")
	assert.True(t, shared.IsKind(err, shared.KindValidation))
	got, err = f.svc.Reject(ctx, pending.ID, f.admin, "proof illegible", "")
	require.NoError(t, err)
	assert.Equal(t, string(ledger.StatusRejected), got.Status)
	assert.Equal(t, "proof illegible", got.RejectionReason)

	cancelled := f.createPending(t, ledger.TypeManual, 1_000, "")
	got, err = f.svc.Cancel(ctx, cancelled.ID, f.admin, "customer withdrew")
	require.NoError(t, err)
	assert.Equal(t, string(ledger.StatusCancelled), got.Status)
	_, err = f.svc.Reject(ctx, cancelled.ID, f.admin, "late", "")
	assert.True(t, shared.IsKind(err, shared.KindInvalidTransition))

	_, err = f.svc.Approve(ctx, uuid.New(), f.admin, "")
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestLedgerService_RefundKeepsTier(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	tx := f.createPending(t, ledger.TypeUpgrade, 9_900, billing.TierPremium)
	_, err := f.svc.Approve(ctx, tx.ID, f.admin, "")
	require.NoError(t, err)
	_, err = f.svc.Refund(ctx, tx.ID, f.admin, "goodwill")
	require.NoError(t, err)

	assert.Equal(t, billing.TierPremium, f.tenantNow(t).TierCode)
}

func TestLedgerService_Discounts(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	_, err := f.coupons.Create(ctx, appcoupon.CreateCouponInput{
		Code: "BIG", DiscountType: coupon.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(8_000),
	})
	require.NoError(t, err)

	tx := f.createPending(t, ledger.TypeManual, 10_000, "")
	got, err := f.svc.ApplyCoupon(ctx, tx.ID, "big")
	require.NoError(t, err)
	assert.Equal(t, "BIG", got.CouponCode)
	assert.Equal(t, int64(8_000), got.CouponDiscount)
	assert.Equal(t, int64(2_000), got.NetAmount)

	_, err = f.svc.ApplyCoupon(ctx, tx.ID, "BIG")
	assert.True(t, shared.IsKind(err, shared.KindCouponInvalid))

	got, err = f.svc.ApplyManualDiscount(ctx, tx.ID, ManualDiscountInput{
		DiscountType: coupon.DiscountTypeFixed, Value: decimal.NewFromInt(5_000), Note: "loyalty", By: f.admin,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), got.ManualDiscount)
	assert.Equal(t, int64(10_000), got.DiscountAmount, "combined discount is clamped to the amount")
	assert.Zero(t, got.NetAmount)

	got, err = f.svc.ApplyManualDiscount(ctx, tx.ID, ManualDiscountInput{
		DiscountType: coupon.DiscountTypePercentage, Value: decimal.NewFromInt(10), By: f.admin,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), got.ManualDiscount, "a new manual discount replaces the old one")
	assert.Equal(t, int64(9_000), got.DiscountAmount)

	_, err = f.svc.ApplyManualDiscount(ctx, tx.ID, ManualDiscountInput{
		DiscountType: coupon.DiscountTypePercentage, Value: decimal.NewFromInt(150),
	})
	assert.True(t, shared.IsKind(err, shared.KindValidation))
}

func TestLedgerService_RejectedCouponLeavesTransaction(t *testing.T) {
	f := newLedgerFixture(t)
	tx := f.createPending(t, ledger.TypeManual, 10_000, "")

	_, err := f.svc.ApplyCoupon(context.Background(), tx.ID, "MISSING")
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindCouponInvalid))

	got, err := f.svc.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CouponCode)
	assert.Equal(t, tx.Version, got.Version)
}

func TestLedgerService_BonusExtendsPeriodOnApproval(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	before := f.tenantNow(t).CurrentPeriodEnd
	require.NotNil(t, before)

	tx := f.createPending(t, ledger.TypeExtension, 0, "")
	_, err := f.svc.AddBonus(ctx, tx.ID, 0, f.admin)
	assert.True(t, shared.IsKind(err, shared.KindValidation))

	got, err := f.svc.AddBonus(ctx, tx.ID, 10, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 10, got.BonusDays)

	// bonus days do nothing until the transaction is paid
	assert.True(t, before.Equal(*f.tenantNow(t).CurrentPeriodEnd))

	_, err = f.svc.Approve(ctx, tx.ID, f.admin, "")
	require.NoError(t, err)
	after := f.tenantNow(t).CurrentPeriodEnd
	require.NotNil(t, after)
	assert.True(t, before.AddDate(0, 0, 10).Equal(*after))

	_, err = f.svc.AddBonus(ctx, tx.ID, 5, f.admin)
	assert.True(t, shared.IsKind(err, shared.KindInvalidTransition))
}

func TestLedgerService_NotesInAnyStatus(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	tx := f.createPending(t, ledger.TypeManual, 1_000, "")
	_, err := f.svc.Cancel(ctx, tx.ID, f.admin, "")
	require.NoError(t, err)

	got, err := f.svc.AddNote(ctx, tx.ID, "called the customer", f.admin)
	require.NoError(t, err)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, f.admin.String(), got.Notes[0].Author)

	_, err = f.svc.AddNote(ctx, tx.ID, " ", f.admin)
	assert.True(t, shared.IsKind(err, shared.KindValidation))

	view, err := f.svc.GetForTenant(ctx, f.tenant.ID, tx.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Notes, "tenants never see admin notes")

	_, err = f.svc.GetForTenant(ctx, uuid.New(), tx.ID)
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestLedgerService_UpgradeLinkedTransactionsAreGuarded(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	requestID := uuid.New()

	var tx *ledger.BillingTransaction
	err := f.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		var err error
		tx, err = f.svc.CreateInScope(ctx, repos, ledger.NewTransactionParams{
			TenantID:         f.tenant.ID,
			Type:             ledger.TypeUpgrade,
			Source:           ledger.SourceUpgradeRequest,
			Amount:           9_900,
			TargetTierCode:   billing.TierPremium,
			BillingPeriod:    billing.BillingPeriodMonthly,
			UpgradeRequestID: &requestID,
		})
		return err
	})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, tx.ID, f.admin, "")
	assert.True(t, shared.IsKind(err, shared.KindInvalidTransition))
	_, err = f.svc.Reject(ctx, tx.ID, f.admin, "no", "")
	assert.True(t, shared.IsKind(err, shared.KindInvalidTransition))
	_, err = f.svc.Cancel(ctx, tx.ID, f.admin, "no")
	assert.True(t, shared.IsKind(err, shared.KindInvalidTransition))

	got, err := f.svc.AddNote(ctx, tx.ID, "waiting on proof", f.admin)
	require.NoError(t, err)
	assert.Equal(t, string(ledger.StatusPending), got.Status)
	assert.Equal(t, billing.TierBasic, f.tenantNow(t).TierCode)
}

func TestLedgerService_ApprovalRollsBackAtomically(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.svc.subs = failingChanger{SubscriptionChanger: f.tenants}

	tx := f.createPending(t, ledger.TypeUpgrade, 9_900, billing.TierPremium)
	_, err := f.svc.Approve(ctx, tx.ID, f.admin, "")
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindAtomicityFailure))

	got, err := f.svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, string(ledger.StatusPending), got.Status)
	assert.Nil(t, got.PaidAt)

	assert.Equal(t, billing.TierBasic, f.tenantNow(t).TierCode)
	q, err := persistence.NewGormUsageQuotaRepository(f.db).FindByTenantAndMetric(ctx, f.tenant.ID, billing.MetricAPICalls)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), q.LimitValue)
}

func TestLedgerService_List(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	a := f.createPending(t, ledger.TypeManual, 1_000, "")
	f.createPending(t, ledger.TypeManual, 2_000, "")
	_, err := f.svc.Approve(ctx, a.ID, f.admin, "received")
	require.NoError(t, err)

	status := ledger.StatusPaid
	page, err := f.svc.List(ctx, ledger.TransactionFilter{TenantID: &f.tenant.ID, Status: &status}, true)
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, a.ID, page.Items[0].ID)
	assert.Empty(t, page.Items[0].Notes)

	all, err := f.svc.List(ctx, ledger.TransactionFilter{}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)
}
